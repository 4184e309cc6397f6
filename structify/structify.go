// Package structify decodes a map[string]any — typically a query result row
// (see FromRow) — into a tagged Go struct via reflection, adapted from the
// teacher's runtime update pipeline, which used the same map-to-struct
// pattern (struct tags naming Redis hash fields) to turn streamed Redis
// entries into typed objects before upserting them.
package structify

import (
	"encoding"
	"fmt"
	"reflect"
	"strconv"
)

// MapStructifier builds a new instance of the struct type it was built for
// from a map[string]any, returning it as any (a *T).
type MapStructifier func(map[string]any) (any, error)

type fieldSetter struct {
	index []int
	set   func(v reflect.Value, m map[string]any) error
}

// MakeMapStructifier returns a MapStructifier for t, a struct type, reading
// tag on each field to decide how it's populated:
//
//   - no tag, or tag "-": the field is left untouched by the map.
//   - tag ",inline": t must be a struct; its fields are decoded as if they
//     were fields of the outer struct, from the same source map.
//   - any other tag value: names the map key the field is populated from.
//     The looked-up value must be a string (anything else is treated as
//     absent); it is parsed according to the field's type (string, *string,
//     any integer or float kind, or any type whose pointer implements
//     encoding.TextUnmarshaler).
//
// If initer is non-nil, it is called on the new instance before the map is
// applied, so map values always take precedence over initer-set ones.
//
// Unsupported field types panic during MakeMapStructifier itself — a
// configuration mistake, not a per-row failure — so it surfaces at startup.
func MakeMapStructifier(t reflect.Type, tag string, initer func(any)) MapStructifier {
	setters := buildSetters(t, tag, nil)

	return func(m map[string]any) (any, error) {
		p := reflect.New(t)
		if initer != nil {
			initer(p.Interface())
		}

		root := p.Elem()
		for _, s := range setters {
			if err := s.set(root.FieldByIndex(s.index), m); err != nil {
				return nil, err
			}
		}

		return p.Interface(), nil
	}
}

func buildSetters(t reflect.Type, tag string, prefix []int) []fieldSetter {
	var setters []fieldSetter

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue
		}

		tagValue, ok := f.Tag.Lookup(tag)
		if !ok || tagValue == "-" {
			continue
		}

		index := append(append([]int(nil), prefix...), i)

		if tagValue == ",inline" {
			if f.Type.Kind() != reflect.Struct {
				panic(fmt.Sprintf("structify: field %s tagged inline must be a struct, got %s", f.Name, f.Type))
			}

			setters = append(setters, buildSetters(f.Type, tag, index)...)
			continue
		}

		key := tagValue
		set, err := makeFieldSetter(f.Type)
		if err != nil {
			panic(fmt.Sprintf("structify: field %s: %v", f.Name, err))
		}

		setters = append(setters, fieldSetter{
			index: index,
			set: func(v reflect.Value, m map[string]any) error {
				raw, ok := m[key]
				if !ok {
					return nil
				}

				str, ok := raw.(string)
				if !ok {
					return nil
				}

				return set(v, str)
			},
		})
	}

	return setters
}

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

func makeFieldSetter(t reflect.Type) (func(reflect.Value, string) error, error) {
	if reflect.PointerTo(t).Implements(textUnmarshalerType) {
		return func(v reflect.Value, s string) error {
			return v.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s))
		}, nil
	}

	switch t.Kind() {
	case reflect.String:
		return func(v reflect.Value, s string) error {
			v.SetString(s)
			return nil
		}, nil

	case reflect.Pointer:
		if t.Elem().Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported pointer type %s", t)
		}

		return func(v reflect.Value, s string) error {
			sv := s
			v.Set(reflect.ValueOf(&sv))
			return nil
		}, nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		bits := t.Bits()
		return func(v reflect.Value, s string) error {
			n, err := strconv.ParseUint(s, 10, bits)
			if err != nil {
				return err
			}
			v.SetUint(n)
			return nil
		}, nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		bits := t.Bits()
		return func(v reflect.Value, s string) error {
			n, err := strconv.ParseInt(s, 10, bits)
			if err != nil {
				return err
			}
			v.SetInt(n)
			return nil
		}, nil

	case reflect.Float32, reflect.Float64:
		bits := t.Bits()
		return func(v reflect.Value, s string) error {
			n, err := strconv.ParseFloat(s, bits)
			if err != nil {
				return err
			}
			v.SetFloat(n)
			return nil
		}, nil

	default:
		return nil, fmt.Errorf("unsupported type %s", t)
	}
}
