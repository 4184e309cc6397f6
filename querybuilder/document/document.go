// Package document implements the fluent MongoDB shell-string builder:
// collection + operation + filter/projection/sort/skip/limit/pipeline,
// rendered either as a shell snippet ("db.<coll>.<op>(<json>…)") or as bare
// JSON via BuildJSON.
package document

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Operation is the MongoDB verb a Builder renders.
type Operation string

const (
	Find      Operation = "find"
	Insert    Operation = "insert"
	Update    Operation = "update"
	Delete    Operation = "delete"
	Aggregate Operation = "aggregate"
)

// Builder accumulates a single MongoDB operation's AST.
type Builder struct {
	collection string
	op         Operation

	filter     map[string]interface{}
	projection map[string]interface{}
	sort       map[string]interface{}
	skip       *int64
	limit      *int64

	insertDocs []map[string]interface{}
	update     map[string]interface{}
	pipeline   []map[string]interface{}
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

// Reset clears the builder back to its zero state.
func (b *Builder) Reset() *Builder {
	*b = Builder{}
	return b
}

func (b *Builder) Collection(name string) *Builder {
	b.collection = name
	return b
}

func (b *Builder) Find(filter map[string]interface{}) *Builder {
	b.op = Find
	b.filter = filter
	return b
}

func (b *Builder) Project(projection map[string]interface{}) *Builder {
	b.projection = projection
	return b
}

func (b *Builder) Sort(sort map[string]interface{}) *Builder {
	b.sort = sort
	return b
}

func (b *Builder) Skip(n int64) *Builder {
	b.skip = &n
	return b
}

func (b *Builder) Limit(n int64) *Builder {
	b.limit = &n
	return b
}

func (b *Builder) Insert(docs ...map[string]interface{}) *Builder {
	b.op = Insert
	b.insertDocs = docs
	return b
}

func (b *Builder) Update(filter, update map[string]interface{}) *Builder {
	b.op = Update
	b.filter = filter
	b.update = update
	return b
}

func (b *Builder) Delete(filter map[string]interface{}) *Builder {
	b.op = Delete
	b.filter = filter
	return b
}

func (b *Builder) Aggregate(stages ...map[string]interface{}) *Builder {
	b.op = Aggregate
	b.pipeline = stages
	return b
}

// Build renders "db.<coll>.<op>(<json>…)", the shell-style form.
func (b *Builder) Build() (string, error) {
	args, err := b.renderArgs()
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("db.%s.%s(%s)", b.collection, b.op, strings.Join(args, ", ")), nil
}

// BuildJSON renders the same arguments without the shell prefix, as a
// single JSON value (an array when the operation takes more than one
// argument, a bare object/array otherwise).
func (b *Builder) BuildJSON() (string, error) {
	args, err := b.renderArgs()
	if err != nil {
		return "", err
	}

	if len(args) == 1 {
		return args[0], nil
	}

	return "[" + strings.Join(args, ", ") + "]", nil
}

func (b *Builder) renderArgs() ([]string, error) {
	if b.collection == "" {
		return nil, errors.New("document builder: no collection set")
	}

	switch b.op {
	case Find:
		args := []string{marshal(orEmpty(b.filter))}
		if b.projection != nil {
			args = append(args, marshal(b.projection))
		}
		return args, nil
	case Insert:
		if len(b.insertDocs) == 1 {
			return []string{marshal(b.insertDocs[0])}, nil
		}
		return []string{marshal(b.insertDocs)}, nil
	case Update:
		return []string{marshal(orEmpty(b.filter)), marshal(orEmpty(b.update))}, nil
	case Delete:
		return []string{marshal(orEmpty(b.filter))}, nil
	case Aggregate:
		return []string{marshal(b.pipeline)}, nil
	default:
		return nil, errors.Errorf("document builder: unknown operation %q", b.op)
	}
}

func orEmpty(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func marshal(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
