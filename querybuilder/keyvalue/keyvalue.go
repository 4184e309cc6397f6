// Package keyvalue implements the fluent Redis command builder: a command
// name plus positional arguments, rendered by concatenating with single
// spaces. Binary or whitespace-containing values are the caller's
// responsibility to escape or avoid, matching the Redis protocol's own
// space-delimited inline command shape.
package keyvalue

import (
	"strings"

	"github.com/pkg/errors"
)

// Builder accumulates a single Redis command's name and arguments.
type Builder struct {
	command string
	args    []string
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

// Command sets the command name, e.g. "SET", "GET", "DEL".
func (b *Builder) Command(name string) *Builder {
	b.command = name
	return b
}

// Arg appends one positional argument.
func (b *Builder) Arg(value string) *Builder {
	b.args = append(b.args, value)
	return b
}

// Args appends multiple positional arguments in order.
func (b *Builder) Args(values ...string) *Builder {
	b.args = append(b.args, values...)
	return b
}

// Build renders "<command> <arg1> <arg2> …".
func (b *Builder) Build() (string, error) {
	if b.command == "" {
		return "", errors.New("key-value builder: no command set")
	}

	parts := append([]string{b.command}, b.args...)
	return strings.Join(parts, " "), nil
}
