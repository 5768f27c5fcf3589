package utils

import (
	"reflect"

	"github.com/pkg/errors"
)

// NewUnexpectedTypeError is used when there is a type mismatch.
func NewUnexpectedTypeError(expected, actual interface{}) error {
	return errors.Errorf("expected %s but got %T", typeName(expected), actual)
}

// NewUnknownNameError is used when a name is looked up in a closed registry that does not hold it.
func NewUnknownNameError(kind, name string, known []string) error {
	return errors.Errorf("unknown %s %q, expected one of %v", kind, name, known)
}

// typeName renders pointers to interfaces as the interface name so that callers can pass
// (*SomeInterface)(nil).
func typeName(v interface{}) string {
	if v == nil {
		return "<unknown (nil interface)>"
	}
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Interface {
		return t.Elem().String()
	}
	return t.String()
}
