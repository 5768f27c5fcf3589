package utils

import (
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// AttributeMap is a free-form set of attributes, typically decoded from JSON, that a component
// converts into its own typed config.
type AttributeMap map[string]interface{}

// Has reports whether the key is present.
func (am AttributeMap) Has(key string) bool {
	_, has := am[key]
	return has
}

// TransformAttributeMap decodes the attributes into a new T using the json tags of T's fields.
// Durations may be given as strings such as "16ms". Unknown keys are rejected.
func TransformAttributeMap[T any](attributes AttributeMap) (T, error) {
	var out T
	if err := DecodeInto(attributes, &out, true); err != nil {
		return out, err
	}
	return out, nil
}

// DecodeInto decodes input into result, which must be a pointer, using json tags. Values already
// in result are kept for keys input does not set, which is how defaults are applied.
func DecodeInto(input, result interface{}, errorUnused bool) error {
	if rv := reflect.ValueOf(result); rv.Kind() != reflect.Ptr || rv.IsNil() {
		return NewUnexpectedTypeError((*interface{})(nil), result)
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		Result:      result,
		ErrorUnused: errorUnused,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			numberToDurationHook,
		),
	})
	if err != nil {
		return err
	}
	return errors.Wrap(decoder.Decode(input), "decoding attributes")
}

// numberToDurationHook reads bare JSON numbers as milliseconds.
func numberToDurationHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	switch v := data.(type) {
	case float64:
		return time.Duration(v * float64(time.Millisecond)), nil
	case int:
		return time.Duration(v) * time.Millisecond, nil
	default:
		return data, nil
	}
}
