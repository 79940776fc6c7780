// Package cfg decodes the raw [http.services.<name>] maps into typed
// service configs.
package cfg

import (
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
)

// Setter is implemented by configs that fill in their own defaults.
type Setter interface {
	ApplyDefaults()
}

// Validator is implemented by configs that check themselves after
// defaults are applied.
type Validator interface {
	Validate() error
}

// Decode decodes input into the pointer c and returns the keys it did not
// use, sorted. Duration fields accept strings such as "5s". Defaults are
// applied before validation.
func Decode(input map[string]any, c any) ([]string, error) {
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata:         &md,
		Result:           c,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(input); err != nil {
		return nil, err
	}

	if s, ok := c.(Setter); ok {
		s.ApplyDefaults()
	}
	if v, ok := c.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}

	unused := md.Unused
	sort.Strings(unused)
	return unused, nil
}

// DecodeStrict is Decode that fails on unused keys.
func DecodeStrict(input map[string]any, c any) error {
	unused, err := Decode(input, c)
	if err != nil {
		return err
	}
	if len(unused) > 0 {
		return fmt.Errorf("unused config keys: %v", unused)
	}
	return nil
}
