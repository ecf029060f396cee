// Package types holds small shared value types used across the driver.
package types

import (
	"encoding/json"
	"strings"
)

// LenientBool decodes a boolean that may arrive as a JSON bool or as one of
// the common string spellings TrueNAS-adjacent tooling emits ("1", "true",
// "True", "TRUE"). Anything else decodes to false rather than erroring, since
// the fields it backs (transport secrets, YAML config) are operator-supplied
// and a strict decoder would turn a typo into a hard failure instead of a
// safe default.
type LenientBool bool

// UnmarshalJSON implements json.Unmarshaler.
func (b *LenientBool) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*b = LenientBool(coerceBool(raw))
	return nil
}

// UnmarshalYAML uses the yaml.v2-style func(interface{}) error signature,
// which gopkg.in/yaml.v3 still honors.
func (b *LenientBool) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*b = LenientBool(coerceBool(raw))
	return nil
}

func coerceBool(raw interface{}) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		switch strings.TrimSpace(v) {
		case "1", "true", "True", "TRUE":
			return true
		default:
			return false
		}
	default:
		return false
	}
}

// Bool returns the plain bool value.
func (b LenientBool) Bool() bool {
	return bool(b)
}

// ParseLenientBool applies the same coercion rules as LenientBool directly to
// a string, for callers decoding plain map[string]string sources (CSI
// secrets/parameters) rather than JSON or YAML documents.
func ParseLenientBool(raw string) bool {
	return coerceBool(raw)
}
