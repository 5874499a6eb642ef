package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scalar is a configuration value persisted as either a number or a string.
// It keeps the decimal text so uint256 amounts survive round trips.
type Scalar string

// UnmarshalYAML accepts any scalar node.
func (s *Scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar value", node.Line)
	}
	if node.Tag == "!!null" {
		*s = ""
		return nil
	}
	*s = Scalar(strings.TrimSpace(node.Value))
	return nil
}

// UnmarshalJSON accepts a JSON string, number or null.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	switch {
	case raw == "null":
		*s = ""
		return nil
	case strings.HasPrefix(raw, `"`):
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Scalar(strings.TrimSpace(str))
		return nil
	default:
		var num json.Number
		if err := json.Unmarshal(data, &num); err != nil {
			return fmt.Errorf("expected string or number, got %s", raw)
		}
		*s = Scalar(num.String())
		return nil
	}
}

// BigInt parses the value as a base-10 (or 0x-prefixed hex) integer.
func (s Scalar) BigInt() (*big.Int, bool) {
	return ParseInteger(string(s))
}

// ParseInteger parses a base-10 or 0x-prefixed integer.
func ParseInteger(v string) (*big.Int, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, false
	}
	n := new(big.Int)
	if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
		return n.SetString(v[2:], 16)
	}
	return n.SetString(v, 10)
}
