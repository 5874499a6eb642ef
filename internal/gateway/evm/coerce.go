package evm

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/zjrosen/linkctl/internal/registry/domain"
)

var bigIntType = reflect.TypeOf((*big.Int)(nil))

// CoerceArgs converts string values to the Go types abi packing expects for
// inputs. When inputs is a single tuple and values has one entry per tuple
// component, the values are taken as the tuple's fields.
func CoerceArgs(inputs abi.Arguments, values []string) ([]any, error) {
	if len(inputs) == 1 && inputs[0].Type.T == abi.TupleTy &&
		len(values) == len(inputs[0].Type.TupleElems) && len(values) != 1 {
		v, err := coerceTuple(inputs[0].Type, values)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", argName(inputs[0], 0), err)
		}
		return []any{v}, nil
	}

	if len(values) != len(inputs) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(inputs), len(values))
	}
	out := make([]any, len(values))
	for i, in := range inputs {
		v, err := Coerce(in.Type, values[i])
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", argName(in, i), err)
		}
		out[i] = v
	}
	return out, nil
}

func argName(a abi.Argument, i int) string {
	if a.Name != "" {
		return a.Name
	}
	return "#" + strconv.Itoa(i)
}

// Coerce converts one string to the Go value for t. Arrays, slices and tuples
// are written as JSON arrays of strings.
func Coerce(t abi.Type, s string) (any, error) {
	s = strings.TrimSpace(s)
	switch t.T {
	case abi.AddressTy:
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("%q is not an address", s)
		}
		return common.HexToAddress(s), nil

	case abi.UintTy, abi.IntTy:
		return coerceInteger(t, s)

	case abi.BoolTy:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%q is not a bool", s)
		}
		return b, nil

	case abi.StringTy:
		return s, nil

	case abi.BytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("%q is not hex bytes: %w", s, err)
		}
		return b, nil

	case abi.FixedBytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("%q is not hex bytes: %w", s, err)
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("%q is %d bytes, want %d", s, len(b), t.Size)
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil

	case abi.SliceTy, abi.ArrayTy:
		items, err := splitJSONArray(s)
		if err != nil {
			return nil, err
		}
		if t.T == abi.ArrayTy && len(items) != t.Size {
			return nil, fmt.Errorf("array has %d items, want %d", len(items), t.Size)
		}
		var out reflect.Value
		if t.T == abi.SliceTy {
			out = reflect.MakeSlice(t.GetType(), len(items), len(items))
		} else {
			out = reflect.New(t.GetType()).Elem()
		}
		for i, item := range items {
			v, err := Coerce(*t.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out.Index(i).Set(reflect.ValueOf(v))
		}
		return out.Interface(), nil

	case abi.TupleTy:
		items, err := splitJSONArray(s)
		if err != nil {
			return nil, err
		}
		return coerceTuple(t, items)

	default:
		return nil, fmt.Errorf("unsupported abi type %s", t.String())
	}
}

func coerceInteger(t abi.Type, s string) (any, error) {
	n, ok := domain.ParseInteger(s)
	if !ok {
		return nil, fmt.Errorf("%q is not an integer", s)
	}
	if t.T == abi.UintTy {
		if n.Sign() < 0 || n.BitLen() > t.Size {
			return nil, fmt.Errorf("%s out of range for %s", s, t.String())
		}
	} else {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
		minimum := new(big.Int).Neg(limit)
		if n.Cmp(minimum) < 0 || n.Cmp(limit) >= 0 {
			return nil, fmt.Errorf("%s out of range for %s", s, t.String())
		}
	}

	typ := t.GetType()
	if typ == bigIntType {
		return n, nil
	}
	if t.T == abi.UintTy {
		return reflect.ValueOf(n.Uint64()).Convert(typ).Interface(), nil
	}
	return reflect.ValueOf(n.Int64()).Convert(typ).Interface(), nil
}

func coerceTuple(t abi.Type, items []string) (any, error) {
	if len(items) != len(t.TupleElems) {
		return nil, fmt.Errorf("tuple has %d fields, got %d values", len(t.TupleElems), len(items))
	}
	out := reflect.New(t.GetType()).Elem()
	for i, elem := range t.TupleElems {
		v, err := Coerce(*elem, items[i])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", t.TupleRawNames[i], err)
		}
		out.Field(i).Set(reflect.ValueOf(v))
	}
	return out.Interface(), nil
}

// splitJSONArray reads a JSON array whose items may be strings, numbers or
// booleans, returning each as a string. Nested arrays are returned as raw JSON.
func splitJSONArray(s string) ([]string, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("%q is not a JSON array", s)
	}
	out := make([]string, len(raw))
	for i, item := range raw {
		var str string
		if err := json.Unmarshal(item, &str); err == nil {
			out[i] = str
			continue
		}
		out[i] = string(item)
	}
	return out, nil
}
