// SPDX-FileCopyrightText: 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package protocol

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
)

// IsSubset checks if every key of subset is present in msg with an equal value.
//
// A nil value in subset only requires the key to be present in msg, whatever its value. A nested object in subset
// recurses into the same check against msg's nested object. An empty subset matches everything. Numbers are equal by
// value across json.Number and Go's numeric types. Arrays are compared element-wise for equality, without any subset
// semantics.
func IsSubset(msg, subset Message) bool {
	for key, want := range subset {
		got, exists := msg[key]
		if !exists {
			return false
		}

		if want == nil {
			continue
		}

		if wantMap, ok := AsMap(want); ok {
			if gotMap, ok := AsMap(got); !ok || !IsSubset(gotMap, wantMap) {
				return false
			}
			continue
		}

		if !valuesEqual(got, want) {
			return false
		}
	}

	return true
}

// valuesEqual compares two decoded JSON values.
func valuesEqual(a, b interface{}) bool {
	if na, ok := canonicalNumber(a); ok {
		nb, ok := canonicalNumber(b)
		return ok && na == nb
	}

	if aMap, ok := AsMap(a); ok {
		bMap, ok := AsMap(b)
		if !ok || len(aMap) != len(bMap) {
			return false
		}
		for k, av := range aMap {
			if bv, exists := bMap[k]; !exists || !valuesEqual(av, bv) {
				return false
			}
		}
		return true
	}

	if aSlice, ok := a.([]interface{}); ok {
		bSlice, ok := b.([]interface{})
		if !ok || len(aSlice) != len(bSlice) {
			return false
		}
		for i := range aSlice {
			if !valuesEqual(aSlice[i], bSlice[i]) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(a, b)
}

// canonicalNumber renders a numeric value into a comparable string. Integral values are written as integers.
func canonicalNumber(v interface{}) (string, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return strconv.FormatUint(u, 10), true
		}
		if f, err := n.Float64(); err == nil {
			return canonicalFloat(f), true
		}
		return n.String(), true
	case float64:
		return canonicalFloat(n), true
	case float32:
		return canonicalFloat(float64(n)), true
	case int:
		return strconv.FormatInt(int64(n), 10), true
	case int8:
		return strconv.FormatInt(int64(n), 10), true
	case int16:
		return strconv.FormatInt(int64(n), 10), true
	case int32:
		return strconv.FormatInt(int64(n), 10), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case uint:
		return strconv.FormatUint(uint64(n), 10), true
	case uint8:
		return strconv.FormatUint(uint64(n), 10), true
	case uint16:
		return strconv.FormatUint(uint64(n), 10), true
	case uint32:
		return strconv.FormatUint(uint64(n), 10), true
	case uint64:
		return strconv.FormatUint(n, 10), true
	default:
		return "", false
	}
}

func canonicalFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Matcher decides if an incoming Message is the one a caller waits for.
type Matcher interface {
	Match(msg Message) bool
}

// Subset is a Matcher based on IsSubset. An empty Subset matches every Message.
type Subset Message

// Match checks if msg contains this Subset.
func (s Subset) Match(msg Message) bool {
	return IsSubset(msg, Message(s))
}

// MatchFunc adapts a function to the Matcher interface.
type MatchFunc func(msg Message) bool

// Match calls f(msg).
func (f MatchFunc) Match(msg Message) bool {
	return f(msg)
}

// AnyOf matches if at least one of its Matchers matches. A nil Matcher inside matches everything.
func AnyOf(matchers ...Matcher) Matcher {
	return MatchFunc(func(msg Message) bool {
		for _, m := range matchers {
			if m == nil || m.Match(msg) {
				return true
			}
		}
		return false
	})
}

// Kind matches messages of one of the given "janus" kinds.
func Kind(kinds ...string) Matcher {
	return MatchFunc(func(msg Message) bool {
		janus := msg.Janus()
		for _, kind := range kinds {
			if janus == kind {
				return true
			}
		}
		return false
	})
}

// ErrorShape matches a gateway error reply carrying both code and reason.
var ErrorShape = Subset{
	FieldJanus: KindError,
	FieldError: map[string]interface{}{
		"code":   nil,
		"reason": nil,
	},
}

// All matches every Message.
var All Matcher = Subset{}
