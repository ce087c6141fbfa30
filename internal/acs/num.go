// Package acs provides American Community Survey table definitions and
// the nullable numeric type used for every census field.
package acs

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Num is a nullable float64. The zero value is null.
type Num struct {
	v  float64
	ok bool
}

// Null is the null Num.
var Null = Num{}

// Of returns a valid Num holding v. NaN and infinities are stored as null.
func Of(v float64) Num {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Null
	}
	return Num{v: v, ok: true}
}

// Valid reports whether n holds a value.
func (n Num) Valid() bool { return n.ok }

// Float returns the value and whether it is valid.
func (n Num) Float() (float64, bool) { return n.v, n.ok }

// OrNaN returns the value, or NaN when null.
func (n Num) OrNaN() float64 {
	if !n.ok {
		return math.NaN()
	}
	return n.v
}

// Add returns n + o, null if either is null.
func (n Num) Add(o Num) Num {
	if !n.ok || !o.ok {
		return Null
	}
	return Of(n.v + o.v)
}

// Sub returns n - o, null if either is null.
func (n Num) Sub(o Num) Num {
	if !n.ok || !o.ok {
		return Null
	}
	return Of(n.v - o.v)
}

// Div returns n / d. The result is null when either operand is null or d is zero.
func (n Num) Div(d Num) Num {
	if !n.ok || !d.ok || d.v == 0 {
		return Null
	}
	return Of(n.v / d.v)
}

// Scale returns n * k, null if n is null.
func (n Num) Scale(k float64) Num {
	if !n.ok {
		return Null
	}
	return Of(n.v * k)
}

// Greater reports n > o. A null on either side compares false.
func (n Num) Greater(o Num) bool {
	return n.ok && o.ok && n.v > o.v
}

// Sum adds all values; null if any is null.
func Sum(vals ...Num) Num {
	out := Of(0)
	for _, v := range vals {
		out = out.Add(v)
	}
	return out
}

// Sentinels are the ACS annotation values the API returns in place of an
// estimate (too few samples, not applicable, and so on).
var Sentinels = map[float64]bool{
	-999999999: true,
	-888888888: true,
	-666666666: true,
	-555555555: true,
	-333333333: true,
	-222222222: true,
}

// Parse coerces a raw census value to a Num. Empty, unparseable and
// sentinel values become null.
func Parse(s string) Num {
	s = strings.TrimSpace(s)
	if s == "" {
		return Null
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Null
	}
	if Sentinels[f] {
		return Null
	}
	return Of(f)
}

func (n Num) String() string {
	if !n.ok {
		return "null"
	}
	return strconv.FormatFloat(n.v, 'f', -1, 64)
}

// MarshalJSON encodes null as JSON null.
func (n Num) MarshalJSON() ([]byte, error) {
	if !n.ok {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(n.v, 'g', -1, 64)), nil
}

// UnmarshalJSON accepts a number, a numeric string or null.
func (n *Num) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = Null
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		if Sentinels[f] {
			*n = Null
			return nil
		}
		*n = Of(f)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = Parse(s)
		return nil
	}

	// Silently ignore anything else (objects, bools).
	*n = Null
	return nil
}
