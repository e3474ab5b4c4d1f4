package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// MatchMode selects how a client supplied product id is turned into a catalog key.
type MatchMode string

const (
	// MatchStrict accepts only JSON numbers with an integral value.
	MatchStrict MatchMode = "strict"
	// MatchLoose coerces numbers and strings the way JavaScript's parseInt does:
	// "3abc" -> 3, " 0x3" -> 3, 3.9 -> 3, 1e-7 -> 1.
	MatchLoose MatchMode = "loose"
)

// NoProduct is returned by loose matching when the input coerces to NaN.
// No catalog entry can carry it, so the lookup reports not found.
const NoProduct = math.MinInt

var ErrMalformedProductID = errors.New("malformed product id")

// Valid reports whether m is a known match mode.
func (m MatchMode) Valid() bool {
	return m == MatchStrict || m == MatchLoose
}

// ResolveProductID converts a decoded JSON value (decoded with UseNumber) into a product id.
func ResolveProductID(raw any, mode MatchMode) (int, error) {
	if mode == MatchLoose {
		return looseID(raw), nil
	}
	n, ok := raw.(json.Number)
	if !ok {
		return 0, fmt.Errorf("%w: expected integer, got %T", ErrMalformedProductID, raw)
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s", ErrMalformedProductID, n)
	}
	return int(f), nil
}

func looseID(raw any) int {
	switch v := raw.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return parseInt(string(v))
		}
		return parseInt(jsNumberString(f))
	case float64:
		return parseInt(jsNumberString(v))
	case string:
		return parseInt(v)
	default:
		// null, booleans, objects and arrays all stringify to something without digits.
		return NoProduct
	}
}

// jsNumberString approximates Number.prototype.toString closely enough for parseInt:
// exponent notation below 1e-6 and from 1e21 upwards, plain decimals otherwise.
func jsNumberString(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "NaN"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseInt(s string) int {
	s = strings.TrimLeftFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\ufeff'
	})
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	base := 10
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base = 16
		s = s[2:]
	}
	end := 0
	for end < len(s) && digitValue(s[end]) < base {
		end++
	}
	if end == 0 {
		return NoProduct
	}
	v, err := strconv.ParseInt(s[:end], base, 64)
	if err != nil || v > math.MaxInt32 {
		return NoProduct
	}
	if neg {
		v = -v
	}
	return int(v)
}

func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return 99
	}
}
