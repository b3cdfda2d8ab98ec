package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// NumParams is the number of numeric arguments a transform is described by.
const NumParams = 6

// Params are the numeric arguments of a transform in command line order: x, y, z, roll, pitch, yaw.
// Angles are in radians.
type Params [NumParams]float64

// Translation returns x, y and z.
func (p Params) Translation() (x, y, z float64) {
	return p[0], p[1], p[2]
}

// RPY returns roll, pitch and yaw.
func (p Params) RPY() (roll, pitch, yaw float64) {
	return p[3], p[4], p[5]
}

func (p Params) finite() Params {
	for i, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			p[i] = 0
		}
	}
	return p
}

// ParsePolicy decides what happens to numeric text that is not a number.
type ParsePolicy int

const (
	// LenientZeroFallback converts text the way C's atof does: the longest numeric prefix is
	// used and text without one becomes 0. It never fails. Unlike atof, text that reads as NaN
	// or overflows to infinity also becomes 0 since it cannot describe a transform.
	LenientZeroFallback ParsePolicy = iota
	// Strict rejects any text that is not entirely a finite number with a *ParseError.
	Strict
)

func (p ParsePolicy) String() string {
	switch p {
	case LenientZeroFallback:
		return "lenient"
	case Strict:
		return "strict"
	}
	return fmt.Sprintf("ParsePolicy(%d)", int(p))
}

// ErrParamCount is returned when the wrong number of numeric arguments is supplied.
var ErrParamCount = errors.Errorf("exactly %d numeric parameters are required (x y z roll pitch yaw)", NumParams)

// ErrNonFinite is the cause of a *ParseError for text that reads as NaN or infinity.
var ErrNonFinite = errors.New("value must be finite")

// ParseError reports a numeric argument rejected by the Strict policy.
type ParseError struct {
	Index int
	Text  string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parameter %d (%q) is not a number: %v", e.Index, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseParams converts exactly NumParams strings to Params under policy.
func ParseParams(args []string, policy ParsePolicy) (Params, error) {
	var params Params
	if len(args) != NumParams {
		return params, errors.Wrapf(ErrParamCount, "got %d", len(args))
	}
	for i, arg := range args {
		switch policy {
		case Strict:
			v, err := cast.ToFloat64E(strings.TrimSpace(arg))
			if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
				err = ErrNonFinite
			}
			if err != nil {
				return Params{}, &ParseError{Index: i, Text: arg, Err: err}
			}
			params[i] = v
		default:
			params[i] = Atof(arg)
		}
	}
	return params.finite(), nil
}

// Atof mirrors C's atof. Leading whitespace is skipped and the longest prefix that reads as a
// floating point number is converted, hexadecimal ones included with or without a p exponent.
// Text with no such prefix is 0 and values out of range saturate to ±Inf.
func Atof(s string) float64 {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	for end := len(s); end > 0; end-- {
		prefix := s[:end]
		if strings.ContainsRune(prefix, '_') {
			// ParseFloat accepts digit separators in some forms; atof never does.
			continue
		}
		v, err := strconv.ParseFloat(prefix, 64)
		if err != nil && isHexMantissa(prefix) {
			v, err = strconv.ParseFloat(prefix+"p0", 64)
		}
		if err == nil {
			return v
		}
		if errors.Is(err, strconv.ErrRange) {
			return v
		}
	}
	return 0
}

// isHexMantissa reports whether s starts like a hexadecimal float but has no binary exponent,
// which strconv requires and atof does not.
func isHexMantissa(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) > 2 && (strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) && !strings.ContainsAny(s, "pP")
}
