package crosswalk

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultCodeWidth is the digit width each class value occupies in a
// transition code: before=1, after=2 encodes as "0102".
const DefaultCodeWidth = 2

// ValuePrefix prefixes transition codes in cross-tabulation column names.
const ValuePrefix = "VALUE_"

// Code is a transition code: the before-class value followed by the
// after-class value, each zero-padded to a fixed width.
type Code string

// EncodeCode builds the transition code for before→after at the given width.
func EncodeCode(before, after, width int) (Code, error) {
	b, err := padValue(before, width)
	if err != nil {
		return "", err
	}
	a, err := padValue(after, width)
	if err != nil {
		return "", err
	}
	return Code(b + a), nil
}

// ParseCode splits a transition code into its before and after class values.
func ParseCode(code string, width int) (before, after int, err error) {
	if width <= 0 {
		return 0, 0, eris.Errorf("crosswalk: invalid code width %d", width)
	}
	if len(code) != 2*width {
		return 0, 0, eris.Errorf("crosswalk: code %q is not %d digits", code, 2*width)
	}
	before, err = strconv.Atoi(code[:width])
	if err != nil || before < 0 {
		return 0, 0, eris.Errorf("crosswalk: code %q has a non-numeric before class", code)
	}
	after, err = strconv.Atoi(code[width:])
	if err != nil || after < 0 {
		return 0, 0, eris.Errorf("crosswalk: code %q has a non-numeric after class", code)
	}
	return before, after, nil
}

// Column returns the cross-tabulation column name for c (e.g. VALUE_0102).
func (c Code) Column() string {
	return ValuePrefix + string(c)
}

// CodeFromColumn extracts the transition code from a VALUE_ column name.
func CodeFromColumn(col string) (Code, bool) {
	if len(col) <= len(ValuePrefix) || !strings.EqualFold(col[:len(ValuePrefix)], ValuePrefix) {
		return "", false
	}
	return Code(col[len(ValuePrefix):]), true
}

func padValue(v, width int) (string, error) {
	if width <= 0 {
		return "", eris.Errorf("crosswalk: invalid code width %d", width)
	}
	if v < 0 {
		return "", eris.Errorf("crosswalk: class value %d is negative", v)
	}
	s := strconv.Itoa(v)
	if len(s) > width {
		return "", eris.Errorf("crosswalk: class value %d exceeds code width %d", v, width)
	}
	return strings.Repeat("0", width-len(s)) + s, nil
}
