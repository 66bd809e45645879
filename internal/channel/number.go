package channel

import (
	"fmt"
	"strconv"
	"strings"
)

// Number is a channel number position consisting of a major number and an
// optional sub number (ATSC style "12.1"). The zero value is invalid:
// a Number with major 0 means "unset".
type Number struct {
	major uint
	sub   uint
}

// NewNumber creates a Number from a major and sub number.
func NewNumber(major, sub uint) Number {
	return Number{major: major, sub: sub}
}

// ParseNumber parses the canonical "major" or "major.sub" form.
func ParseNumber(s string) (Number, error) {
	majorPart, subPart, hasSub := strings.Cut(s, ".")

	major, err := strconv.ParseUint(majorPart, 10, 32)
	if err != nil || major == 0 {
		return Number{}, fmt.Errorf("invalid channel number %q", s)
	}

	var sub uint64
	if hasSub {
		sub, err = strconv.ParseUint(subPart, 10, 32)
		if err != nil {
			return Number{}, fmt.Errorf("invalid channel number %q", s)
		}
	}
	return Number{major: uint(major), sub: uint(sub)}, nil
}

// Major returns the major part of the number.
func (n Number) Major() uint {
	return n.major
}

// Sub returns the sub part of the number.
func (n Number) Sub() uint {
	return n.sub
}

// IsValid reports whether the number denotes a real position.
// A number with major 0 is unset.
func (n Number) IsValid() bool {
	return n.major > 0
}

// Less orders numbers lexicographically by (major, sub).
func (n Number) Less(other Number) bool {
	if n.major != other.major {
		return n.major < other.major
	}
	return n.sub < other.sub
}

// String renders the canonical form: "major", or "major.sub" when the
// sub number is set.
func (n Number) String() string {
	if n.sub > 0 {
		return strconv.FormatUint(uint64(n.major), 10) + "." + strconv.FormatUint(uint64(n.sub), 10)
	}
	return strconv.FormatUint(uint64(n.major), 10)
}
