// Package version validates and compares ALARM package versions.
//
// A package version is the upstream dotted triple MAJOR.MINOR.PATCH, optionally
// followed by "-N" where N is the mirror's repackaging revision (the suffix).
package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var pattern = regexp.MustCompile(`^\d+\.\d+\.\d+($|-\d+$)`)

// NoSuffix is the Suffix value of a version without a repackaging revision.
const NoSuffix = -1

// Version is a validated package version.
type Version struct {
	Raw    string
	Base   string // dotted triple
	Suffix int    // NoSuffix when absent
}

// Validate reports whether s is MAJOR.MINOR.PATCH with an optional numeric "-N" suffix.
func Validate(s string) bool {
	return pattern.MatchString(s)
}

// Parse validates s and splits it into its dotted triple and suffix.
func Parse(s string) (Version, error) {
	if !Validate(s) {
		return Version{}, fmt.Errorf("invalid version %q: expected MAJOR.MINOR.PATCH[-N]", s)
	}
	v := Version{Raw: s, Base: StripSuffix(s), Suffix: NoSuffix}
	if n, ok := Suffix(s); ok {
		v.Suffix = n
	}
	return v, nil
}

// StripSuffix returns the dotted triple of s.
func StripSuffix(s string) string {
	if i := strings.LastIndex(s, "-"); i >= 0 {
		return s[:i]
	}
	return s
}

// Suffix returns the integer after the last "-" in s.
func Suffix(s string) (int, bool) {
	i := strings.LastIndex(s, "-")
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// HasSuffix reports whether the version carries a repackaging revision.
func (v Version) HasSuffix() bool {
	return v.Suffix != NoSuffix
}

func (v Version) String() string {
	return v.Raw
}

// CompareSuffix orders a and b by their numeric suffix. A missing suffix sorts first.
func CompareSuffix(a, b string) int {
	sa, oka := Suffix(a)
	sb, okb := Suffix(b)
	if !oka {
		sa = NoSuffix
	}
	if !okb {
		sb = NoSuffix
	}
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}
