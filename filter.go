package bridge

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/unitbridge/unitbridge/types"
)

// RegexList is an ordered set of compiled name patterns.
type RegexList struct {
	patterns []*regexp.Regexp
}

func (r RegexList) String() string {
	var ss []string
	for _, p := range r.patterns {
		ss = append(ss, `"`+p.String()+`"`)
	}
	return strings.Join(ss, " or ")
}

// Add compiles one pattern and appends it to the list.
func (r *RegexList) Add(value string) error {
	rx, err := regexp.Compile(value)
	if err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	r.patterns = append(r.patterns, rx)
	return nil
}

func (r RegexList) IsDefined() bool {
	return len(r.patterns) != 0
}

func (r RegexList) AnyMatch(s string) bool {
	for _, p := range r.patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// NewRegexList compiles a list of patterns; an empty input yields an
// undefined list that matches everything.
func NewRegexList(patterns []string) (RegexList, error) {
	var list RegexList
	for _, p := range patterns {
		if err := list.Add(p); err != nil {
			return RegexList{}, err
		}
	}
	return list, nil
}

// FilterCases returns the descriptors whose display name matches the list,
// preserving order. An undefined list keeps every case.
func FilterCases(cases []types.TestCaseDescriptor, list RegexList) []types.TestCaseDescriptor {
	if !list.IsDefined() {
		return cases
	}
	var out []types.TestCaseDescriptor
	for _, c := range cases {
		if list.AnyMatch(c.Name) {
			out = append(out, c)
		}
	}
	return out
}
