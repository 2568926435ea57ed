package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// Predicate tests a single event field. present reports whether the field
// exists on the event at all.
type Predicate interface {
	Match(value string, present bool) bool
	String() string
}

type exact string

// Exact matches a field whose value equals s (case-sensitive).
func Exact(s string) Predicate { return exact(s) }

func (p exact) Match(v string, present bool) bool { return present && v == string(p) }
func (p exact) String() string                    { return fmt.Sprintf("%q", string(p)) }

type pattern struct{ re *regexp.Regexp }

// Pattern matches a field whose value matches re. The match is unanchored
// unless the expression anchors itself.
func Pattern(re *regexp.Regexp) Predicate { return pattern{re: re} }

// MustPattern compiles expr and panics on error. For static tables only.
func MustPattern(expr string) Predicate { return Pattern(regexp.MustCompile(expr)) }

func (p pattern) Match(v string, present bool) bool { return present && p.re.MatchString(v) }
func (p pattern) String() string                    { return "re:" + p.re.String() }

type anyValue struct{}

// Any matches any value as long as the field is present.
func Any() Predicate { return anyValue{} }

func (anyValue) Match(_ string, present bool) bool { return present }
func (anyValue) String() string                    { return "*" }

type optional struct{ inner Predicate }

// Optional lets an absent field pass; a present field must satisfy p.
func Optional(p Predicate) Predicate { return optional{inner: p} }

func (p optional) Match(v string, present bool) bool {
	if !present {
		return true
	}
	return p.inner.Match(v, true)
}
func (p optional) String() string { return "?" + p.inner.String() }

// ParsePredicate parses the configuration syntax for a field predicate:
//
//	"*"          any value, field required
//	"re:<expr>"  regular expression
//	"?<pred>"    field may be absent
//	anything else is an exact match
func ParsePredicate(s string) (Predicate, error) {
	if rest, ok := strings.CutPrefix(s, "?"); ok {
		inner, err := ParsePredicate(rest)
		if err != nil {
			return nil, err
		}
		return Optional(inner), nil
	}
	if s == "*" {
		return Any(), nil
	}
	if expr, ok := strings.CutPrefix(s, "re:"); ok {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compiling pattern %q: %w", expr, err)
		}
		return Pattern(re), nil
	}
	return Exact(s), nil
}
