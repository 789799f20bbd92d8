package resolve

import "strings"

// A VersionPattern expresses the constraint a request places on the content
// version of a package. Content versions are opaque strings; there are only
// three kinds of pattern: match anything, match one version exactly, or
// admit anything while marking one version as preferred.
//
// It has a private method so the set of patterns stays closed; the resolver
// switches over the concrete types exhaustively.
type VersionPattern interface {
	// Match returns the candidates admitted by this pattern, preserving
	// their input order.
	Match(candidates []string) []string
	String() string
	_pattern()
}

// Any returns the pattern matching every version.
func Any() VersionPattern {
	return anyVersion{}
}

// Single returns the pattern matching exactly v.
func Single(v string) VersionPattern {
	return singleVersion(v)
}

// Prefer returns the pattern matching every version while expressing a
// preference for v.
func Prefer(v string) VersionPattern {
	return preferVersion(v)
}

// ParseVersionPattern reads the string form of a pattern: "" and "*" mean
// any version, a leading "~" marks a preference, and anything else is an
// exact version.
func ParseVersionPattern(s string) VersionPattern {
	switch {
	case s == "" || s == "*":
		return anyVersion{}
	case strings.HasPrefix(s, "~"):
		return preferVersion(strings.TrimPrefix(s, "~"))
	default:
		return singleVersion(s)
	}
}

type anyVersion struct{}

func (anyVersion) Match(candidates []string) []string { return candidates }
func (anyVersion) String() string                     { return "*" }
func (anyVersion) _pattern()                          {}

type singleVersion string

func (v singleVersion) Match(candidates []string) []string {
	var out []string
	for _, c := range candidates {
		if c == string(v) {
			out = append(out, c)
		}
	}
	return out
}

func (v singleVersion) String() string { return string(v) }
func (singleVersion) _pattern()        {}

type preferVersion string

func (v preferVersion) Match(candidates []string) []string { return candidates }
func (v preferVersion) String() string                     { return "~" + string(v) }
func (preferVersion) _pattern()                            {}

// isAny reports whether p places no constraint at all. A nil pattern is
// treated as Any.
func isAny(p VersionPattern) bool {
	if p == nil {
		return true
	}
	_, ok := p.(anyVersion)
	return ok
}

// preferredVersion extracts the version named by a Prefer pattern.
func preferredVersion(p VersionPattern) (string, bool) {
	v, ok := p.(preferVersion)
	return string(v), ok
}

// patternsEqual compares two patterns by their canonical string form.
func patternsEqual(a, b VersionPattern) bool {
	if a == nil || b == nil {
		return isAny(a) && isAny(b)
	}
	return a.String() == b.String()
}
