package resolve

import (
	"reflect"
	"testing"
)

func TestParseVersionPattern(t *testing.T) {
	table := []struct {
		in  string
		out string
	}{
		{"", "*"},
		{"*", "*"},
		{"1.19.2", "1.19.2"},
		{"~1.19.2", "~1.19.2"},
		{"~", "~"},
	}
	for _, tc := range table {
		if got := ParseVersionPattern(tc.in).String(); got != tc.out {
			t.Errorf("ParseVersionPattern(%q) = %q, wanted %q", tc.in, got, tc.out)
		}
	}
}

func TestVersionPatternMatch(t *testing.T) {
	candidates := []string{"1.0", "1.1", "2.0"}

	if got := Any().Match(candidates); !reflect.DeepEqual(got, candidates) {
		t.Errorf("Any().Match = %v, wanted passthrough", got)
	}
	if got := Single("1.1").Match(candidates); !reflect.DeepEqual(got, []string{"1.1"}) {
		t.Errorf("Single(1.1).Match = %v, wanted [1.1]", got)
	}
	if got := Single("3.0").Match(candidates); got != nil {
		t.Errorf("Single(3.0).Match = %v, wanted nothing", got)
	}
	if got := Prefer("2.0").Match(candidates); !reflect.DeepEqual(got, candidates) {
		t.Errorf("Prefer(2.0).Match = %v, wanted passthrough", got)
	}
}

func TestVersionPatternHelpers(t *testing.T) {
	if !isAny(nil) || !isAny(Any()) {
		t.Error("nil and Any() should both count as unconstrained")
	}
	if isAny(Single("1.0")) || isAny(Prefer("1.0")) {
		t.Error("constrained patterns counted as unconstrained")
	}

	if v, ok := preferredVersion(Prefer("2.0")); !ok || v != "2.0" {
		t.Errorf("preferredVersion(Prefer(2.0)) = %q, %t", v, ok)
	}
	if _, ok := preferredVersion(Single("2.0")); ok {
		t.Error("Single pattern reported a preference")
	}

	if !patternsEqual(nil, Any()) || !patternsEqual(nil, nil) {
		t.Error("nil patterns should equal Any")
	}
	if !patternsEqual(Single("1.0"), Single("1.0")) {
		t.Error("identical singles compared unequal")
	}
	if patternsEqual(Single("1.0"), Prefer("1.0")) {
		t.Error("single and prefer for the same version compared equal")
	}
}
