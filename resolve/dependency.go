package resolve

// DependencyKind ranks how strongly a package is required. Kinds only ever
// move upward as new requirements for the same package arrive.
type DependencyKind uint8

const (
	// KindRequire is an ordinary transitive dependency.
	KindRequire DependencyKind = iota
	// KindBundled is a package pulled in by another package that bundles
	// it.
	KindBundled
	// KindUserRequire is a package the user configured directly.
	KindUserRequire
)

func (k DependencyKind) String() string {
	switch k {
	case KindBundled:
		return "bundled"
	case KindUserRequire:
		return "user-require"
	}
	return "require"
}

// A Dependency accumulates everything the resolver has learned about one
// package id: the first request seen for it, the strongest kind of
// requirement so far, and the version constraints gathered from every
// requester. Records are created on first requirement and never removed.
type Dependency struct {
	Pkg  *PackageRequest
	Kind DependencyKind

	// Raw patterns awaiting canonicalization, their canonical forms, and
	// the originals already translated so nothing is sent twice.
	uncanonicalized      []VersionPattern
	canonicalized        []VersionPattern
	alreadyCanonicalized []VersionPattern

	// userRequired is set once any requirement arrives whose source chain
	// is direct user intent; it gates explicit dependencies.
	userRequired bool

	// evalFailed is set when this package's evaluation failed under an
	// optional chain; such records are withheld from the final package
	// list until a later evaluation succeeds.
	evalFailed bool
}

// raiseKind moves the kind upward only.
func (d *Dependency) raiseKind(k DependencyKind) {
	if k > d.Kind {
		d.Kind = k
	}
}

// hasConstraint reports whether pat is already tracked in any of the three
// constraint lists.
func (d *Dependency) hasConstraint(pat VersionPattern) bool {
	for _, list := range [][]VersionPattern{d.uncanonicalized, d.canonicalized, d.alreadyCanonicalized} {
		for _, p := range list {
			if patternsEqual(p, pat) {
				return true
			}
		}
	}
	return false
}

// addConstraint tracks a new raw version pattern. Any-patterns and
// duplicates are ignored. Reports whether the set of constraints grew.
func (d *Dependency) addConstraint(pat VersionPattern) bool {
	if isAny(pat) || d.hasConstraint(pat) {
		return false
	}
	d.uncanonicalized = append(d.uncanonicalized, pat)
	return true
}

// constraints returns the canonical constraints plus any still awaiting
// translation, for error reporting.
func (d *Dependency) constraints() []VersionPattern {
	out := make([]VersionPattern, 0, len(d.canonicalized)+len(d.uncanonicalized))
	out = append(out, d.canonicalized...)
	out = append(out, d.uncanonicalized...)
	return out
}
