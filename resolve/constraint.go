package resolve

// A constraint is a global rule contributed by an evaluated package and
// checked against the evolving set of required packages. The resolver's
// constraint list is append-only.
type constraint interface {
	_constraint()
}

// refuseConstraint bans its target from ever becoming required. The
// target's source names the package that declared the conflict.
type refuseConstraint struct {
	target *PackageRequest
}

// recommendConstraint is a soft preference for its target, or against it
// when inverted. Checked only after resolution completes; never an error.
type recommendConstraint struct {
	target *PackageRequest
	invert bool
}

// compatConstraint obliges obligation to become required whenever trigger
// is. Rechecked after every task so late triggers still take effect.
type compatConstraint struct {
	trigger    *PackageRequest
	obligation *PackageRequest
}

// extendConstraint requires its target to be present by the end of
// resolution, no matter through what path.
type extendConstraint struct {
	target *PackageRequest
}

func (refuseConstraint) _constraint()    {}
func (recommendConstraint) _constraint() {}
func (compatConstraint) _constraint()    {}
func (extendConstraint) _constraint()    {}
