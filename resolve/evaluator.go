package resolve

import "context"

// PackageProperties is the declared metadata the resolver and its callers
// need about a package. Only ContentVersions matters to resolution itself;
// the rest feeds caller-side input overrides and search.
type PackageProperties struct {
	// ContentVersions lists the published versions of the package's
	// content, in the repository's declared order. Nil means the package
	// does not version its content.
	ContentVersions []string `json:"content_versions,omitempty" yaml:"content_versions,omitempty"`

	SupportedSides   []string         `json:"supported_sides,omitempty" yaml:"supported_sides,omitempty"`
	SupportedLoaders []string         `json:"supported_loaders,omitempty" yaml:"supported_loaders,omitempty"`
	Stability        PackageStability `json:"stability,omitempty" yaml:"stability,omitempty"`
	Features         []string         `json:"features,omitempty" yaml:"features,omitempty"`
	DefaultFeatures  []string         `json:"default_features,omitempty" yaml:"default_features,omitempty"`
	Tags             []string         `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// RequiredPackage is one entry of a dependency group returned by
// evaluation. Explicit entries assert that the user must have opted in to
// the target themselves.
type RequiredPackage struct {
	Value    string
	Explicit bool
}

// RecommendedPackage is a soft suggestion returned by evaluation; Invert
// turns it into a recommendation against the package.
type RecommendedPackage struct {
	Value  string `json:"value" yaml:"value"`
	Invert bool   `json:"invert,omitempty" yaml:"invert,omitempty"`
}

// RelationsResult is everything a package's evaluation reports about other
// packages.
type RelationsResult struct {
	Conflicts []string
	// Deps is grouped the way the package declared it; the resolver
	// flattens the groups, which carry no alternative semantics.
	Deps            [][]RequiredPackage
	Bundled         []string
	Compats         [][2]string
	Extensions      []string
	Recommendations []RecommendedPackage
}

// A PackageEvaluator supplies package knowledge to the resolver: batched
// warm-up, property lookup, relation evaluation, and rewriting of requests
// into their displayable forms. The resolver issues at most one call at a
// time; any internal concurrency belongs to the implementation.
type PackageEvaluator interface {
	// PreloadPackages warms the evaluator's backing store for a batch of
	// package ids. Failure aborts resolution.
	PreloadPackages(ctx context.Context, ids []string) error

	// GetPackageProperties returns the declared properties of req.
	GetPackageProperties(ctx context.Context, req *PackageRequest) (PackageProperties, error)

	// EvalPackageRelations reports the package's relations under input.
	EvalPackageRelations(ctx context.Context, req *PackageRequest, input EvalInput) (RelationsResult, error)

	// MakeRequestDisplayable rewrites req into the form meant for users,
	// resolving id and version aliases. Unknown requests come back
	// unchanged.
	MakeRequestDisplayable(ctx context.Context, req *PackageRequest) *PackageRequest
}

// EvalInput carries the per-package evaluation parameters. The resolver
// clones the caller's prototype for every package, narrows it to the
// admissible content versions, and applies per-package configuration on
// top.
type EvalInput interface {
	Clone() EvalInput
	SetContentVersions(required, preferred []string)
	SetForce(force bool)
}

// A ConfiguredPackage is one entry of the caller's package list.
type ConfiguredPackage interface {
	GetPackage() *PackageRequest
	IsOptional() bool
	// OverrideConfiguredPackageInput applies this entry's configuration
	// to the input about to be used for its package.
	OverrideConfiguredPackageInput(props PackageProperties, input EvalInput) error
}

// Overrides is the caller's override policy. Suppressed packages are
// ignored entirely, even when other packages depend on them; forced
// packages evaluate with the force flag set.
type Overrides struct {
	Suppress []string
	Force    []string
}

func (o Overrides) suppressed(id string) bool { return containsString(o.Suppress, id) }
func (o Overrides) forced(id string) bool     { return containsString(o.Force, id) }

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// EvalParameters is the standard EvalInput. The registry understands it,
// and profile entries override its features and stability per package.
type EvalParameters struct {
	Side              string
	Loader            string
	Features          []string
	Stability         PackageStability
	RequiredVersions  []string
	PreferredVersions []string
	Force             bool
}

// Clone returns a deep copy so per-package mutations never leak into the
// caller's prototype.
func (p *EvalParameters) Clone() EvalInput {
	out := *p
	out.Features = append([]string(nil), p.Features...)
	out.RequiredVersions = append([]string(nil), p.RequiredVersions...)
	out.PreferredVersions = append([]string(nil), p.PreferredVersions...)
	return &out
}

// SetContentVersions narrows the input to the versions resolution computed
// as admissible and preferred.
func (p *EvalParameters) SetContentVersions(required, preferred []string) {
	p.RequiredVersions = required
	p.PreferredVersions = preferred
}

// SetForce marks the package as force-installed.
func (p *EvalParameters) SetForce(force bool) {
	p.Force = force
}
