package resolve

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// MaxPackageIDLength is the longest a package identifier may be.
const MaxPackageIDLength = 32

// A Source records the provenance of a PackageRequest: who asked for the
// package, and through what kind of relation. Every source except the two
// roots holds the request that produced this one, so following sources
// walks a tree that reaches back to direct user intent or a repository.
// Parents are built before anything references them, which keeps the tree
// acyclic by construction.
type Source interface {
	_source()
}

type userRequireSource struct{}
type repositorySource struct{}
type bundledSource struct{ parent *PackageRequest }
type dependencySource struct{ parent *PackageRequest }
type refusedSource struct{ parent *PackageRequest }

func (userRequireSource) _source() {}
func (repositorySource) _source()  {}
func (bundledSource) _source()     {}
func (dependencySource) _source()  {}
func (refusedSource) _source()     {}

// UserRequire is the source of a package the user asked for directly.
func UserRequire() Source { return userRequireSource{} }

// FromRepository is the source of a package surfaced by a repository rather
// than by any requirement.
func FromRepository() Source { return repositorySource{} }

// BundledBy marks a package pulled in because parent bundles it.
func BundledBy(parent *PackageRequest) Source { return bundledSource{parent: parent} }

// DependencyOf marks a package pulled in as a dependency of parent.
func DependencyOf(parent *PackageRequest) Source { return dependencySource{parent: parent} }

// RefusedBy marks a package banned by parent.
func RefusedBy(parent *PackageRequest) Source { return refusedSource{parent: parent} }

// sourcePriority ranks sources for deterministic ordering. Lower sorts
// first.
func sourcePriority(s Source) int {
	switch s.(type) {
	case userRequireSource:
		return 0
	case bundledSource:
		return 1
	case dependencySource:
		return 2
	case refusedSource:
		return 3
	case repositorySource:
		return 4
	}
	panic(fmt.Sprintf("unknown source type %T", s))
}

// parentRequest returns the request that produced s, nil for root sources.
func parentRequest(s Source) *PackageRequest {
	switch src := s.(type) {
	case bundledSource:
		return src.parent
	case dependencySource:
		return src.parent
	case refusedSource:
		return src.parent
	}
	return nil
}

// requirementParent returns the parent only when s is an actual requirement
// edge (dependency or bundle). Refusals are not requirement edges.
func requirementParent(s Source) *PackageRequest {
	switch src := s.(type) {
	case bundledSource:
		return src.parent
	case dependencySource:
		return src.parent
	}
	return nil
}

// sourceIsUserRequired reports whether s is direct user intent: a plain
// user requirement, or bundle hops that terminate in one.
func sourceIsUserRequired(s Source) bool {
	switch src := s.(type) {
	case userRequireSource:
		return true
	case bundledSource:
		return src.parent.IsUserRequired()
	}
	return false
}

// A PackageRequest identifies a desired package: its id, where the desire
// came from, an optional pinned repository, and the content-version pattern
// carried by this particular request.
//
// Identity is the id alone. Two requests with the same id are the same
// package no matter how the other fields differ; every map in the resolver
// keys on the bare id, so all requests for one package collapse onto a
// single dependency record whose version constraints are merged. Comparing
// whole structs, or using requests directly as map keys, will quietly
// duplicate state. The remaining fields take part only in Less, which
// exists to make iteration deterministic.
type PackageRequest struct {
	ID             string
	Source         Source
	Repository     string
	ContentVersion VersionPattern
}

// NewRequest returns a request for id with no repository pin and no version
// constraint.
func NewRequest(id string, source Source) *PackageRequest {
	return &PackageRequest{ID: id, Source: source, ContentVersion: Any()}
}

// ParseRequest reads the "repository:id@version" request form. The
// repository prefix and version suffix are both optional; an empty
// repository before the colon means no pin.
func ParseRequest(s string, source Source) *PackageRequest {
	body := s
	var version string
	if i := strings.IndexByte(body, '@'); i >= 0 {
		body, version = body[:i], body[i+1:]
	}
	var repo string
	if i := strings.IndexByte(body, ':'); i >= 0 {
		repo, body = body[:i], body[i+1:]
	}
	return &PackageRequest{
		ID:             body,
		Source:         source,
		Repository:     repo,
		ContentVersion: ParseVersionPattern(version),
	}
}

// Equal reports whether r and other name the same package.
func (r *PackageRequest) Equal(other *PackageRequest) bool {
	return r.ID == other.ID
}

// Pattern returns the request's version pattern, treating nil as Any.
func (r *PackageRequest) Pattern() VersionPattern {
	if r.ContentVersion == nil {
		return Any()
	}
	return r.ContentVersion
}

// source normalizes a nil Source to FromRepository.
func (r *PackageRequest) source() Source {
	if r.Source == nil {
		return repositorySource{}
	}
	return r.Source
}

// Less orders requests for deterministic iteration: source priority, then
// id, then repository, then version pattern.
func (r *PackageRequest) Less(other *PackageRequest) bool {
	if p, q := sourcePriority(r.source()), sourcePriority(other.source()); p != q {
		return p < q
	}
	if r.ID != other.ID {
		return r.ID < other.ID
	}
	if r.Repository != other.Repository {
		return r.Repository < other.Repository
	}
	return r.Pattern().String() < other.Pattern().String()
}

// IsUserRequired reports whether this request traces to direct user intent
// through nothing but bundling.
func (r *PackageRequest) IsUserRequired() bool {
	return sourceIsUserRequired(r.source())
}

// SourceKind names the provenance kind for serialization.
func (r *PackageRequest) SourceKind() string {
	switch r.source().(type) {
	case userRequireSource:
		return "user-require"
	case bundledSource:
		return "bundled"
	case dependencySource:
		return "dependency"
	case refusedSource:
		return "refused"
	}
	return "repository"
}

func (r *PackageRequest) String() string {
	return r.ID
}

// DebugSources renders the provenance chain root-first: " -> " for
// dependency edges, " => " for bundling, " =X=> " for refusal, and a
// "Repository -> " prefix for repository-sourced requests.
func (r *PackageRequest) DebugSources() string {
	switch src := r.source().(type) {
	case dependencySource:
		return src.parent.DebugSources() + " -> " + r.ID
	case bundledSource:
		return src.parent.DebugSources() + " => " + r.ID
	case refusedSource:
		return src.parent.DebugSources() + " =X=> " + r.ID
	case repositorySource:
		return "Repository -> " + r.ID
	}
	return r.ID
}

// ValidPackageID reports whether id may name a package: nonempty, at most
// MaxPackageIDLength characters, lowercase ASCII letters, digits, and
// hyphens only.
func ValidPackageID(id string) bool {
	if id == "" || len(id) > MaxPackageIDLength {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-':
		default:
			return false
		}
	}
	return true
}

// sortRequests orders a slice by Less, in place.
func sortRequests(reqs []*PackageRequest) {
	sort.Slice(reqs, func(i, j int) bool {
		return reqs[i].Less(reqs[j])
	})
}

// PackageStability selects between stable and bleeding-edge content.
type PackageStability uint8

const (
	// StabilityStable picks released content versions.
	StabilityStable PackageStability = iota
	// StabilityLatest admits development versions as well.
	StabilityLatest
)

func (s PackageStability) String() string {
	if s == StabilityLatest {
		return "latest"
	}
	return "stable"
}

// ParsePackageStability reads "stable" or "latest". The empty string means
// stable.
func ParsePackageStability(s string) (PackageStability, error) {
	switch s {
	case "", "stable":
		return StabilityStable, nil
	case "latest":
		return StabilityLatest, nil
	}
	return StabilityStable, errors.Errorf("unknown package stability %q", s)
}

// MarshalJSON writes the stability's string form.
func (s PackageStability) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON reads the string form.
func (s *PackageStability) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := ParsePackageStability(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalYAML writes the stability's string form.
func (s PackageStability) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// UnmarshalYAML reads the string form.
func (s *PackageStability) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := ParsePackageStability(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
