package nitro

import (
	"bytes"
	"crypto/sha256"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/Nitrolaunch/nitrolaunch-sub000/resolve"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// ProfileName is the profile file name used by nitro.
const ProfileName = "nitro.toml"

// Profile holds profile file data: the packages the user asked for and the
// override policy that shapes their resolution.
type Profile struct {
	Name      string
	Packages  []PackageEntry
	Overrides resolve.Overrides
}

// PackageEntry is one configured package from the profile. It carries the
// user's request plus the per-package settings applied during evaluation.
// An empty Stability means the profile-wide stability is inherited.
type PackageEntry struct {
	Req       *resolve.PackageRequest
	Optional  bool
	Features  []string
	Stability string
}

// GetPackage returns the user's request for this entry.
func (e PackageEntry) GetPackage() *resolve.PackageRequest { return e.Req }

// IsOptional reports whether failures under this entry may be absorbed.
func (e PackageEntry) IsOptional() bool { return e.Optional }

// OverrideConfiguredPackageInput layers the entry's features and stability
// onto the eval input for its package. Requested features must appear in
// the package's declared feature list.
func (e PackageEntry) OverrideConfiguredPackageInput(props resolve.PackageProperties, input resolve.EvalInput) error {
	if len(e.Features) == 0 && e.Stability == "" {
		return nil
	}
	params, ok := input.(*resolve.EvalParameters)
	if !ok {
		return errors.Errorf("cannot configure eval input of type %T", input)
	}
	for _, f := range e.Features {
		if !stringInSlice(props.Features, f) {
			return errors.Errorf("package %s does not provide feature %q", e.Req.ID, f)
		}
		if !stringInSlice(params.Features, f) {
			params.Features = append(params.Features, f)
		}
	}
	if e.Stability != "" {
		stab, err := resolve.ParsePackageStability(e.Stability)
		if err != nil {
			return errors.Wrapf(err, "package %s", e.Req.ID)
		}
		params.Stability = stab
	}
	return nil
}

// ConfiguredPackages adapts the profile's entries to the resolver's input
// interface.
func (p *Profile) ConfiguredPackages() []resolve.ConfiguredPackage {
	out := make([]resolve.ConfiguredPackage, 0, len(p.Packages))
	for _, e := range p.Packages {
		out = append(out, e)
	}
	return out
}

// InputsDigest computes a digest of all profile inputs to a resolution.
//
// The digest is stored in the lock; if a stored digest no longer matches
// the profile's, the lock is stale and a fresh resolution is needed.
func (p *Profile) InputsDigest() []byte {
	lines := make([]string, 0, len(p.Packages))
	for _, e := range p.Packages {
		features := append([]string(nil), e.Features...)
		sort.Strings(features)
		lines = append(lines, strings.Join([]string{
			e.Req.Repository,
			e.Req.ID,
			e.Req.Pattern().String(),
			strconv.FormatBool(e.Optional),
			strings.Join(features, ","),
			e.Stability,
		}, "\x1f"))
	}
	sort.Strings(lines)

	h := sha256.New()
	for _, l := range lines {
		h.Write([]byte(l))
		h.Write([]byte{'\n'})
	}
	for _, list := range [][]string{p.Overrides.Suppress, p.Overrides.Force} {
		ids := append([]string(nil), list...)
		sort.Strings(ids)
		h.Write([]byte(strings.Join(ids, ",")))
		h.Write([]byte{'\n'})
	}
	return h.Sum(nil)
}

type rawProfile struct {
	Profile   rawProfileMeta `toml:"profile"`
	Packages  []rawPackage   `toml:"package,omitempty"`
	Overrides rawOverrides   `toml:"overrides,omitempty"`
}

type rawProfileMeta struct {
	Name string `toml:"name"`
}

type rawPackage struct {
	ID        string   `toml:"id"`
	Optional  bool     `toml:"optional,omitempty"`
	Features  []string `toml:"features,omitempty"`
	Stability string   `toml:"stability,omitempty"`
}

type rawOverrides struct {
	Suppress []string `toml:"suppress,omitempty"`
	Force    []string `toml:"force,omitempty"`
}

// ReadProfile returns a Profile read from r.
func ReadProfile(r io.Reader) (*Profile, error) {
	buf := &bytes.Buffer{}
	_, err := buf.ReadFrom(r)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to read byte stream")
	}
	raw := rawProfile{}
	err = toml.Unmarshal(buf.Bytes(), &raw)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to parse the profile as TOML")
	}

	return fromRawProfile(raw)
}

func fromRawProfile(raw rawProfile) (*Profile, error) {
	p := &Profile{
		Name: raw.Profile.Name,
		Overrides: resolve.Overrides{
			Suppress: raw.Overrides.Suppress,
			Force:    raw.Overrides.Force,
		},
	}

	seen := map[string]bool{}
	for _, rp := range raw.Packages {
		req := resolve.ParseRequest(rp.ID, resolve.UserRequire())
		if !resolve.ValidPackageID(req.ID) {
			return nil, errors.Errorf("invalid package id in %q", rp.ID)
		}
		if seen[req.ID] {
			return nil, errors.Errorf("package %q is configured twice", req.ID)
		}
		seen[req.ID] = true
		if _, err := resolve.ParsePackageStability(rp.Stability); err != nil {
			return nil, errors.Wrapf(err, "package %q", req.ID)
		}
		p.Packages = append(p.Packages, PackageEntry{
			Req:       req,
			Optional:  rp.Optional,
			Features:  rp.Features,
			Stability: rp.Stability,
		})
	}
	return p, nil
}

// toRaw converts the profile into a representation suitable to write to
// the profile file.
func (p *Profile) toRaw() rawProfile {
	raw := rawProfile{
		Profile: rawProfileMeta{Name: p.Name},
		Overrides: rawOverrides{
			Suppress: p.Overrides.Suppress,
			Force:    p.Overrides.Force,
		},
	}
	for _, e := range p.Packages {
		id := e.Req.ID
		if e.Req.Repository != "" {
			id = e.Req.Repository + ":" + id
		}
		if pat := e.Req.Pattern().String(); pat != "*" {
			id = id + "@" + pat
		}
		raw.Packages = append(raw.Packages, rawPackage{
			ID:        id,
			Optional:  e.Optional,
			Features:  e.Features,
			Stability: e.Stability,
		})
	}
	return raw
}

// MarshalTOML serializes this profile into TOML via an intermediate raw
// form.
func (p *Profile) MarshalTOML() ([]byte, error) {
	raw := p.toRaw()
	result, err := toml.Marshal(raw)
	return result, errors.Wrap(err, "Unable to marshal the profile to TOML string")
}

func stringInSlice(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
