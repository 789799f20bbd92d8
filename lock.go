package nitro

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/Nitrolaunch/nitrolaunch-sub000/resolve"
	"github.com/pkg/errors"
)

// LockName is the lock file name used by nitro.
const LockName = "nitro.lock.json"

// lockVersion is the current lock file format version.
const lockVersion = 1

// Lock pins the outcome of a resolution: the digest of the profile inputs
// it was computed from and the full resolved package set.
type Lock struct {
	Digest          []byte
	Packages        []LockedPackage
	Recommendations []LockedRecommendation
}

// LockedPackage is one resolved package pinned by a lock. Version is the
// narrowed version pattern the package resolved under, empty when it was
// unconstrained.
type LockedPackage struct {
	ID         string
	Repository string
	Version    string
	Source     string
}

// LockedRecommendation records a recommendation that went unfulfilled at
// resolution time, so callers can resurface it without resolving again.
type LockedRecommendation struct {
	ID     string
	Invert bool
}

type rawLock struct {
	Version         int                 `json:"version"`
	Digest          string              `json:"inputs-digest"`
	Packages        []rawLocked         `json:"packages"`
	Recommendations []rawRecommendation `json:"recommendations,omitempty"`
}

type rawLocked struct {
	ID         string `json:"id"`
	Repository string `json:"repository,omitempty"`
	Version    string `json:"version,omitempty"`
	Source     string `json:"source"`
}

type rawRecommendation struct {
	ID     string `json:"id"`
	Invert bool   `json:"invert,omitempty"`
}

// ReadLock returns a Lock read from r.
func ReadLock(r io.Reader) (*Lock, error) {
	rl := rawLock{}
	err := json.NewDecoder(r).Decode(&rl)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to parse the lock as JSON")
	}
	if rl.Version != lockVersion {
		return nil, errors.Errorf("unsupported lock file version %d", rl.Version)
	}

	b, err := hex.DecodeString(rl.Digest)
	if err != nil {
		return nil, errors.New("invalid hash digest in lock's inputs-digest field")
	}
	l := &Lock{
		Digest:   b,
		Packages: make([]LockedPackage, len(rl.Packages)),
	}

	for i, lp := range rl.Packages {
		if !resolve.ValidPackageID(lp.ID) {
			return nil, errors.Errorf("lock file has entry with invalid package id %q", lp.ID)
		}
		l.Packages[i] = LockedPackage{
			ID:         lp.ID,
			Repository: lp.Repository,
			Version:    lp.Version,
			Source:     lp.Source,
		}
	}
	for _, rr := range rl.Recommendations {
		l.Recommendations = append(l.Recommendations, LockedRecommendation{ID: rr.ID, Invert: rr.Invert})
	}

	return l, nil
}

// NewLockFromResolution converts a resolution result into a lock carrying
// digest.
//
// Data is defensively copied wherever necessary to ensure the resulting
// lock shares no memory with the result.
func NewLockFromResolution(digest []byte, res *resolve.ResolutionResult) *Lock {
	if res == nil {
		return nil
	}

	l := &Lock{
		Digest:   make([]byte, len(digest)),
		Packages: make([]LockedPackage, len(res.Packages)),
	}
	copy(l.Digest, digest)

	for i, req := range res.Packages {
		v := req.Pattern().String()
		if v == "*" {
			v = ""
		}
		l.Packages[i] = LockedPackage{
			ID:         req.ID,
			Repository: req.Repository,
			Version:    v,
			Source:     req.SourceKind(),
		}
	}
	for _, rec := range res.UnfulfilledRecommendations {
		l.Recommendations = append(l.Recommendations, LockedRecommendation{
			ID:     rec.Req.ID,
			Invert: rec.Invert,
		})
	}
	return l
}

func (l *Lock) MarshalJSON() ([]byte, error) {
	raw := rawLock{
		Version:  lockVersion,
		Digest:   hex.EncodeToString(l.Digest),
		Packages: make([]rawLocked, len(l.Packages)),
	}

	sort.Sort(SortedLockedPackages(l.Packages))

	for k, lp := range l.Packages {
		raw.Packages[k] = rawLocked{
			ID:         lp.ID,
			Repository: lp.Repository,
			Version:    lp.Version,
			Source:     lp.Source,
		}
	}
	for _, lr := range l.Recommendations {
		raw.Recommendations = append(raw.Recommendations, rawRecommendation{
			ID:     lr.ID,
			Invert: lr.Invert,
		})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	err := enc.Encode(raw)

	return buf.Bytes(), err
}

// WriteLockSafe writes l to path atomically. The payload lands in a
// temporary file in the same directory first and is renamed over path only
// after a complete write, so a crash never leaves a truncated lock.
func WriteLockSafe(path string, l *Lock) error {
	b, err := l.MarshalJSON()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+LockName+".*")
	if err != nil {
		return errors.Wrapf(err, "Unable to create temp lock file in %s", dir)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, "Unable to write lock to %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "Unable to close lock file %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "Unable to move lock file into place at %s", path)
	}
	return nil
}

type SortedLockedPackages []LockedPackage

func (s SortedLockedPackages) Len() int      { return len(s) }
func (s SortedLockedPackages) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s SortedLockedPackages) Less(i, j int) bool {
	if s[i].ID != s[j].ID {
		return s[i].ID < s[j].ID
	}
	return s[i].Repository < s[j].Repository
}

// LocksAreEqual compares two locks to see if they differ. If EITHER lock
// is nil, or their digests do not match, or any packages differ, then
// false is returned.
func LocksAreEqual(l, r *Lock) bool {
	if l == nil || r == nil {
		return false
	}

	if !bytes.Equal(l.Digest, r.Digest) {
		return false
	}

	if len(l.Packages) != len(r.Packages) {
		return false
	}

	sort.Sort(SortedLockedPackages(l.Packages))
	sort.Sort(SortedLockedPackages(r.Packages))

	for k, lp := range l.Packages {
		if lp != r.Packages[k] {
			return false
		}
	}

	return true
}
