package resolve

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// A PackageFlag is a quality or safety marker a repository attaches to a
// package.
type PackageFlag string

const (
	FlagOutOfDate  PackageFlag = "out_of_date"
	FlagDeprecated PackageFlag = "deprecated"
	FlagInsecure   PackageFlag = "insecure"
	FlagMalicious  PackageFlag = "malicious"
)

// PackageRelations is the relation set a package declares in repository
// metadata. Kept declarative: nothing here is computed by running package
// content.
type PackageRelations struct {
	Dependencies         []string             `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	ExplicitDependencies []string             `json:"explicit_dependencies,omitempty" yaml:"explicit_dependencies,omitempty"`
	Conflicts            []string             `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
	Extensions           []string             `json:"extensions,omitempty" yaml:"extensions,omitempty"`
	Bundled              []string             `json:"bundled,omitempty" yaml:"bundled,omitempty"`
	Compats              [][2]string          `json:"compats,omitempty" yaml:"compats,omitempty"`
	Recommendations      []RecommendedPackage `json:"recommendations,omitempty" yaml:"recommendations,omitempty"`
}

// merge folds other's relations into a copy of r.
func (r PackageRelations) merge(other PackageRelations) PackageRelations {
	out := r
	out.Dependencies = append(append([]string(nil), r.Dependencies...), other.Dependencies...)
	out.ExplicitDependencies = append(append([]string(nil), r.ExplicitDependencies...), other.ExplicitDependencies...)
	out.Conflicts = append(append([]string(nil), r.Conflicts...), other.Conflicts...)
	out.Extensions = append(append([]string(nil), r.Extensions...), other.Extensions...)
	out.Bundled = append(append([]string(nil), r.Bundled...), other.Bundled...)
	out.Compats = append(append([][2]string(nil), r.Compats...), other.Compats...)
	out.Recommendations = append(append([]RecommendedPackage(nil), r.Recommendations...), other.Recommendations...)
	return out
}

// ConditionalRelations declares relations that apply only when the package
// is being installed at one of the named content versions.
type ConditionalRelations struct {
	ContentVersions []string         `json:"content_versions,omitempty" yaml:"content_versions,omitempty"`
	Relations       PackageRelations `json:"relations,omitempty" yaml:"relations,omitempty"`
}

// IndexEntry is one package's record in a repository index.
type IndexEntry struct {
	Kind                 string                 `json:"kind,omitempty" yaml:"kind,omitempty"`
	Categories           []string               `json:"categories,omitempty" yaml:"categories,omitempty"`
	Aliases              []string               `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Properties           PackageProperties      `json:"properties,omitempty" yaml:"properties,omitempty"`
	Relations            PackageRelations       `json:"relations,omitempty" yaml:"relations,omitempty"`
	ConditionalRelations []ConditionalRelations `json:"conditional_relations,omitempty" yaml:"conditional_relations,omitempty"`
	Flags                []PackageFlag          `json:"flags,omitempty" yaml:"flags,omitempty"`
}

// hasFlag reports whether the entry carries flag.
func (e IndexEntry) hasFlag(flag PackageFlag) bool {
	for _, f := range e.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// RepoMetadata describes a repository as a whole.
type RepoMetadata struct {
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// NitroVersion is the minimum launcher version the repository's
	// packages expect, as a semver string. Empty means no requirement.
	NitroVersion      string   `json:"nitro_version,omitempty" yaml:"nitro_version,omitempty"`
	PackageTypes      []string `json:"package_types,omitempty" yaml:"package_types,omitempty"`
	PackageCategories []string `json:"package_categories,omitempty" yaml:"package_categories,omitempty"`
}

// RepoIndex is the file format of a repository index.
type RepoIndex struct {
	Metadata RepoMetadata          `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Packages map[string]IndexEntry `json:"packages,omitempty" yaml:"packages,omitempty"`
}

// A Repository serves declarative package metadata. Implementations must be
// safe for concurrent use; the registry queries repositories from multiple
// goroutines during preloading.
type Repository interface {
	// ID returns the repository's stable identifier, the string requests
	// pin with their repository field.
	ID() string

	Metadata(ctx context.Context) (RepoMetadata, error)

	// AllEntries returns every package in the index. The map is the
	// caller's to keep.
	AllEntries(ctx context.Context) (map[string]IndexEntry, error)

	// Query returns the entry for id and whether the repository has it.
	Query(ctx context.Context, id string) (IndexEntry, bool, error)

	// Refresh rescans the repository's backing store.
	Refresh(ctx context.Context) error
}

// MemRepository is an in-memory Repository, used programmatically and in
// tests.
type MemRepository struct {
	id string

	mu   sync.RWMutex
	meta RepoMetadata
	pkgs map[string]IndexEntry
}

func NewMemRepository(id string, meta RepoMetadata) *MemRepository {
	return &MemRepository{
		id:   id,
		meta: meta,
		pkgs: make(map[string]IndexEntry),
	}
}

// Put adds or replaces the entry for id.
func (r *MemRepository) Put(id string, e IndexEntry) {
	r.mu.Lock()
	r.pkgs[id] = e
	r.mu.Unlock()
}

func (r *MemRepository) ID() string { return r.id }

func (r *MemRepository) Metadata(ctx context.Context) (RepoMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.meta, nil
}

func (r *MemRepository) AllEntries(ctx context.Context) (map[string]IndexEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]IndexEntry, len(r.pkgs))
	for id, e := range r.pkgs {
		out[id] = e
	}
	return out, nil
}

func (r *MemRepository) Query(ctx context.Context, id string) (IndexEntry, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, has := r.pkgs[id]
	return e, has, nil
}

func (r *MemRepository) Refresh(ctx context.Context) error { return nil }

// DirRepository reads a repository from a directory holding an index file
// (index.json or index.yaml) plus optional per-package metadata files
// (<id>.json / <id>.yaml) that override index entries.
type DirRepository struct {
	id   string
	root string

	mu    sync.RWMutex
	index RepoIndex
}

// NewDirRepository opens the repository rooted at dir and performs the
// initial scan.
func NewDirRepository(id, dir string) (*DirRepository, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve repository root %s", dir)
	}
	r := &DirRepository{id: id, root: root}
	if err := r.Refresh(context.Background()); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *DirRepository) ID() string { return r.id }

func (r *DirRepository) Metadata(ctx context.Context) (RepoMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index.Metadata, nil
}

func (r *DirRepository) AllEntries(ctx context.Context) (map[string]IndexEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]IndexEntry, len(r.index.Packages))
	for id, e := range r.index.Packages {
		out[id] = e
	}
	return out, nil
}

func (r *DirRepository) Query(ctx context.Context, id string) (IndexEntry, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, has := r.index.Packages[id]
	return e, has, nil
}

// Refresh reloads the index file, then walks the directory for per-package
// metadata files layered on top of it.
func (r *DirRepository) Refresh(ctx context.Context) error {
	index, err := r.loadIndex()
	if err != nil {
		return err
	}
	if index.Packages == nil {
		index.Packages = make(map[string]IndexEntry)
	}

	err = godirwalk.Walk(r.root, &godirwalk.Options{
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if de.IsDir() || de.IsSymlink() {
				return nil
			}
			rel, err := filepath.Rel(r.root, osPathname)
			if err != nil || strings.HasPrefix(rel, "..") {
				// Outside the root; never trust it.
				return nil
			}
			id, isYAML, ok := entryFileID(osPathname)
			if !ok {
				return nil
			}
			e, err := readEntryFile(osPathname, isYAML)
			if err != nil {
				return err
			}
			index.Packages[id] = e
			return nil
		},
		Unsorted: true,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to scan repository %s", r.id)
	}

	for id := range index.Packages {
		if !ValidPackageID(id) {
			return errors.Errorf("invalid package id %q in repository %s", id, r.id)
		}
	}

	r.mu.Lock()
	r.index = index
	r.mu.Unlock()
	return nil
}

func (r *DirRepository) loadIndex() (RepoIndex, error) {
	for _, name := range []string{"index.json", "index.yaml"} {
		path := filepath.Join(r.root, name)
		f, err := os.Open(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return RepoIndex{}, errors.Wrapf(err, "failed to open repository index %s", path)
		}
		defer f.Close()
		index, err := readRepoIndex(f, strings.HasSuffix(name, ".yaml"))
		return index, errors.Wrapf(err, "failed to read repository index %s", path)
	}
	return RepoIndex{}, errors.Errorf("repository %s has no index file under %s", r.id, r.root)
}

// entryFileID maps a metadata file path to the package id it describes.
// Anything that is not <valid-id>.json or <valid-id>.yaml is ignored, as is
// the index file itself.
func entryFileID(path string) (id string, isYAML, ok bool) {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, ".json"):
		id = strings.TrimSuffix(base, ".json")
	case strings.HasSuffix(base, ".yaml"):
		id = strings.TrimSuffix(base, ".yaml")
		isYAML = true
	default:
		return "", false, false
	}
	if id == "index" || !ValidPackageID(id) {
		return "", false, false
	}
	return id, isYAML, true
}

func readEntryFile(path string, isYAML bool) (IndexEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return IndexEntry{}, errors.Wrapf(err, "failed to open package metadata %s", path)
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return IndexEntry{}, errors.Wrapf(err, "failed to read package metadata %s", path)
	}
	var e IndexEntry
	if isYAML {
		err = yaml.Unmarshal(buf.Bytes(), &e)
	} else {
		err = json.Unmarshal(buf.Bytes(), &e)
	}
	return e, errors.Wrapf(err, "failed to decode package metadata %s", path)
}

// readRepoIndex decodes a repository index from r.
func readRepoIndex(r io.Reader, isYAML bool) (RepoIndex, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return RepoIndex{}, errors.Wrap(err, "failed to read index byte stream")
	}
	var index RepoIndex
	var err error
	if isYAML {
		err = yaml.Unmarshal(buf.Bytes(), &index)
	} else {
		err = json.Unmarshal(buf.Bytes(), &index)
	}
	if err != nil {
		return RepoIndex{}, errors.Wrap(err, "failed to decode index")
	}
	return index, nil
}
