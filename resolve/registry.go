package resolve

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/termie/go-shutil"
	"github.com/theckman/go-flock"
)

// launcherVersion is the version repositories compare their declared
// minimum against.
const launcherVersion = "0.5.0"

// metadataCacheMaxAge bounds how old cached metadata may be before the
// registry goes back to the repository.
const metadataCacheMaxAge = 7 * 24 * time.Hour

// LocalRepoID names the registry's writable repository, the target of
// ImportLocal.
const LocalRepoID = "local"

// latestVersionAlias is the version string requests may use to mean the
// newest published content version.
const latestVersionAlias = "latest"

// Registry is the shipped PackageEvaluator. It serves declarative package
// metadata from an ordered repository list: earlier repositories win when
// several carry the same id, and a request's pinned repository restricts
// the lookup to that repository alone. Lookups go hot map, then metadata
// cache, then repository; the registry never fetches package content and
// never executes it.
//
// A Registry takes an exclusive lock on its cache directory for its whole
// lifetime. Callers must Release it when done.
type Registry struct {
	cachedir string
	lf       *flock.Flock
	cache    *metadataCache
	callMgr  *callManager
	logger   *logrus.Logger

	// repos is in precedence order and never mutated after construction.
	repos []Repository

	mu      sync.RWMutex // guards index, aliases and hot
	index   pkgTrie
	aliases map[string]string
	hot     map[hotKey]IndexEntry

	relonce   sync.Once
	releasing int32 // flag indicating release of the registry has begun
}

// hotKey addresses one preloaded entry.
type hotKey struct {
	repo, id string
}

type registryIsReleased struct{}

func (registryIsReleased) Error() string {
	return "this Registry has been released, its methods can no longer be called"
}

// CouldNotAcquireLockError describes failure modes in which creating a
// Registry did not succeed because the on-disk cache lock could not be
// taken.
type CouldNotAcquireLockError struct {
	Path string
	Err  error
}

func (e CouldNotAcquireLockError) Error() string {
	return e.Err.Error()
}

var _ PackageEvaluator = &Registry{}

// NewRegistry opens a registry over the given repositories, locking
// cachedir and opening the metadata cache underneath it. Repositories are
// consulted in the order given.
func NewRegistry(cachedir string, logger *logrus.Logger, repos ...Repository) (*Registry, error) {
	if logger == nil {
		logger = logrus.New()
	}
	seen := make(map[string]bool)
	for _, repo := range repos {
		if seen[repo.ID()] {
			return nil, errors.Errorf("duplicate repository id %q", repo.ID())
		}
		seen[repo.ID()] = true
	}

	if err := os.MkdirAll(cachedir, 0777); err != nil {
		return nil, errors.Wrapf(err, "failed to create cache directory %s", cachedir)
	}

	glpath := filepath.Join(cachedir, "nitro.lock")
	lf := flock.NewFlock(glpath)
	locked, err := lf.TryLock()
	if err != nil {
		return nil, CouldNotAcquireLockError{
			Path: glpath,
			Err:  errors.Wrapf(err, "err on attempting to take cache lock %s", glpath),
		}
	}
	if !locked {
		return nil, CouldNotAcquireLockError{
			Path: glpath,
			Err:  errors.Errorf("cache lock %s is held - another process is using this cache directory?", glpath),
		}
	}

	epoch := time.Now().Add(-metadataCacheMaxAge).Unix()
	cache, err := newMetadataCache(cachedir, epoch, logger)
	if err != nil {
		lf.Unlock()
		return nil, err
	}

	r := &Registry{
		cachedir: cachedir,
		lf:       lf,
		cache:    cache,
		callMgr:  newCallManager(context.Background()),
		logger:   logger,
		repos:    repos,
	}

	if err := r.rebuildIndex(context.Background()); err != nil {
		cache.close()
		lf.Unlock()
		return nil, err
	}
	for _, repo := range repos {
		meta, err := repo.Metadata(context.Background())
		if err != nil {
			cache.close()
			lf.Unlock()
			return nil, errors.Wrapf(err, "failed to read metadata of repository %s", repo.ID())
		}
		r.checkRepoVersion(repo.ID(), meta)
	}

	return r, nil
}

// Release lets go of the cache lock and all other resources held by the
// Registry. Once called, it is no longer safe to call methods against it;
// all method calls will immediately result in errors.
func (r *Registry) Release() {
	// Set releasing before entering the Once func to guarantee that no
	// _more_ method calls will stack up if/while waiting.
	atomic.CompareAndSwapInt32(&r.releasing, 0, 1)
	r.relonce.Do(func() { r.doRelease() })
}

// doRelease actually releases physical resources (files on disk, etc.).
//
// This must be called only and exactly once. Calls to it should be wrapped
// in the relonce sync.Once instance.
func (r *Registry) doRelease() {
	// Cancel all running calls and wait for them to drain.
	r.callMgr.cancelFunc()
	r.callMgr.wait()

	if err := r.cache.close(); err != nil {
		r.logger.WithError(err).Warn("failed to close metadata cache")
	}
	if err := r.lf.Unlock(); err != nil {
		r.logger.WithError(err).Warn("failed to release cache lock")
	}
	os.Remove(r.lf.Path())
}

func (r *Registry) released() bool {
	return atomic.CompareAndSwapInt32(&r.releasing, 1, 1)
}

// checkRepoVersion warns when a repository wants a newer launcher than
// this one. The repository is still consulted.
func (r *Registry) checkRepoVersion(id string, meta RepoMetadata) {
	if meta.NitroVersion == "" {
		return
	}
	want, err := semver.NewVersion(meta.NitroVersion)
	if err != nil {
		r.logger.Warnf("repository %q declares unparseable launcher version %q", id, meta.NitroVersion)
		return
	}
	have, err := semver.NewVersion(launcherVersion)
	if err != nil {
		return
	}
	if have.LessThan(want) {
		r.logger.Warnf("repository %q wants launcher %s or newer, this is %s; its packages may not work", id, meta.NitroVersion, launcherVersion)
	}
}

// rebuildIndex rescans every repository into the search index and alias
// table, reverse precedence order so earlier repositories win collisions.
// The hot map is dropped since its entries may no longer match the index.
func (r *Registry) rebuildIndex(ctx context.Context) error {
	index := newPkgTrie()
	aliases := make(map[string]string)
	for i := len(r.repos) - 1; i >= 0; i-- {
		repo := r.repos[i]
		var entries map[string]IndexEntry
		err := r.callMgr.do(ctx, repo.ID(), ctListEntries, func(ctx context.Context) error {
			var err error
			entries, err = repo.AllEntries(ctx)
			return err
		})
		if err != nil {
			return errors.Wrapf(err, "failed to list repository %s", repo.ID())
		}

		ids := make([]string, 0, len(entries))
		for id := range entries {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			e := entries[id]
			index.Insert(id, searchRecord{repo: repo.ID(), entry: e})
			for _, a := range e.Aliases {
				aliases[a] = id
			}
		}
	}

	r.mu.Lock()
	r.index = index
	r.aliases = aliases
	r.hot = make(map[hotKey]IndexEntry)
	r.mu.Unlock()

	if r.logger.Level >= logrus.DebugLevel {
		r.logger.WithFields(logrus.Fields{
			"packages": index.Len(),
			"aliases":  len(aliases),
		}).Debug("rebuilt registry index")
	}
	return nil
}

// Refresh rescans every repository and rebuilds the search index.
func (r *Registry) Refresh(ctx context.Context) error {
	if r.released() {
		return registryIsReleased{}
	}
	for _, repo := range r.repos {
		if err := r.callMgr.do(ctx, repo.ID(), ctRefreshIndex, repo.Refresh); err != nil {
			return errors.Wrapf(err, "failed to refresh repository %s", repo.ID())
		}
	}
	return r.rebuildIndex(ctx)
}

// PreloadPackages warms the hot map and the metadata cache for a batch of
// ids in one round trip per owning repository, fanned out concurrently.
// Ids no repository carries are skipped; they surface later as property
// lookup failures.
func (r *Registry) PreloadPackages(ctx context.Context, ids []string) error {
	if r.released() {
		return registryIsReleased{}
	}

	byRepo := make(map[string][]string)
	r.mu.RLock()
	for _, id := range ids {
		cid := id
		if canon, has := r.aliases[id]; has {
			cid = canon
		}
		if rec, has := r.index.Get(cid); has {
			byRepo[rec.repo] = append(byRepo[rec.repo], cid)
		} else if r.logger.Level >= logrus.DebugLevel {
			r.logger.WithFields(logrus.Fields{
				"pkg": id,
			}).Debug("preload skipping unknown package")
		}
	}
	r.mu.RUnlock()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		fetched  = make(map[hotKey]IndexEntry)
	)
	for repoID, rids := range byRepo {
		repo := r.repoByID(repoID)
		if repo == nil {
			continue
		}
		wg.Add(1)
		go func(repo Repository, rids []string) {
			defer wg.Done()
			err := r.callMgr.do(ctx, repo.ID(), ctQueryPackage, func(ctx context.Context) error {
				for _, id := range rids {
					e, has, err := repo.Query(ctx, id)
					if err != nil {
						return errors.Wrapf(err, "failed to query repository %q for %q", repo.ID(), id)
					}
					if !has {
						continue
					}
					mu.Lock()
					fetched[hotKey{repo: repo.ID(), id: id}] = e
					mu.Unlock()
				}
				return nil
			})
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(repo, rids)
	}
	wg.Wait()
	if firstErr != nil {
		return firstErr
	}

	r.mu.Lock()
	for k, e := range fetched {
		r.hot[k] = e
	}
	r.mu.Unlock()
	for k, e := range fetched {
		r.cache.setEntry(k.repo, k.id, e)
		for _, flag := range []PackageFlag{FlagMalicious, FlagInsecure} {
			if e.hasFlag(flag) {
				r.logger.Warnf("package %q is flagged %s by repository %q", k.id, flag, k.repo)
			}
		}
	}

	if r.logger.Level >= logrus.DebugLevel {
		r.logger.WithFields(logrus.Fields{
			"requested": len(ids),
			"fetched":   len(fetched),
		}).Debug("preloaded packages")
	}
	return nil
}

// GetPackageProperties serves the declared properties of req's package:
// hot map, then cache, then owning repository.
func (r *Registry) GetPackageProperties(ctx context.Context, req *PackageRequest) (PackageProperties, error) {
	if r.released() {
		return PackageProperties{}, registryIsReleased{}
	}
	id := r.canonicalID(req.ID)
	repoID, err := r.ownerOf(id, req.Repository)
	if err != nil {
		return PackageProperties{}, err
	}
	if e, has := r.hotEntry(repoID, id); has {
		return e.Properties, nil
	}
	if props, has := r.cache.getProperties(repoID, id); has {
		return props, nil
	}
	e, err := r.queryEntry(ctx, repoID, id)
	if err != nil {
		return PackageProperties{}, err
	}
	return e.Properties, nil
}

// EvalPackageRelations serves the package's declared relations. Relation
// blocks conditioned on content versions apply only when the condition
// intersects the input's required versions; nothing here ever runs package
// content.
func (r *Registry) EvalPackageRelations(ctx context.Context, req *PackageRequest, input EvalInput) (RelationsResult, error) {
	if r.released() {
		return RelationsResult{}, registryIsReleased{}
	}
	id := r.canonicalID(req.ID)
	repoID, err := r.ownerOf(id, req.Repository)
	if err != nil {
		return RelationsResult{}, err
	}

	var declared PackageRelations
	var conditional []ConditionalRelations
	if e, has := r.hotEntry(repoID, id); has {
		declared, conditional = e.Relations, e.ConditionalRelations
	} else if rels, cond, has := r.cache.getRelations(repoID, id); has {
		declared, conditional = rels, cond
	} else {
		e, err := r.queryEntry(ctx, repoID, id)
		if err != nil {
			return RelationsResult{}, err
		}
		declared, conditional = e.Relations, e.ConditionalRelations
	}

	rels := declared
	if len(conditional) > 0 {
		if params, ok := input.(*EvalParameters); ok {
			for _, cr := range conditional {
				if versionsIntersect(cr.ContentVersions, params.RequiredVersions) {
					rels = rels.merge(cr.Relations)
				}
			}
		} else if r.logger.Level >= logrus.DebugLevel {
			r.logger.WithFields(logrus.Fields{
				"pkg": id,
			}).Debug("input carries no version information, skipping conditional relations")
		}
	}
	return relationsResultOf(rels), nil
}

// MakeRequestDisplayable rewrites req into its canonical user-facing form:
// alias ids become the id they stand for, and the "latest" version alias
// becomes the newest published version. Unknown requests come back
// unchanged.
func (r *Registry) MakeRequestDisplayable(ctx context.Context, req *PackageRequest) *PackageRequest {
	if req == nil || r.released() {
		return req
	}

	id := r.canonicalID(req.ID)
	pattern := req.Pattern()
	switch p := pattern.(type) {
	case singleVersion:
		if string(p) == latestVersionAlias {
			if latest, ok := r.latestPublished(ctx, req.Repository, id); ok {
				pattern = Single(latest)
			}
		}
	case preferVersion:
		if string(p) == latestVersionAlias {
			if latest, ok := r.latestPublished(ctx, req.Repository, id); ok {
				pattern = Prefer(latest)
			}
		}
	}

	if id == req.ID && patternsEqual(pattern, req.ContentVersion) {
		return req
	}
	out := *req
	out.ID = id
	out.ContentVersion = pattern
	return &out
}

// Search returns matching package ids in deterministic order.
func (r *Registry) Search(params PackageSearchParameters) []string {
	if r.released() {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index.search(params)
}

// ImportLocal copies the package metadata directory at dir into the
// registry's local repository and refreshes it. The directory's base name
// is the package id; only metadata files belong in a repository, content
// archives are never imported.
func (r *Registry) ImportLocal(ctx context.Context, dir string) error {
	if r.released() {
		return registryIsReleased{}
	}
	id := filepath.Base(filepath.Clean(dir))
	if !ValidPackageID(id) {
		return errors.Errorf("%q is not a valid package id", id)
	}
	local := r.repoByID(LocalRepoID)
	if local == nil {
		return errors.Errorf("registry has no %q repository to import into", LocalRepoID)
	}
	dr, ok := local.(*DirRepository)
	if !ok {
		return errors.Errorf("%q repository does not accept imports", LocalRepoID)
	}

	dst := filepath.Join(dr.root, id)
	if _, err := os.Stat(dst); err == nil {
		return errors.Errorf("package %q is already imported", id)
	}

	cfg := &shutil.CopyTreeOptions{
		Symlinks:     true,
		CopyFunction: shutil.Copy,
		Ignore: func(src string, contents []os.FileInfo) (ignore []string) {
			for _, fi := range contents {
				if !fi.IsDir() {
					continue
				}
				switch n := fi.Name(); n {
				case ".git", ".svn", ".hg":
					ignore = append(ignore, n)
				}
			}
			return
		},
	}
	if err := shutil.CopyTree(dir, dst, cfg); err != nil {
		return errors.Wrapf(err, "failed to copy package %q into local repository", id)
	}

	if err := r.callMgr.do(ctx, LocalRepoID, ctRefreshIndex, dr.Refresh); err != nil {
		return errors.Wrap(err, "failed to refresh local repository")
	}
	return r.rebuildIndex(ctx)
}

// canonicalID maps an alias to the id it stands for. Other ids map to
// themselves.
func (r *Registry) canonicalID(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if canon, has := r.aliases[id]; has {
		return canon
	}
	return id
}

// ownerOf returns the repository that serves id: the pinned one when the
// request carries a pin, the highest-precedence carrier otherwise.
func (r *Registry) ownerOf(id, pin string) (string, error) {
	if pin != "" {
		if r.repoByID(pin) == nil {
			return "", errors.Errorf("unknown repository %q", pin)
		}
		return pin, nil
	}
	r.mu.RLock()
	rec, has := r.index.Get(id)
	r.mu.RUnlock()
	if !has {
		return "", errors.Errorf("unknown package %q", id)
	}
	return rec.repo, nil
}

func (r *Registry) repoByID(id string) Repository {
	for _, repo := range r.repos {
		if repo.ID() == id {
			return repo
		}
	}
	return nil
}

func (r *Registry) hotEntry(repoID, id string) (IndexEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, has := r.hot[hotKey{repo: repoID, id: id}]
	return e, has
}

// queryEntry asks the repository directly and records the answer in the
// hot map and the metadata cache.
func (r *Registry) queryEntry(ctx context.Context, repoID, id string) (IndexEntry, error) {
	repo := r.repoByID(repoID)
	if repo == nil {
		return IndexEntry{}, errors.Errorf("unknown repository %q", repoID)
	}
	var e IndexEntry
	var has bool
	err := r.callMgr.do(ctx, id, ctQueryPackage, func(ctx context.Context) error {
		var err error
		e, has, err = repo.Query(ctx, id)
		return err
	})
	if err != nil {
		return IndexEntry{}, errors.Wrapf(err, "failed to query repository %q for %q", repoID, id)
	}
	if !has {
		return IndexEntry{}, errors.Errorf("package %q not found in repository %q", id, repoID)
	}

	r.mu.Lock()
	r.hot[hotKey{repo: repoID, id: id}] = e
	r.mu.Unlock()
	r.cache.setEntry(repoID, id, e)
	return e, nil
}

// latestPublished returns the newest published content version of id,
// taking the published list's last element.
func (r *Registry) latestPublished(ctx context.Context, pin, id string) (string, bool) {
	repoID, err := r.ownerOf(id, pin)
	if err != nil {
		return "", false
	}
	var props PackageProperties
	if e, has := r.hotEntry(repoID, id); has {
		props = e.Properties
	} else if p, has := r.cache.getProperties(repoID, id); has {
		props = p
	} else if e, err := r.queryEntry(ctx, repoID, id); err == nil {
		props = e.Properties
	} else {
		return "", false
	}
	if len(props.ContentVersions) == 0 {
		return "", false
	}
	return props.ContentVersions[len(props.ContentVersions)-1], true
}

// versionsIntersect reports whether the two version lists share an
// element. An empty condition list matches any version.
func versionsIntersect(cond, have []string) bool {
	if len(cond) == 0 {
		return true
	}
	for _, v := range cond {
		if containsString(have, v) {
			return true
		}
	}
	return false
}

// relationsResultOf lowers declared relations to the evaluator result
// form. Plain and explicit dependencies become separate groups; the
// resolver flattens them.
func relationsResultOf(rels PackageRelations) RelationsResult {
	out := RelationsResult{
		Conflicts:       rels.Conflicts,
		Bundled:         rels.Bundled,
		Compats:         rels.Compats,
		Extensions:      rels.Extensions,
		Recommendations: rels.Recommendations,
	}
	var group []RequiredPackage
	for _, id := range rels.Dependencies {
		group = append(group, RequiredPackage{Value: id})
	}
	if len(group) > 0 {
		out.Deps = append(out.Deps, group)
	}
	var explicit []RequiredPackage
	for _, id := range rels.ExplicitDependencies {
		explicit = append(explicit, RequiredPackage{Value: id, Explicit: true})
	}
	if len(explicit) > 0 {
		out.Deps = append(out.Deps, explicit)
	}
	return out
}
