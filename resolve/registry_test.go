package resolve

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync/atomic"
	"testing"

	yaml "gopkg.in/yaml.v2"
)

// mkRegistry builds a registry over a fresh cache directory and ties its
// release to the test's cleanup.
func mkRegistry(t *testing.T, repos ...Repository) *Registry {
	t.Helper()
	reg, err := NewRegistry(t.TempDir(), testLogger(), repos...)
	if err != nil {
		t.Fatalf("Unexpected error on registry creation: %s", err)
	}
	t.Cleanup(reg.Release)
	return reg
}

func mkMemRepo(id string, pkgs map[string]IndexEntry) *MemRepository {
	repo := NewMemRepository(id, RepoMetadata{Name: id})
	for pid, e := range pkgs {
		repo.Put(pid, e)
	}
	return repo
}

// countingRepo counts Query calls so tests can tell cache hits from
// repository round trips.
type countingRepo struct {
	*MemRepository
	queries int32
}

func (r *countingRepo) Query(ctx context.Context, id string) (IndexEntry, bool, error) {
	atomic.AddInt32(&r.queries, 1)
	return r.MemRepository.Query(ctx, id)
}

func (r *countingRepo) queryCount() int {
	return int(atomic.LoadInt32(&r.queries))
}

// bareInput is an EvalInput carrying no version information.
type bareInput struct{}

func (bareInput) Clone() EvalInput                                { return bareInput{} }
func (bareInput) SetContentVersions(required, preferred []string) {}
func (bareInput) SetForce(force bool)                             {}

func writeRepoFile(t *testing.T, dir, name string, v interface{}) {
	t.Helper()
	var data []byte
	var err error
	if strings.HasSuffix(name, ".yaml") {
		data, err = yaml.Marshal(v)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		t.Fatalf("failed to encode %s: %s", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0666); err != nil {
		t.Fatalf("failed to write %s: %s", name, err)
	}
}

func TestRegistryInit(t *testing.T) {
	cachedir := t.TempDir()
	repo := mkMemRepo("main", map[string]IndexEntry{"alpha": {Kind: "mod"}})

	reg, err := NewRegistry(cachedir, testLogger(), repo)
	if err != nil {
		t.Fatalf("Unexpected error on registry creation: %s", err)
	}

	lockpath := filepath.Join(cachedir, "nitro.lock")
	_, err = NewRegistry(cachedir, testLogger(), repo)
	if err == nil {
		t.Errorf("Creating second registry should have failed due to file lock contention")
	} else if le, ok := err.(CouldNotAcquireLockError); !ok || le.Path != lockpath {
		t.Errorf("Should have gotten CouldNotAcquireLockError, got %T: %s", err, err)
	}

	if _, err := os.Stat(lockpath); err != nil {
		t.Errorf("Cache lock file not created correctly: %s", err)
	}

	reg.Release()
	if _, err := os.Stat(lockpath); err == nil {
		t.Fatalf("Cache lock file not cleared correctly on Release()")
	}

	reg2, err := NewRegistry(cachedir, testLogger(), repo)
	if err != nil {
		t.Fatalf("Creating a registry after the first was released should have succeeded: %s", err)
	}
	reg2.Release()
}

func TestRegistryDuplicateRepo(t *testing.T) {
	a := NewMemRepository("main", RepoMetadata{})
	b := NewMemRepository("main", RepoMetadata{})
	_, err := NewRegistry(t.TempDir(), testLogger(), a, b)
	if err == nil {
		t.Fatal("expected duplicate repository id to be rejected")
	}
	if !strings.Contains(err.Error(), `duplicate repository id "main"`) {
		t.Errorf("unexpected error: %s", err)
	}
}

func TestRegistryProperties(t *testing.T) {
	modrinth := mkMemRepo("modrinth", map[string]IndexEntry{
		"shared": {Kind: "mod", Properties: PackageProperties{ContentVersions: []string{"1.0"}}},
		"fabric-loader": {
			Kind:       "loader",
			Aliases:    []string{"fabric"},
			Properties: PackageProperties{ContentVersions: []string{"0.15"}},
		},
	})
	extra := mkMemRepo("extra", map[string]IndexEntry{
		"shared":     {Kind: "datapack", Properties: PackageProperties{ContentVersions: []string{"9.9"}}},
		"only-extra": {Properties: PackageProperties{ContentVersions: []string{"1.2"}}},
	})
	reg := mkRegistry(t, modrinth, extra)
	ctx := context.Background()

	// The earlier repository wins id collisions.
	props, err := reg.GetPackageProperties(ctx, ParseRequest("shared", nil))
	if err != nil {
		t.Fatalf("lookup failed: %s", err)
	}
	if want := []string{"1.0"}; !reflect.DeepEqual(props.ContentVersions, want) {
		t.Errorf("collision should be served by the first repository, got %v", props.ContentVersions)
	}

	// A repository pin restricts the lookup to that repository.
	props, err = reg.GetPackageProperties(ctx, ParseRequest("extra:shared", nil))
	if err != nil {
		t.Fatalf("pinned lookup failed: %s", err)
	}
	if want := []string{"9.9"}; !reflect.DeepEqual(props.ContentVersions, want) {
		t.Errorf("pinned lookup should be served by the pinned repository, got %v", props.ContentVersions)
	}

	props, err = reg.GetPackageProperties(ctx, ParseRequest("fabric", nil))
	if err != nil {
		t.Fatalf("alias lookup failed: %s", err)
	}
	if want := []string{"0.15"}; !reflect.DeepEqual(props.ContentVersions, want) {
		t.Errorf("alias should resolve to its canonical package, got %v", props.ContentVersions)
	}

	if _, err := reg.GetPackageProperties(ctx, ParseRequest("nope", nil)); err == nil || !strings.Contains(err.Error(), `unknown package "nope"`) {
		t.Errorf("expected unknown package error, got %v", err)
	}
	if _, err := reg.GetPackageProperties(ctx, ParseRequest("bogus:shared", nil)); err == nil || !strings.Contains(err.Error(), `unknown repository "bogus"`) {
		t.Errorf("expected unknown repository error, got %v", err)
	}
}

func TestRegistryPreload(t *testing.T) {
	repo := &countingRepo{MemRepository: mkMemRepo("main", map[string]IndexEntry{
		"a": {
			Properties: PackageProperties{ContentVersions: []string{"1.0"}},
			Relations:  PackageRelations{Dependencies: []string{"b"}},
		},
		"b":             {Properties: PackageProperties{ContentVersions: []string{"2.0"}}},
		"fabric-loader": {Aliases: []string{"fabric"}},
	})}
	reg := mkRegistry(t, repo)
	ctx := context.Background()

	// Unknown ids are skipped, aliases are canonicalized before fetching.
	if err := reg.PreloadPackages(ctx, []string{"a", "b", "fabric", "nope"}); err != nil {
		t.Fatalf("preload failed: %s", err)
	}
	if n := repo.queryCount(); n != 3 {
		t.Errorf("preload should have queried three packages, did %d", n)
	}

	if _, err := reg.GetPackageProperties(ctx, ParseRequest("a", nil)); err != nil {
		t.Fatalf("property lookup failed: %s", err)
	}
	if _, err := reg.GetPackageProperties(ctx, ParseRequest("fabric", nil)); err != nil {
		t.Fatalf("alias lookup failed: %s", err)
	}
	rels, err := reg.EvalPackageRelations(ctx, ParseRequest("a", nil), &EvalParameters{})
	if err != nil {
		t.Fatalf("relation lookup failed: %s", err)
	}
	if n := repo.queryCount(); n != 3 {
		t.Errorf("preloaded lookups should not hit the repository, query count went to %d", n)
	}
	if want := [][]RequiredPackage{{{Value: "b"}}}; !reflect.DeepEqual(rels.Deps, want) {
		t.Errorf("unexpected relations: %v", rels.Deps)
	}
}

func TestRegistryMetadataCache(t *testing.T) {
	cachedir := t.TempDir()
	repo := &countingRepo{MemRepository: mkMemRepo("main", map[string]IndexEntry{
		"cached": {
			Properties: PackageProperties{ContentVersions: []string{"1.0", "2.0"}},
			Relations:  PackageRelations{Dependencies: []string{"dep"}},
		},
		"dep": {},
	})}

	reg, err := NewRegistry(cachedir, testLogger(), repo)
	if err != nil {
		t.Fatalf("Unexpected error on registry creation: %s", err)
	}
	if _, err := reg.GetPackageProperties(context.Background(), ParseRequest("cached", nil)); err != nil {
		reg.Release()
		t.Fatalf("property lookup failed: %s", err)
	}
	if n := repo.queryCount(); n != 1 {
		t.Errorf("first lookup should have queried the repository once, did %d times", n)
	}
	reg.Release()

	// A second registry over the same cache directory serves the same
	// metadata without going back to the repository.
	reg2, err := NewRegistry(cachedir, testLogger(), repo)
	if err != nil {
		t.Fatalf("Unexpected error on registry recreation: %s", err)
	}
	defer reg2.Release()

	props, err := reg2.GetPackageProperties(context.Background(), ParseRequest("cached", nil))
	if err != nil {
		t.Fatalf("cached property lookup failed: %s", err)
	}
	if want := []string{"1.0", "2.0"}; !reflect.DeepEqual(props.ContentVersions, want) {
		t.Errorf("wrong cached properties: %v", props.ContentVersions)
	}
	rels, err := reg2.EvalPackageRelations(context.Background(), ParseRequest("cached", nil), &EvalParameters{})
	if err != nil {
		t.Fatalf("cached relation lookup failed: %s", err)
	}
	if want := [][]RequiredPackage{{{Value: "dep"}}}; !reflect.DeepEqual(rels.Deps, want) {
		t.Errorf("wrong cached relations: %v", rels.Deps)
	}
	if n := repo.queryCount(); n != 1 {
		t.Errorf("cached lookups should not hit the repository, query count went to %d", n)
	}
}

func TestRegistryLatestAlias(t *testing.T) {
	repo := mkMemRepo("main", map[string]IndexEntry{
		"tool":        {Properties: PackageProperties{ContentVersions: []string{"1.0", "1.1", "2.0"}}},
		"unversioned": {},
		"sodium-reloaded": {
			Aliases:    []string{"sodium"},
			Properties: PackageProperties{ContentVersions: []string{"5.0"}},
		},
	})
	reg := mkRegistry(t, repo)
	ctx := context.Background()

	got := reg.MakeRequestDisplayable(ctx, ParseRequest("tool@latest", nil))
	if got.ID != "tool" || got.Pattern().String() != "2.0" {
		t.Errorf("latest should become the newest published version, got %s@%s", got.ID, got.Pattern())
	}

	got = reg.MakeRequestDisplayable(ctx, ParseRequest("tool@~latest", nil))
	if got.Pattern().String() != "~2.0" {
		t.Errorf("preferred latest should become ~2.0, got %s", got.Pattern())
	}

	got = reg.MakeRequestDisplayable(ctx, ParseRequest("sodium@latest", nil))
	if got.ID != "sodium-reloaded" || got.Pattern().String() != "5.0" {
		t.Errorf("alias should canonicalize and resolve latest, got %s@%s", got.ID, got.Pattern())
	}

	req := ParseRequest("unversioned@latest", nil)
	if got := reg.MakeRequestDisplayable(ctx, req); got != req {
		t.Errorf("package without published versions should come back unchanged")
	}
	req = ParseRequest("nope@latest", nil)
	if got := reg.MakeRequestDisplayable(ctx, req); got != req {
		t.Errorf("unknown package should come back unchanged")
	}
}

func TestRegistrySearch(t *testing.T) {
	repo := mkMemRepo("main", map[string]IndexEntry{
		"fabric-api":    {Kind: "mod", Categories: []string{"library"}},
		"fabric-loader": {Kind: "loader"},
		"sodium":        {Kind: "mod", Categories: []string{"optimization"}},
		"sodium-extra":  {Kind: "mod", Categories: []string{"optimization"}},
		"xfabric":       {Kind: "mod"},
	})
	reg := mkRegistry(t, repo)

	cases := []struct {
		name   string
		params PackageSearchParameters
		want   []string
	}{
		{"all", PackageSearchParameters{}, []string{"fabric-api", "fabric-loader", "sodium", "sodium-extra", "xfabric"}},
		{"prefix before contains", PackageSearchParameters{Search: "fabric"}, []string{"fabric-api", "fabric-loader", "xfabric"}},
		{"contains only", PackageSearchParameters{Search: "api"}, []string{"fabric-api"}},
		{"kind filter", PackageSearchParameters{Kinds: []string{"loader"}}, []string{"fabric-loader"}},
		{"category filter", PackageSearchParameters{Categories: []string{"optimization"}}, []string{"sodium", "sodium-extra"}},
		{"paging", PackageSearchParameters{Skip: 1, Count: 2}, []string{"fabric-loader", "sodium"}},
		{"skip past end", PackageSearchParameters{Skip: 10}, nil},
		{"no match", PackageSearchParameters{Search: "quilt"}, nil},
	}
	for _, c := range cases {
		if got := reg.Search(c.params); !reflect.DeepEqual(got, c.want) {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

func TestRegistryConditionalRelations(t *testing.T) {
	repo := mkMemRepo("main", map[string]IndexEntry{
		"engine": {
			Relations: PackageRelations{Dependencies: []string{"base"}},
			ConditionalRelations: []ConditionalRelations{
				{ContentVersions: []string{"2.0"}, Relations: PackageRelations{Dependencies: []string{"shim"}}},
				{Relations: PackageRelations{Conflicts: []string{"legacy"}}},
			},
		},
	})
	reg := mkRegistry(t, repo)
	ctx := context.Background()
	req := ParseRequest("engine", nil)

	rels, err := reg.EvalPackageRelations(ctx, req, &EvalParameters{RequiredVersions: []string{"2.0"}})
	if err != nil {
		t.Fatalf("relation lookup failed: %s", err)
	}
	if want := [][]RequiredPackage{{{Value: "base"}, {Value: "shim"}}}; !reflect.DeepEqual(rels.Deps, want) {
		t.Errorf("conditional dependency should apply at version 2.0, got %v", rels.Deps)
	}
	if want := []string{"legacy"}; !reflect.DeepEqual(rels.Conflicts, want) {
		t.Errorf("block without a version condition should always apply, got %v", rels.Conflicts)
	}

	rels, err = reg.EvalPackageRelations(ctx, req, &EvalParameters{RequiredVersions: []string{"1.0"}})
	if err != nil {
		t.Fatalf("relation lookup failed: %s", err)
	}
	if want := [][]RequiredPackage{{{Value: "base"}}}; !reflect.DeepEqual(rels.Deps, want) {
		t.Errorf("conditional dependency should not apply at version 1.0, got %v", rels.Deps)
	}

	rels, err = reg.EvalPackageRelations(ctx, req, bareInput{})
	if err != nil {
		t.Fatalf("relation lookup failed: %s", err)
	}
	if want := [][]RequiredPackage{{{Value: "base"}}}; !reflect.DeepEqual(rels.Deps, want) {
		t.Errorf("input without version information should skip conditional blocks, got %v", rels.Deps)
	}
}

func TestDirRepository(t *testing.T) {
	dir := t.TempDir()
	writeRepoFile(t, dir, "index.json", RepoIndex{
		Metadata: RepoMetadata{Name: "Test Repo", NitroVersion: "0.1.0"},
		Packages: map[string]IndexEntry{
			"alpha": {Kind: "mod"},
			"beta":  {Kind: "mod"},
		},
	})
	// Per-package metadata files layer over the index, JSON or YAML, at
	// any depth.
	writeRepoFile(t, dir, "alpha.json", IndexEntry{
		Kind:       "datapack",
		Properties: PackageProperties{ContentVersions: []string{"1.0"}},
	})
	writeRepoFile(t, dir, "gamma.yaml", IndexEntry{Kind: "mod", Aliases: []string{"g"}})
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0777); err != nil {
		t.Fatal(err)
	}
	writeRepoFile(t, filepath.Join(dir, "nested"), "delta.json", IndexEntry{Kind: "mod"})
	if err := os.WriteFile(filepath.Join(dir, "README.txt"), []byte("not metadata"), 0666); err != nil {
		t.Fatal(err)
	}

	repo, err := NewDirRepository("test", dir)
	if err != nil {
		t.Fatalf("failed to open repository: %s", err)
	}

	meta, err := repo.Metadata(context.Background())
	if err != nil || meta.Name != "Test Repo" {
		t.Errorf("wrong metadata: %+v, %v", meta, err)
	}

	entries, err := repo.AllEntries(context.Background())
	if err != nil {
		t.Fatalf("AllEntries failed: %s", err)
	}
	var ids []string
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if want := []string{"alpha", "beta", "delta", "gamma"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("wrong package set: %v", ids)
	}

	e, has, err := repo.Query(context.Background(), "alpha")
	if err != nil || !has {
		t.Fatalf("Query(alpha) = %v, %v", has, err)
	}
	if e.Kind != "datapack" || len(e.Properties.ContentVersions) != 1 {
		t.Errorf("alpha should be served from its metadata file, got %+v", e)
	}

	if _, has, _ := repo.Query(context.Background(), "nope"); has {
		t.Error("Query(nope) should report absence")
	}
}

func TestDirRepositoryYAMLIndex(t *testing.T) {
	dir := t.TempDir()
	writeRepoFile(t, dir, "index.yaml", RepoIndex{
		Metadata: RepoMetadata{Name: "YAML Repo"},
		Packages: map[string]IndexEntry{"alpha": {Kind: "mod"}},
	})
	repo, err := NewDirRepository("yaml", dir)
	if err != nil {
		t.Fatalf("failed to open repository: %s", err)
	}
	if _, has, _ := repo.Query(context.Background(), "alpha"); !has {
		t.Error("package from the YAML index is missing")
	}

	if _, err := NewDirRepository("empty", t.TempDir()); err == nil {
		t.Error("repository without an index file should be rejected")
	}
}

func TestDirRepositoryInvalidID(t *testing.T) {
	dir := t.TempDir()
	writeRepoFile(t, dir, "index.json", RepoIndex{
		Packages: map[string]IndexEntry{"Not Valid": {}},
	})
	if _, err := NewDirRepository("test", dir); err == nil || !strings.Contains(err.Error(), "invalid package id") {
		t.Errorf("expected invalid id error, got %v", err)
	}
}

func TestRegistryImportLocal(t *testing.T) {
	localdir := t.TempDir()
	writeRepoFile(t, localdir, "index.json", RepoIndex{Metadata: RepoMetadata{Name: "Local"}})
	local, err := NewDirRepository(LocalRepoID, localdir)
	if err != nil {
		t.Fatalf("failed to open local repository: %s", err)
	}
	reg := mkRegistry(t, local)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "mypack")
	if err := os.MkdirAll(src, 0777); err != nil {
		t.Fatal(err)
	}
	writeRepoFile(t, src, "mypack.json", IndexEntry{
		Kind:       "mod",
		Properties: PackageProperties{ContentVersions: []string{"1.0"}},
	})

	if err := reg.ImportLocal(ctx, src); err != nil {
		t.Fatalf("import failed: %s", err)
	}
	props, err := reg.GetPackageProperties(ctx, ParseRequest("mypack", nil))
	if err != nil {
		t.Fatalf("imported package is not served: %s", err)
	}
	if want := []string{"1.0"}; !reflect.DeepEqual(props.ContentVersions, want) {
		t.Errorf("wrong imported properties: %v", props.ContentVersions)
	}
	if got := reg.Search(PackageSearchParameters{Search: "mypack"}); !reflect.DeepEqual(got, []string{"mypack"}) {
		t.Errorf("imported package is not searchable: %v", got)
	}

	if err := reg.ImportLocal(ctx, src); err == nil || !strings.Contains(err.Error(), "already imported") {
		t.Errorf("second import should be rejected, got %v", err)
	}
}

func TestRegistryImportLocalErrors(t *testing.T) {
	reg := mkRegistry(t, mkMemRepo("main", nil))
	err := reg.ImportLocal(context.Background(), filepath.Join(t.TempDir(), "pack"))
	if err == nil || !strings.Contains(err.Error(), `has no "local" repository`) {
		t.Errorf("import without a local repository should fail, got %v", err)
	}
	reg.Release()

	reg = mkRegistry(t, NewMemRepository(LocalRepoID, RepoMetadata{}))
	err = reg.ImportLocal(context.Background(), filepath.Join(t.TempDir(), "pack"))
	if err == nil || !strings.Contains(err.Error(), "does not accept imports") {
		t.Errorf("expected import rejection, got %v", err)
	}
	err = reg.ImportLocal(context.Background(), filepath.Join(t.TempDir(), "Bad Pack"))
	if err == nil || !strings.Contains(err.Error(), "not a valid package id") {
		t.Errorf("expected invalid id error, got %v", err)
	}
}

func TestRegistryRefresh(t *testing.T) {
	repo := mkMemRepo("main", map[string]IndexEntry{"alpha": {}})
	reg := mkRegistry(t, repo)
	ctx := context.Background()

	if _, err := reg.GetPackageProperties(ctx, ParseRequest("beta", nil)); err == nil {
		t.Fatal("beta should be unknown before it is published")
	}

	repo.Put("beta", IndexEntry{Properties: PackageProperties{ContentVersions: []string{"0.1"}}})
	if err := reg.Refresh(ctx); err != nil {
		t.Fatalf("refresh failed: %s", err)
	}
	props, err := reg.GetPackageProperties(ctx, ParseRequest("beta", nil))
	if err != nil {
		t.Fatalf("beta should be served after refresh: %s", err)
	}
	if len(props.ContentVersions) != 1 {
		t.Errorf("wrong properties after refresh: %+v", props)
	}
}

func TestRegistryReleased(t *testing.T) {
	reg := mkRegistry(t, mkMemRepo("main", map[string]IndexEntry{"alpha": {}}))
	reg.Release()
	ctx := context.Background()

	if _, err := reg.GetPackageProperties(ctx, ParseRequest("alpha", nil)); err == nil {
		t.Error("property lookup after Release should fail")
	}
	if _, err := reg.EvalPackageRelations(ctx, ParseRequest("alpha", nil), &EvalParameters{}); err == nil {
		t.Error("relation lookup after Release should fail")
	}
	if err := reg.PreloadPackages(ctx, []string{"alpha"}); err == nil {
		t.Error("preload after Release should fail")
	}
	if err := reg.Refresh(ctx); err == nil {
		t.Error("refresh after Release should fail")
	}
	if got := reg.Search(PackageSearchParameters{}); got != nil {
		t.Errorf("search after Release should return nothing, got %v", got)
	}
	req := ParseRequest("alpha", nil)
	if got := reg.MakeRequestDisplayable(ctx, req); got != req {
		t.Error("displayable rewrite after Release should hand the request back")
	}
}

// TestRegistryResolve runs the resolver against a real registry instead of
// a stub evaluator.
func TestRegistryResolve(t *testing.T) {
	repo := mkMemRepo("main", map[string]IndexEntry{
		"modpack": {Relations: PackageRelations{
			Dependencies: []string{"terrain@1.2", "ui"},
			Bundled:      []string{"extras"},
		}},
		"terrain":    {Properties: PackageProperties{ContentVersions: []string{"1.0", "1.2"}}},
		"ui":         {Relations: PackageRelations{Recommendations: []RecommendedPackage{{Value: "fancy-font"}}}},
		"extras":     {},
		"fancy-font": {},
	})
	reg := mkRegistry(t, repo)

	res, err := Resolve(context.Background(), []ConfiguredPackage{
		fixcp{req: ParseRequest("modpack", UserRequire())},
	}, reg, &EvalParameters{}, Overrides{}, testLogger())
	if err != nil {
		t.Fatalf("resolution failed: %s", err)
	}

	want := []string{"modpack", "extras", "terrain", "ui"}
	if got := resultIDs(res); !reflect.DeepEqual(got, want) {
		t.Errorf("wrong package set: got %v, want %v", got, want)
	}
	for _, p := range res.Packages {
		if p.ID == "terrain" && p.Pattern().String() != "1.2" {
			t.Errorf("terrain should carry its pinned version, got %s", p.Pattern())
		}
	}
	if len(res.UnfulfilledRecommendations) != 1 || res.UnfulfilledRecommendations[0].Req.ID != "fancy-font" {
		t.Errorf("wrong recommendations: %+v", res.UnfulfilledRecommendations)
	}
}
