package resolve

import (
	"reflect"
	"testing"
	"time"
)

func TestMetadataCacheRoundTrip(t *testing.T) {
	epoch := time.Now().Add(-time.Hour).Unix()
	c, err := newMetadataCache(t.TempDir(), epoch, testLogger())
	if err != nil {
		t.Fatalf("failed to open cache: %s", err)
	}
	defer c.close()

	entry := IndexEntry{
		Properties: PackageProperties{ContentVersions: []string{"1.0", "2.0"}},
		Relations:  PackageRelations{Dependencies: []string{"dep"}},
		ConditionalRelations: []ConditionalRelations{
			{ContentVersions: []string{"2.0"}, Relations: PackageRelations{Conflicts: []string{"old"}}},
		},
	}
	c.setEntry("main", "pkg", entry)

	props, ok := c.getProperties("main", "pkg")
	if !ok {
		t.Fatal("stored properties should be served")
	}
	if !reflect.DeepEqual(props, entry.Properties) {
		t.Errorf("wrong properties:\n\t(GOT): %+v\n\t(WNT): %+v", props, entry.Properties)
	}
	rels, cond, ok := c.getRelations("main", "pkg")
	if !ok {
		t.Fatal("stored relations should be served")
	}
	if !reflect.DeepEqual(rels, entry.Relations) || !reflect.DeepEqual(cond, entry.ConditionalRelations) {
		t.Errorf("wrong relations: %+v, %+v", rels, cond)
	}

	// Entries are keyed by owning repository as well as id.
	if _, ok := c.getProperties("main", "other"); ok {
		t.Error("unknown id should miss")
	}
	if _, ok := c.getProperties("mirror", "pkg"); ok {
		t.Error("same id under another repository should miss")
	}

	// A second store replaces the first.
	entry.Properties.ContentVersions = []string{"3.0"}
	c.setEntry("main", "pkg", entry)
	props, ok = c.getProperties("main", "pkg")
	if !ok || !reflect.DeepEqual(props.ContentVersions, []string{"3.0"}) {
		t.Errorf("restored entry not served, got %+v, %t", props, ok)
	}
}

func TestMetadataCacheEpochCutoff(t *testing.T) {
	dir := t.TempDir()
	c, err := newMetadataCache(dir, time.Now().Add(-time.Hour).Unix(), testLogger())
	if err != nil {
		t.Fatalf("failed to open cache: %s", err)
	}
	c.setEntry("main", "pkg", IndexEntry{
		Properties: PackageProperties{ContentVersions: []string{"1.0"}},
	})
	if _, ok := c.getProperties("main", "pkg"); !ok {
		t.Fatal("fresh entry should be served")
	}
	if err := c.close(); err != nil {
		t.Fatal(err)
	}

	// Reopening with an epoch ahead of the stored timestamp makes the entry
	// too old to serve.
	c2, err := newMetadataCache(dir, time.Now().Add(time.Hour).Unix(), testLogger())
	if err != nil {
		t.Fatalf("failed to reopen cache: %s", err)
	}
	defer c2.close()
	if _, ok := c2.getProperties("main", "pkg"); ok {
		t.Error("properties older than the epoch should not be served")
	}
	if _, _, ok := c2.getRelations("main", "pkg"); ok {
		t.Error("relations older than the epoch should not be served")
	}
}
