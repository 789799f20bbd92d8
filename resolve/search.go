package resolve

import (
	"strings"

	"github.com/armon/go-radix"
)

// Typed wrapper around the radix tree backing the registry's search index.
// Just a simple layer that keeps type assertions out of the rest of the
// code.

// PackageSearchParameters filters and pages a registry search. The zero
// value matches everything.
type PackageSearchParameters struct {
	// Count caps the number of results; zero means no cap.
	Count int
	// Skip drops that many results from the front, for paging.
	Skip int
	// Search keeps only ids containing this term. Prefix matches sort
	// ahead of other matches.
	Search string
	// Kinds keeps only packages of one of these kinds.
	Kinds []string
	// Categories keeps only packages declaring one of these categories.
	Categories []string
}

// searchRecord is what the search index stores per package id.
type searchRecord struct {
	repo  string
	entry IndexEntry
}

type pkgTrie struct {
	t *radix.Tree
}

func newPkgTrie() pkgTrie {
	return pkgTrie{
		t: radix.New(),
	}
}

// Delete is used to delete a key, returning the previous value and if it was deleted
func (t pkgTrie) Delete(s string) (searchRecord, bool) {
	if v, had := t.t.Delete(s); had {
		return v.(searchRecord), had
	}
	return searchRecord{}, false
}

// Get is used to lookup a specific key, returning the value and if it was found
func (t pkgTrie) Get(s string) (searchRecord, bool) {
	if v, has := t.t.Get(s); has {
		return v.(searchRecord), has
	}
	return searchRecord{}, false
}

// Insert is used to add a new entry or update an existing entry. Returns if updated.
func (t pkgTrie) Insert(s string, v searchRecord) (searchRecord, bool) {
	if v2, had := t.t.Insert(s, v); had {
		return v2.(searchRecord), had
	}
	return searchRecord{}, false
}

// Len is used to return the number of elements in the tree
func (t pkgTrie) Len() int {
	return t.t.Len()
}

// ToMap is used to walk the tree and convert it to a map.
func (t pkgTrie) ToMap() map[string]searchRecord {
	m := make(map[string]searchRecord)
	t.t.Walk(func(s string, v interface{}) bool {
		m[s] = v.(searchRecord)
		return false
	})

	return m
}

// search returns matching package ids in deterministic order: ids the term
// prefixes first, then other matches, each group in lexical order, with
// skip and count applied at the end.
func (t pkgTrie) search(params PackageSearchParameters) []string {
	seen := make(map[string]bool)
	var matched []string
	collect := func(s string, rec searchRecord) {
		if seen[s] || !searchMatches(rec, params) {
			return
		}
		seen[s] = true
		matched = append(matched, s)
	}

	if params.Search != "" {
		t.t.WalkPrefix(params.Search, func(s string, v interface{}) bool {
			collect(s, v.(searchRecord))
			return false
		})
	}
	t.t.Walk(func(s string, v interface{}) bool {
		if params.Search == "" || strings.Contains(s, params.Search) {
			collect(s, v.(searchRecord))
		}
		return false
	})

	if params.Skip > 0 {
		if params.Skip >= len(matched) {
			return nil
		}
		matched = matched[params.Skip:]
	}
	if params.Count > 0 && len(matched) > params.Count {
		matched = matched[:params.Count]
	}
	return matched
}

func searchMatches(rec searchRecord, params PackageSearchParameters) bool {
	if len(params.Kinds) > 0 && !containsString(params.Kinds, rec.entry.Kind) {
		return false
	}
	if len(params.Categories) > 0 {
		any := false
		for _, c := range rec.entry.Categories {
			if containsString(params.Categories, c) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	return true
}
