// Package replica implements the replica catalog: the mapping from logical
// file names (LFNs) to their physical replicas that is carried across the
// steps of a workflow run.
package replica

import (
	"bytes"
	"sort"

	"github.com/me/gridcwl/pkg/cwl"
)

// Replica is one physical copy of the data behind an LFN.
type Replica struct {
	// URL locates the copy. A file scheme means the path is directly
	// usable; any other scheme is a remote transport (root, https, ...).
	URL string `json:"url"`

	// SE identifies the storage endpoint hosting this copy. Diagnostic
	// only; the engine does not route on it.
	SE string `json:"se,omitempty"`
}

// Checksum carries integrity metadata for a catalog entry.
type Checksum struct {
	Adler32 string `json:"adler32,omitempty"`
	GUID    string `json:"guid,omitempty"`
}

// Entry is the catalog value for one LFN. Replicas are ordered by
// preference: resolution always takes the first. An entry with no replicas
// is valid (an output declared before its replicas were attached) but
// cannot be resolved to a usable location.
type Entry struct {
	Replicas  []Replica
	SizeBytes *int64
	Checksum  *Checksum

	// extra holds fields this engine does not understand, preserved
	// verbatim across load/merge/save cycles.
	extra map[string]rawField
}

// FirstURL returns the preferred replica URL, or false if the entry has no
// replicas attached.
func (e Entry) FirstURL() (string, bool) {
	if len(e.Replicas) == 0 {
		return "", false
	}
	return e.Replicas[0].URL, true
}

// Equal reports whether two entries are identical, comparing their
// canonical serialized form (including preserved unknown fields).
func (e Entry) Equal(other Entry) bool {
	a, errA := e.MarshalJSON()
	b, errB := other.MarshalJSON()
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// Catalog maps LFN keys to entries. Keys carry no LFN: marker; Lookup
// strips it from its argument before matching.
type Catalog map[string]Entry

// New returns an empty catalog.
func New() Catalog {
	return make(Catalog)
}

// Lookup returns the entry for an LFN, stripping any LFN: marker first.
func (c Catalog) Lookup(lfn string) (Entry, bool) {
	e, ok := c[cwl.StripLFN(lfn)]
	return e, ok
}

// Keys returns the sorted LFN keys of the catalog.
func (c Catalog) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Filter returns a new catalog holding only the entries whose key appears
// in lfns. Requested keys that are absent are omitted; deciding whether
// that is an error is the caller's business.
func (c Catalog) Filter(lfns []string) Catalog {
	out := make(Catalog)
	for _, lfn := range lfns {
		key := cwl.StripLFN(lfn)
		if e, ok := c[key]; ok {
			out[key] = e
		}
	}
	return out
}

// Clone returns a shallow copy of the catalog, safe to read while the
// original is being merged into.
func (c Catalog) Clone() Catalog {
	out := make(Catalog, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// MergeResult reports which keys a merge added or changed.
type MergeResult struct {
	New     []string
	Updated []string
}

// Changed reports whether the merge modified the catalog at all.
func (r MergeResult) Changed() bool {
	return len(r.New) > 0 || len(r.Updated) > 0
}

// MergeFrom folds a step-local catalog into c. Entries only in c are left
// untouched; entries only in other are added; for keys present in both, an
// identical entry is skipped and a differing one is overwritten with the
// step-local value (last write wins). Merge never deletes and never fails.
func (c Catalog) MergeFrom(other Catalog) MergeResult {
	var result MergeResult
	for _, key := range other.Keys() {
		entry := other[key]
		existing, ok := c[key]
		switch {
		case !ok:
			c[key] = entry
			result.New = append(result.New, key)
		case !existing.Equal(entry):
			c[key] = entry
			result.Updated = append(result.Updated, key)
		}
	}
	return result
}
