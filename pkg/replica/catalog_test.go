package replica

import (
	"reflect"
	"testing"
)

func int64ptr(v int64) *int64 { return &v }

func localEntry(url string) Entry {
	return Entry{Replicas: []Replica{{URL: url, SE: "LOCAL-disk"}}}
}

func TestLookup_StripsMarker(t *testing.T) {
	c := Catalog{"prod/foo.txt": localEntry("file:///data/foo.txt")}

	if _, ok := c.Lookup("prod/foo.txt"); !ok {
		t.Error("bare key lookup failed")
	}
	if _, ok := c.Lookup("LFN:prod/foo.txt"); !ok {
		t.Error("LFN-marked lookup failed")
	}
	if _, ok := c.Lookup("LFN:absent"); ok {
		t.Error("absent key should not resolve")
	}
}

func TestLookup_EmptyReplicas(t *testing.T) {
	c := Catalog{"out.dat": {}}
	e, ok := c.Lookup("out.dat")
	if !ok {
		t.Fatal("entry with no replicas must still be found")
	}
	if _, ok := e.FirstURL(); ok {
		t.Error("FirstURL should report no usable replica")
	}
}

func TestFilter_Exactness(t *testing.T) {
	c := Catalog{
		"a.dat": localEntry("file:///a"),
		"b.dat": localEntry("file:///b"),
		"c.dat": localEntry("file:///c"),
	}

	got := c.Filter([]string{"a.dat", "LFN:c.dat", "missing.dat"})
	if len(got) != 2 {
		t.Fatalf("filter returned %d entries, want 2", len(got))
	}
	if _, ok := got["a.dat"]; !ok {
		t.Error("a.dat missing from filtered catalog")
	}
	if _, ok := got["c.dat"]; !ok {
		t.Error("c.dat missing from filtered catalog (LFN: marker should be stripped)")
	}
	if _, ok := got["missing.dat"]; ok {
		t.Error("absent requested key must not appear")
	}
}

func TestFilter_Empty(t *testing.T) {
	c := Catalog{"a.dat": localEntry("file:///a")}
	if got := c.Filter(nil); len(got) != 0 {
		t.Errorf("empty filter returned %d entries", len(got))
	}
}

func TestMergeFrom_Idempotent(t *testing.T) {
	c := Catalog{
		"a.dat": localEntry("file:///a"),
		"b.dat": {Replicas: []Replica{{URL: "root://se/b"}}, SizeBytes: int64ptr(42)},
	}

	result := c.MergeFrom(c.Clone())
	if result.Changed() {
		t.Errorf("self-merge reported changes: new=%v updated=%v", result.New, result.Updated)
	}
	if len(c) != 2 {
		t.Errorf("self-merge changed entry count to %d", len(c))
	}
}

func TestMergeFrom_AdditiveSafety(t *testing.T) {
	global := Catalog{"in1.dat": localEntry("file:///in1"), "in2.dat": localEntry("file:///in2")}
	step := Catalog{"out1.dat": localEntry("file:///out1")}

	result := global.MergeFrom(step)
	if len(global) != 3 {
		t.Errorf("merged catalog has %d entries, want 3", len(global))
	}
	if !reflect.DeepEqual(result.New, []string{"out1.dat"}) {
		t.Errorf("New = %v, want [out1.dat]", result.New)
	}
	if len(result.Updated) != 0 {
		t.Errorf("Updated = %v, want empty", result.Updated)
	}
	if !global["in1.dat"].Equal(localEntry("file:///in1")) {
		t.Error("pre-existing entry mutated by additive merge")
	}
}

func TestMergeFrom_OverrideOnConflict(t *testing.T) {
	global := Catalog{"x.dat": localEntry("file:///old")}
	step := Catalog{"x.dat": {
		Replicas: []Replica{{URL: "root://se/x.dat", SE: "REMOTE-disk"}},
	}}

	result := global.MergeFrom(step)
	if !reflect.DeepEqual(result.Updated, []string{"x.dat"}) {
		t.Errorf("Updated = %v, want [x.dat]", result.Updated)
	}
	if len(result.New) != 0 {
		t.Errorf("conflicting key reported as new: %v", result.New)
	}
	url, _ := global["x.dat"].FirstURL()
	if url != "root://se/x.dat" {
		t.Errorf("step-local value should win, got %q", url)
	}
}

func TestMergeFrom_NeverDeletes(t *testing.T) {
	global := Catalog{"keep.dat": localEntry("file:///keep")}
	global.MergeFrom(Catalog{})
	if _, ok := global["keep.dat"]; !ok {
		t.Error("merge of empty catalog deleted a global entry")
	}
}

func TestEntryEqual(t *testing.T) {
	a := Entry{Replicas: []Replica{{URL: "file:///a"}}, SizeBytes: int64ptr(10)}
	b := Entry{Replicas: []Replica{{URL: "file:///a"}}, SizeBytes: int64ptr(10)}
	if !a.Equal(b) {
		t.Error("identical entries compare unequal")
	}

	c := Entry{Replicas: []Replica{{URL: "file:///a"}}, SizeBytes: int64ptr(11)}
	if a.Equal(c) {
		t.Error("entries with differing sizes compare equal")
	}
}
