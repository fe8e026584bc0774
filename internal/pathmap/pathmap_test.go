package pathmap

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/me/gridcwl/pkg/replica"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func int64ptr(v int64) *int64 { return &v }

func TestVisit_LocalReplica_NotStaged(t *testing.T) {
	cat := replica.Catalog{"data/foo.txt": {
		Replicas:  []replica.Replica{{URL: "file:///data/foo.txt", SE: "LOCAL-disk"}},
		SizeBytes: int64ptr(128),
		Checksum:  &replica.Checksum{Adler32: "788c5caa"},
	}}
	m := New(cat, "/base", t.TempDir(), testLogger())

	file := map[string]any{"class": "File", "location": "LFN:data/foo.txt"}
	m.Visit(file)

	e, ok := m.Mapping("LFN:data/foo.txt")
	if !ok {
		t.Fatal("no mapping recorded")
	}
	if e.Staged {
		t.Error("catalog-resolved file must not be staged")
	}
	if e.Resolved != "/data/foo.txt" || e.Target != "/data/foo.txt" {
		t.Errorf("mapping = %+v, want in-place physical path", e)
	}
	if file["size"] != int64(128) {
		t.Errorf("size annotation = %v, want 128", file["size"])
	}
	if file["checksum"] != "adler32$788c5caa" {
		t.Errorf("checksum annotation = %v", file["checksum"])
	}
}

func TestVisit_DoesNotOverwriteMetadata(t *testing.T) {
	cat := replica.Catalog{"foo.txt": {
		Replicas:  []replica.Replica{{URL: "file:///data/foo.txt"}},
		SizeBytes: int64ptr(128),
	}}
	m := New(cat, "/base", t.TempDir(), testLogger())

	file := map[string]any{"class": "File", "location": "LFN:foo.txt", "size": int64(999)}
	m.Visit(file)
	if file["size"] != int64(999) {
		t.Errorf("existing size overwritten: %v", file["size"])
	}
}

func TestVisit_RemoteReplica_UsedDirectly(t *testing.T) {
	cat := replica.Catalog{"remote.dat": {
		Replicas: []replica.Replica{{URL: "root://server/remote.dat", SE: "CERN-disk"}},
	}}
	m := New(cat, "/base", t.TempDir(), testLogger())

	file := map[string]any{"class": "File", "location": "LFN:remote.dat"}
	m.Visit(file)

	e, _ := m.Mapping("LFN:remote.dat")
	if e.Staged || e.Target != "root://server/remote.dat" {
		t.Errorf("remote replica should pass through unstaged, got %+v", e)
	}
}

func TestVisit_BareRemoteURL(t *testing.T) {
	m := New(nil, "/base", t.TempDir(), testLogger())

	file := map[string]any{"class": "File", "location": "https://example.org/x.dat"}
	m.Visit(file)

	e, ok := m.Mapping("https://example.org/x.dat")
	if !ok || e.Staged || e.Resolved != "https://example.org/x.dat" {
		t.Errorf("bare remote URL should pass through unstaged, got %+v ok=%v", e, ok)
	}
}

func TestVisit_UnresolvableLFN_RecordedNotFatal(t *testing.T) {
	m := New(replica.Catalog{}, "/base", t.TempDir(), testLogger())

	file := map[string]any{"class": "File", "location": "LFN:missing.dat"}
	m.Visit(file) // must not panic or abort

	e, ok := m.Mapping("LFN:missing.dat")
	if !ok {
		t.Fatal("unresolvable LFN should still be recorded")
	}
	if e.Target != "LFN:missing.dat" {
		t.Errorf("unresolvable LFN target = %q, want the original reference", e.Target)
	}
}

func TestVisit_OrdinaryLocalFile_Staged(t *testing.T) {
	stagedir := t.TempDir()
	m := New(nil, "/base", stagedir, testLogger())

	file := map[string]any{"class": "File", "location": "file:///inputs/sample.txt"}
	m.Visit(file)

	e, _ := m.Mapping("file:///inputs/sample.txt")
	if !e.Staged {
		t.Error("ordinary local file should be staged")
	}
	if e.Target != filepath.Join(stagedir, "sample.txt") {
		t.Errorf("target = %q, want inside staging dir", e.Target)
	}
}

func TestVisitAll_SecondaryFilesIncluded(t *testing.T) {
	cat := replica.Catalog{
		"reads.fq":     {Replicas: []replica.Replica{{URL: "file:///d/reads.fq"}}},
		"reads.fq.idx": {Replicas: []replica.Replica{{URL: "root://server/reads.fq.idx"}}},
	}
	m := New(cat, "/base", t.TempDir(), testLogger())

	inputs := map[string]any{
		"reads": map[string]any{
			"class":    "File",
			"location": "LFN:reads.fq",
			"secondaryFiles": []any{
				map[string]any{"class": "File", "location": "LFN:reads.fq.idx"},
			},
		},
	}
	m.VisitAll(inputs)

	if _, ok := m.Mapping("LFN:reads.fq"); !ok {
		t.Error("primary file not mapped")
	}
	if _, ok := m.Mapping("LFN:reads.fq.idx"); !ok {
		t.Error("secondary file silently dropped")
	}
}

func TestMaterialize(t *testing.T) {
	srcDir := t.TempDir()
	stagedir := t.TempDir()
	src := filepath.Join(srcDir, "in.txt")
	if err := os.WriteFile(src, []byte("stage me"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := New(nil, srcDir, stagedir, testLogger())
	m.Visit(map[string]any{"class": "File", "location": "file://" + src})

	if err := m.Materialize(context.Background()); err != nil {
		t.Fatalf("materialize: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(stagedir, "in.txt"))
	if err != nil || string(data) != "stage me" {
		t.Errorf("staged copy = (%q, %v)", data, err)
	}
}
