package fsaccess

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/me/gridcwl/pkg/replica"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func int64ptr(v int64) *int64 { return &v }

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExists_LocalReplica(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "foo.txt", "data")

	cat := replica.Catalog{"foo.txt": {Replicas: []replica.Replica{{URL: "file://" + path}}}}
	fs := New(dir, cat, testLogger())

	if !fs.Exists("LFN:foo.txt") {
		t.Error("LFN backed by an existing local file should exist")
	}

	os.Remove(path)
	if fs.Exists("LFN:foo.txt") {
		t.Error("LFN backed by a deleted local file must not exist")
	}
}

func TestAbsentLFN(t *testing.T) {
	cat := replica.Catalog{"foo.txt": {Replicas: []replica.Replica{{URL: "file:///data/foo.txt"}}}}
	fs := New(t.TempDir(), cat, testLogger())

	if fs.Exists("LFN:bar.txt") {
		t.Error("absent LFN should not exist")
	}
	if fs.IsDir("LFN:bar.txt") {
		t.Error("an LFN is never a directory")
	}

	_, err := fs.Open("LFN:bar.txt")
	if !IsResolutionError(err) {
		t.Fatalf("open of absent LFN: got %v, want ResolutionError", err)
	}
	if !strings.Contains(err.Error(), "foo.txt") {
		t.Errorf("resolution error should list known keys in scope: %v", err)
	}

	if _, err := fs.Size("LFN:bar.txt"); !IsResolutionError(err) {
		t.Errorf("size of absent LFN: got %v, want ResolutionError", err)
	}
}

func TestEmptyReplicasEntry(t *testing.T) {
	cat := replica.Catalog{"pending.dat": {}}
	fs := New(t.TempDir(), cat, testLogger())

	if fs.Exists("LFN:pending.dat") {
		t.Error("entry with no replicas cannot resolve to an existing path")
	}
	if _, err := fs.Open("LFN:pending.dat"); !IsResolutionError(err) {
		t.Errorf("expected ResolutionError, got %v", err)
	}
}

func TestRemoteReplica(t *testing.T) {
	cat := replica.Catalog{"remote.dat": {
		Replicas:  []replica.Replica{{URL: "root://server/remote.dat", SE: "CERN-disk"}},
		SizeBytes: int64ptr(2048),
	}}
	fs := New(t.TempDir(), cat, testLogger())

	// Existence of a remote replica is assumed, never checked.
	if !fs.Exists("LFN:remote.dat") {
		t.Error("remote replica should be assumed to exist")
	}
	if !fs.IsFile("LFN:remote.dat") {
		t.Error("remote replica should be assumed to be a file")
	}
	if fs.IsDir("LFN:remote.dat") {
		t.Error("remote replica is never a directory")
	}

	if _, err := fs.Open("LFN:remote.dat"); !IsRemoteAccessError(err) {
		t.Errorf("open remote: got %v, want RemoteAccessError", err)
	}

	// Declared size from the catalog wins over any stat.
	size, err := fs.Size("LFN:remote.dat")
	if err != nil || size != 2048 {
		t.Errorf("Size = (%d, %v), want (2048, nil)", size, err)
	}
}

func TestRemoteReplica_NoDeclaredSize(t *testing.T) {
	cat := replica.Catalog{"remote.dat": {Replicas: []replica.Replica{{URL: "root://server/remote.dat"}}}}
	fs := New(t.TempDir(), cat, testLogger())

	if _, err := fs.Size("LFN:remote.dat"); !IsRemoteAccessError(err) {
		t.Errorf("size of remote without declared size: got %v, want RemoteAccessError", err)
	}
}

func TestBareRemoteURL(t *testing.T) {
	fs := New(t.TempDir(), nil, testLogger())

	if !fs.Exists("https://example.org/data.bin") {
		t.Error("bare remote URL should be assumed to exist")
	}
	if fs.IsDir("root://server/x") {
		t.Error("bare remote URL is never a directory")
	}
	if _, err := fs.Open("root://server/x"); !IsRemoteAccessError(err) {
		t.Errorf("open bare remote URL: got %v, want RemoteAccessError", err)
	}
}

func TestLocalPlumbing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "plain.txt", "hello")

	fs := New(dir, nil, testLogger())

	if !fs.Exists("plain.txt") {
		t.Error("relative path should resolve against basedir")
	}
	if !fs.IsFile("plain.txt") || fs.IsDir("plain.txt") {
		t.Error("plain.txt should be a regular file")
	}
	size, err := fs.Size("plain.txt")
	if err != nil || size != 5 {
		t.Errorf("Size = (%d, %v), want (5, nil)", size, err)
	}

	r, err := fs.Open("plain.txt")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()
	data, _ := io.ReadAll(r)
	if string(data) != "hello" {
		t.Errorf("content = %q", data)
	}

	matches, err := fs.Glob("*.txt")
	if err != nil || len(matches) != 1 {
		t.Errorf("Glob = (%v, %v), want one match", matches, err)
	}
}

func TestGlob_LFN(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "foo.txt", "x")

	cat := replica.Catalog{
		"foo.txt":    {Replicas: []replica.Replica{{URL: "file://" + path}}},
		"remote.dat": {Replicas: []replica.Replica{{URL: "root://server/remote.dat"}}},
	}
	fs := New(dir, cat, testLogger())

	got, _ := fs.Glob("LFN:foo.txt")
	if len(got) != 1 || got[0] != "LFN:foo.txt" {
		t.Errorf("glob of resolvable local LFN = %v, want the original reference", got)
	}

	got, _ = fs.Glob("LFN:remote.dat")
	if len(got) != 1 || got[0] != "LFN:remote.dat" {
		t.Errorf("glob of remote LFN = %v, want the original reference", got)
	}

	got, _ = fs.Glob("LFN:absent.dat")
	if len(got) != 0 {
		t.Errorf("glob of absent LFN = %v, want empty", got)
	}
}

func TestOpen_FileSchemeReplica(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "foo.txt", "payload")

	cat := replica.Catalog{"foo.txt": {Replicas: []replica.Replica{{URL: "file://" + path}}}}
	fs := New(dir, cat, testLogger())

	r, err := fs.Open("LFN:foo.txt")
	if err != nil {
		t.Fatalf("open resolved LFN: %v", err)
	}
	defer r.Close()
	data, _ := io.ReadAll(r)
	if string(data) != "payload" {
		t.Errorf("content = %q", data)
	}
}
