package sandbox

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "job.sh"), "#!/bin/sh\necho run\n")
	writeFile(t, filepath.Join(src, "cards", "gen.card"), "NEVENTS 500\n")

	store := NewLocalStore(t.TempDir(), testLogger())
	ref, err := store.Upload(ctx, []string{
		filepath.Join(src, "job.sh"),
		filepath.Join(src, "cards"),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !IsRef(ref) {
		t.Fatalf("ref = %q", ref)
	}
	if !strings.HasPrefix(ref, "SB:sha256:") || !strings.HasSuffix(ref, ".tar.gz") {
		t.Errorf("ref format = %q", ref)
	}

	dst := t.TempDir()
	if err := store.Download(ctx, ref, dst); err != nil {
		t.Fatalf("Download: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dst, "job.sh"))
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if !strings.Contains(string(data), "echo run") {
		t.Errorf("content = %q", data)
	}
	card, err := os.ReadFile(filepath.Join(dst, "cards", "gen.card"))
	if err != nil {
		t.Fatalf("read nested file: %v", err)
	}
	if string(card) != "NEVENTS 500\n" {
		t.Errorf("card content = %q", card)
	}
}

func TestUploadDeduplicates(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "same content")

	storeDir := t.TempDir()
	store := NewLocalStore(storeDir, testLogger())

	ref1, err := store.Upload(ctx, []string{filepath.Join(src, "a.txt")})
	if err != nil {
		t.Fatalf("first Upload: %v", err)
	}
	ref2, err := store.Upload(ctx, []string{filepath.Join(src, "a.txt")})
	if err != nil {
		t.Fatalf("second Upload: %v", err)
	}
	if ref1 != ref2 {
		t.Errorf("refs differ: %q vs %q", ref1, ref2)
	}

	entries, err := os.ReadDir(storeDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("store holds %d archives, want 1", len(entries))
	}
}

func TestDifferentContentDifferentRefs(t *testing.T) {
	ctx := context.Background()
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "first")
	writeFile(t, filepath.Join(src, "b.txt"), "second")

	store := NewLocalStore(t.TempDir(), testLogger())
	ref1, err := store.Upload(ctx, []string{filepath.Join(src, "a.txt")})
	if err != nil {
		t.Fatal(err)
	}
	ref2, err := store.Upload(ctx, []string{filepath.Join(src, "b.txt")})
	if err != nil {
		t.Fatal(err)
	}
	if ref1 == ref2 {
		t.Errorf("distinct content produced the same ref %q", ref1)
	}
}

func TestDownloadRejectsBadRef(t *testing.T) {
	store := NewLocalStore(t.TempDir(), testLogger())
	if err := store.Download(context.Background(), "not-a-ref", t.TempDir()); err == nil {
		t.Error("expected error for malformed ref")
	}
	if err := store.Download(context.Background(), "SB:md5:abc.tar.gz", t.TempDir()); err == nil {
		t.Error("expected error for unsupported checksum")
	}
}

func TestDownloadMissingArchive(t *testing.T) {
	store := NewLocalStore(t.TempDir(), testLogger())
	ref := RefPrefix + "sha256:" + strings.Repeat("0", 64) + ".tar.gz"
	if err := store.Download(context.Background(), ref, t.TempDir()); err == nil {
		t.Error("expected error for missing archive")
	}
}
