package sandbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// LocalStore keeps sandbox archives in a directory on the submitting host.
type LocalStore struct {
	dir    string
	logger *slog.Logger
}

// NewLocalStore creates a LocalStore rooted at dir.
func NewLocalStore(dir string, logger *slog.Logger) *LocalStore {
	return &LocalStore{
		dir:    dir,
		logger: logger.With("component", "sandbox"),
	}
}

// Upload archives the files and stores the archive under its checksum
// name. An archive that already exists is not rewritten.
func (s *LocalStore) Upload(ctx context.Context, paths []string) (string, error) {
	tmp, ref, size, err := archiveToTemp(paths)
	if err != nil {
		return "", fmt.Errorf("build sandbox: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()
	if err := ctx.Err(); err != nil {
		return "", err
	}

	pfn, err := pfnFromRef(ref)
	if err != nil {
		return "", err
	}
	target := filepath.Join(s.dir, pfn)
	if _, err := os.Stat(target); err == nil {
		s.logger.Debug("sandbox already stored", "ref", ref)
		return ref, nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	dst, err := os.Create(target)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, tmp); err != nil {
		dst.Close()
		os.Remove(target)
		return "", fmt.Errorf("store sandbox: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", err
	}

	s.logger.Info("uploaded sandbox", "ref", ref, "files", len(paths), "size", size)
	return ref, nil
}

// Download extracts the referenced archive into destination.
func (s *LocalStore) Download(ctx context.Context, ref, destination string) error {
	pfn, err := pfnFromRef(ref)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Open(filepath.Join(s.dir, pfn))
	if err != nil {
		return fmt.Errorf("open sandbox %s: %w", ref, err)
	}
	defer f.Close()

	if err := os.MkdirAll(destination, 0o755); err != nil {
		return err
	}
	if err := extractArchive(f, destination); err != nil {
		return fmt.Errorf("extract sandbox %s: %w", ref, err)
	}
	s.logger.Info("downloaded sandbox", "ref", ref, "destination", destination)
	return nil
}
