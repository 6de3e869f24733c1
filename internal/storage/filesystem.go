package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/oar-dist/oar-dist/internal/bags"
	"github.com/oar-dist/oar-dist/internal/checksum"
)

// checksumSuffix names the sidecar file holding a precomputed SHA-256 hash.
const checksumSuffix = ".sha256"

// FilesystemStorage serves long-term storage out of a single flat directory
// of bag files. A "<file>.sha256" sidecar, when present, supplies the file's
// checksum without rehashing it.
type FilesystemStorage struct {
	root string
}

// NewFilesystemStorage opens the directory at root. The directory must exist.
func NewFilesystemStorage(root string) (*FilesystemStorage, error) {
	if root == "" {
		return nil, errors.New("long-term storage path required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve long-term storage path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("open long-term storage: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("long-term storage path %s is not a directory", abs)
	}
	return &FilesystemStorage{root: abs}, nil
}

func (s *FilesystemStorage) OpenFile(ctx context.Context, name string) (io.ReadCloser, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, s.translate(name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, s.translate(name, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return f, nil
}

func (s *FilesystemStorage) Exists(ctx context.Context, name string) (bool, error) {
	p, err := s.path(name)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return false, nil
		}
		return false, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (s *FilesystemStorage) Size(ctx context.Context, name string) (int64, error) {
	p, err := s.path(name)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return 0, s.translate(name, err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return info.Size(), nil
}

// Checksum prefers a well-formed sidecar hash and falls back to hashing the
// file.
func (s *FilesystemStorage) Checksum(ctx context.Context, name string) (checksum.Checksum, error) {
	if ok, err := s.Exists(ctx, name); err != nil {
		return checksum.Checksum{}, err
	} else if !ok {
		return checksum.Checksum{}, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}

	if sum, ok, err := s.readSidecar(name); err != nil {
		return checksum.Checksum{}, err
	} else if ok {
		return sum, nil
	}

	rc, err := s.OpenFile(ctx, name)
	if err != nil {
		return checksum.Checksum{}, err
	}
	defer rc.Close()
	return checksum.CalcSHA256(rc)
}

// FindBagsFor lists legal bag names of the form "<identifier>.mbag...".
func (s *FilesystemStorage) FindBagsFor(ctx context.Context, identifier string) ([]string, error) {
	if identifier == "" || strings.ContainsAny(identifier, "./\\") {
		return nil, fmt.Errorf("%w: no bags for %q", ErrFileNotFound, identifier)
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list long-term storage: %w", err)
	}

	prefix := identifier + ".mbag"
	var out []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || strings.HasSuffix(name, checksumSuffix) {
			continue
		}
		if bags.IsLegalBagName(name) {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no bags for %q", ErrFileNotFound, identifier)
	}
	return out, nil
}

func (s *FilesystemStorage) FindHeadBagFor(ctx context.Context, identifier, version string) (string, error) {
	names, err := s.FindBagsFor(ctx, identifier)
	if err != nil {
		return "", err
	}
	if version != "" {
		names = bags.SelectVersion(names, version)
		if len(names) == 0 {
			return "", fmt.Errorf("%w: no bags for %q at version %s", ErrFileNotFound, identifier, version)
		}
	}
	return bags.FindLatestHeadBag(names)
}

func (s *FilesystemStorage) readSidecar(name string) (checksum.Checksum, bool, error) {
	p, err := s.path(name + checksumSuffix)
	if err != nil {
		return checksum.Checksum{}, false, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return checksum.Checksum{}, false, nil
		}
		return checksum.Checksum{}, false, err
	}
	defer f.Close()

	// sha256sum format: "<hex>  <filename>"; only the hash matters
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return checksum.Checksum{}, false, err
		}
		return checksum.Checksum{}, false, nil
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) == 0 {
		return checksum.Checksum{}, false, nil
	}
	sum := checksum.SHA256Of(fields[0])
	if _, err := sum.Digest(); err != nil {
		// 格式不合法的 sidecar 视为缺失，由调用方重新计算
		return checksum.Checksum{}, false, nil
	}
	return sum, true, nil
}

// path resolves a flat file name inside root. Names with path separators or
// parent references never resolve.
func (s *FilesystemStorage) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\") || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return filepath.Join(s.root, name), nil
}

func (s *FilesystemStorage) translate(name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return err
}

var _ LongTermStorage = (*FilesystemStorage)(nil)
