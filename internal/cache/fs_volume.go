package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oar-dist/oar-dist/internal/checksum"
)

// Reserved file name prefixes: in-flight writes and per-object metadata
// sidecars. Object names whose last segment carries either are rejected.
const (
	tempPrefix = ".cache-"
	metaPrefix = ".meta-"
)

// objectMeta is the JSON sidecar kept beside each object. SHA-256 checksums
// are stored in digest form; other algorithms keep their raw label.
type objectMeta struct {
	Digest      string             `json:"digest,omitempty"`
	Checksum    *checksum.Checksum `json:"checksum,omitempty"`
	ContentType string             `json:"contentType,omitempty"`
}

// FilesystemVolume stores each object as a file under a root directory. The
// object name, a slash-separated relative path, maps 1:1 onto the file.
type FilesystemVolume struct {
	name string
	root string

	mu    sync.Mutex
	locks map[string]*entryLock
}

// entryLock 避免同一对象名并发写入。
type entryLock struct {
	mu   sync.Mutex
	refs int
}

// NewFilesystemVolume 以 root 为根目录构建缓存卷，目录不存在时自动创建。
func NewFilesystemVolume(name, root string) (*FilesystemVolume, error) {
	if name == "" {
		return nil, errors.New("volume name required")
	}
	if root == "" {
		return nil, errors.New("volume root required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve volume root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create volume root: %w", err)
	}

	return &FilesystemVolume{
		name:  name,
		root:  abs,
		locks: make(map[string]*entryLock),
	}, nil
}

func (v *FilesystemVolume) Name() string {
	return v.name
}

// Root returns the absolute directory backing the volume.
func (v *FilesystemVolume) Root() string {
	return v.root
}

func (v *FilesystemVolume) Exists(ctx context.Context, name string) (bool, error) {
	filePath, err := v.path(name)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, volumeError(v.name, "stat", name, err)
	}
	return info.Mode().IsRegular(), nil
}

func (v *FilesystemVolume) GetStream(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filePath, err := v.path(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, volumeError(v.name, "stat", name, err)
	}
	if !info.Mode().IsRegular() {
		return nil, ErrNotFound
	}

	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, volumeError(v.name, "open", name, err)
	}
	return f, nil
}

func (v *FilesystemVolume) Get(ctx context.Context, name string) (*CacheObject, error) {
	filePath, err := v.path(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, volumeError(v.name, "stat", name, err)
	}
	if !info.Mode().IsRegular() {
		return nil, ErrNotFound
	}

	obj := &CacheObject{
		Name:       name,
		VolumeName: v.name,
		Volume:     v,
		Size:       info.Size(),
		ModTime:    info.ModTime(),
		Metadata:   Metadata{MetaSize: info.Size(), MetaModified: info.ModTime()},
	}
	meta, err := v.readMeta(filePath)
	if err != nil {
		return nil, volumeError(v.name, "read meta", name, err)
	}
	if sum, ok := meta.checksum(); ok {
		obj.Checksum = sum
		obj.Metadata.SetChecksum(sum)
	}
	if meta.ContentType != "" {
		obj.Metadata[MetaContentType] = meta.ContentType
	}
	return obj, nil
}

// SaveAs writes into a temporary file beside the destination and renames it
// into place once fully written.
func (v *FilesystemVolume) SaveAs(ctx context.Context, r io.Reader, name string, md Metadata) error {
	filePath, err := v.path(name)
	if err != nil {
		return err
	}

	unlock := v.lockEntry(name)
	defer unlock()

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return volumeError(v.name, "mkdir", name, err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(filePath), tempPrefix+"*")
	if err != nil {
		return volumeError(v.name, "create", name, err)
	}
	tempName := tempFile.Name()

	_, readErr, writeErr := copyWithContext(ctx, tempFile, r)
	closeErr := tempFile.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if readErr != nil {
		os.Remove(tempName)
		return fmt.Errorf("read source for %s: %w", name, readErr)
	}
	if writeErr != nil {
		os.Remove(tempName)
		return volumeError(v.name, "write", name, writeErr)
	}

	if modTime, ok := md.Modified(); ok {
		if err := os.Chtimes(tempName, modTime, modTime); err != nil {
			os.Remove(tempName)
			return volumeError(v.name, "chtimes", name, err)
		}
	}

	if err := v.writeMeta(filePath, md); err != nil {
		os.Remove(tempName)
		return volumeError(v.name, "write meta", name, err)
	}
	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		os.Remove(metaPath(filePath))
		return volumeError(v.name, "rename", name, err)
	}
	return nil
}

func (v *FilesystemVolume) SaveObjectAs(ctx context.Context, obj *CacheObject, name string, md Metadata) error {
	return copyObject(ctx, v, obj, name, md)
}

func (v *FilesystemVolume) Remove(ctx context.Context, name string) (bool, error) {
	filePath, err := v.path(name)
	if err != nil {
		return false, err
	}

	unlock := v.lockEntry(name)
	defer unlock()

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, volumeError(v.name, "stat", name, err)
	}
	if !info.Mode().IsRegular() {
		return false, nil
	}
	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, volumeError(v.name, "remove", name, err)
	}
	if err := os.Remove(metaPath(filePath)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return true, volumeError(v.name, "remove meta", name, err)
	}
	return true, nil
}

// UsedBytes sums the sizes of the stored objects, ignoring in-flight
// temporary files and metadata sidecars.
func (v *FilesystemVolume) UsedBytes(ctx context.Context) (int64, error) {
	var total int64
	err := filepath.WalkDir(v.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || isReservedName(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, volumeError(v.name, "walk", "", err)
	}
	return total, nil
}

func (v *FilesystemVolume) lockEntry(name string) func() {
	v.mu.Lock()
	lock := v.locks[name]
	if lock == nil {
		lock = &entryLock{}
		v.locks[name] = lock
	}
	lock.refs++
	v.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		v.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(v.locks, name)
		}
		v.mu.Unlock()
	}
}

// path maps an object name onto a file below root. Names containing ".."
// segments, absolute names, reserved file names and the empty name are
// rejected.
func (v *FilesystemVolume) path(name string) (string, error) {
	if name == "" || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	slashed := filepath.ToSlash(name)
	if strings.HasPrefix(slashed, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	segs := strings.Split(slashed, "/")
	for _, seg := range segs {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	if isReservedName(segs[len(segs)-1]) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	rel := strings.TrimPrefix(path.Clean("/"+slashed), "/")
	if rel == "" || rel == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	filePath := filepath.Join(v.root, filepath.FromSlash(rel))
	if !strings.HasPrefix(filePath, v.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filePath, nil
}

// writeMeta 将校验和与内容类型写入对象旁的 sidecar，同样采用临时文件 + rename。
// 没有可记录的元数据时删除旧的 sidecar，避免覆盖写入后残留过期校验和。
func (v *FilesystemVolume) writeMeta(filePath string, md Metadata) error {
	var meta objectMeta
	if sum, ok := md.Checksum(); ok {
		if d, err := sum.Digest(); err == nil {
			meta.Digest = d.String()
		} else {
			meta.Checksum = &sum
		}
	}
	if ct, ok := md[MetaContentType].(string); ok {
		meta.ContentType = ct
	}

	target := metaPath(filePath)
	if meta.Digest == "" && meta.Checksum == nil && meta.ContentType == "" {
		if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}

	payload, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	tempFile, err := os.CreateTemp(filepath.Dir(filePath), tempPrefix+"*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	_, err = tempFile.Write(payload)
	if closeErr := tempFile.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tempName, target)
	}
	if err != nil {
		os.Remove(tempName)
	}
	return err
}

func (v *FilesystemVolume) readMeta(filePath string) (objectMeta, error) {
	var meta objectMeta
	payload, err := os.ReadFile(metaPath(filePath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return meta, nil
		}
		return meta, err
	}
	if err := json.Unmarshal(payload, &meta); err != nil {
		return meta, fmt.Errorf("decode object meta: %w", err)
	}
	return meta, nil
}

func (m objectMeta) checksum() (checksum.Checksum, bool) {
	if m.Digest != "" {
		sum, err := checksum.FromDigest(m.Digest)
		return sum, err == nil
	}
	if m.Checksum != nil && !m.Checksum.IsZero() {
		return *m.Checksum, true
	}
	return checksum.Checksum{}, false
}

func metaPath(filePath string) string {
	return filepath.Join(filepath.Dir(filePath), metaPrefix+filepath.Base(filePath))
}

func isReservedName(base string) bool {
	return strings.HasPrefix(base, tempPrefix) || strings.HasPrefix(base, metaPrefix)
}

// copyWithContext copies src into dst, reporting failures on the reading and
// the writing side separately so callers can tell a broken source from a
// broken volume.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (copied int64, readErr, writeErr error) {
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err, nil
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, nil, wErr
			}
			if w < n {
				return copied, nil, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil, nil
			}
			return copied, err, nil
		}
	}
}

var _ UsageReporter = (*FilesystemVolume)(nil)

