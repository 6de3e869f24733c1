package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oar-dist/oar-dist/internal/checksum"
)

const defaultRedisPrefix = "oar-dist:cache"

// RedisVolume keeps object bodies in Redis strings with a companion hash of
// metadata. Both keys are written in one MULTI/EXEC so readers never see a body
// without its metadata.
type RedisVolume struct {
	name   string
	prefix string
	client *redis.Client
}

// NewRedisVolume wraps an existing client. prefix namespaces the keys; an
// empty prefix uses "oar-dist:cache".
func NewRedisVolume(name string, client *redis.Client, prefix string) (*RedisVolume, error) {
	if name == "" {
		return nil, errors.New("volume name required")
	}
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisVolume{name: name, prefix: prefix, client: client}, nil
}

// NewRedisVolumeFromURL dials url and checks the connection.
func NewRedisVolumeFromURL(ctx context.Context, name, url string) (*RedisVolume, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewRedisVolume(name, client, "")
}

// Close closes the underlying Redis client.
func (v *RedisVolume) Close() error {
	return v.client.Close()
}

func (v *RedisVolume) Name() string {
	return v.name
}

func (v *RedisVolume) Exists(ctx context.Context, name string) (bool, error) {
	n, err := v.client.Exists(ctx, v.bodyKey(name)).Result()
	if err != nil {
		return false, volumeError(v.name, "exists", name, err)
	}
	return n > 0, nil
}

func (v *RedisVolume) SaveAs(ctx context.Context, r io.Reader, name string, md Metadata) error {
	if name == "" {
		return ErrInvalidName
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read source for %s: %w", name, err)
	}

	modTime, ok := md.Modified()
	if !ok {
		modTime = time.Now().UTC()
	}
	fields := map[string]any{
		MetaSize:     len(body),
		MetaModified: modTime.UnixMilli(),
	}
	if sum, ok := md.Checksum(); ok {
		fields[MetaChecksum] = sum.Hash
		fields[MetaChecksumAlgorithm] = sum.Algorithm
	}
	if ct, ok := md[MetaContentType].(string); ok && ct != "" {
		fields[MetaContentType] = ct
	}

	pipe := v.client.TxPipeline()
	pipe.Set(ctx, v.bodyKey(name), body, 0)
	pipe.Del(ctx, v.metaKey(name))
	pipe.HSet(ctx, v.metaKey(name), fields)
	if _, err := pipe.Exec(ctx); err != nil {
		return volumeError(v.name, "write", name, err)
	}
	return nil
}

func (v *RedisVolume) SaveObjectAs(ctx context.Context, obj *CacheObject, name string, md Metadata) error {
	return copyObject(ctx, v, obj, name, md)
}

func (v *RedisVolume) GetStream(ctx context.Context, name string) (io.ReadCloser, error) {
	body, err := v.client.Get(ctx, v.bodyKey(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, volumeError(v.name, "get", name, err)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (v *RedisVolume) Get(ctx context.Context, name string) (*CacheObject, error) {
	ok, err := v.Exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	fields, err := v.client.HGetAll(ctx, v.metaKey(name)).Result()
	if err != nil {
		return nil, volumeError(v.name, "get", name, err)
	}

	obj := &CacheObject{
		Name:       name,
		VolumeName: v.name,
		Volume:     v,
		Size:       -1,
		Metadata:   Metadata{},
	}
	if raw, ok := fields[MetaSize]; ok {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			obj.Size = n
			obj.Metadata[MetaSize] = n
		}
	}
	if obj.Size < 0 {
		n, err := v.client.StrLen(ctx, v.bodyKey(name)).Result()
		if err != nil {
			return nil, volumeError(v.name, "strlen", name, err)
		}
		obj.Size = n
		obj.Metadata[MetaSize] = n
	}
	if raw, ok := fields[MetaModified]; ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			obj.ModTime = time.UnixMilli(ms).UTC()
			obj.Metadata[MetaModified] = obj.ModTime
		}
	}
	if hash := fields[MetaChecksum]; hash != "" {
		obj.Checksum = checksum.New(hash, fields[MetaChecksumAlgorithm])
		obj.Metadata.SetChecksum(obj.Checksum)
	}
	if ct := fields[MetaContentType]; ct != "" {
		obj.Metadata[MetaContentType] = ct
	}
	return obj, nil
}

func (v *RedisVolume) Remove(ctx context.Context, name string) (bool, error) {
	pipe := v.client.TxPipeline()
	del := pipe.Del(ctx, v.bodyKey(name))
	pipe.Del(ctx, v.metaKey(name))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, volumeError(v.name, "remove", name, err)
	}
	return del.Val() > 0, nil
}

func (v *RedisVolume) bodyKey(name string) string {
	return v.prefix + ":" + v.name + ":body:" + name
}

func (v *RedisVolume) metaKey(name string) string {
	return v.prefix + ":" + v.name + ":meta:" + name
}
