package localfile

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Requester fetches [start, end] of a file from the peer, returning the
// bytes it received. A LocalDataSource calls this whenever none of its
// caches can satisfy a read, or a cache's read-ahead water line has
// been crossed.
type Requester func(ctx context.Context, fileID string, start, end int64) ([]byte, error)

// Config bounds a LocalDataSource's cache pool, named after
// config.LocalFileConfig so callers can pass that struct straight
// through without a translation layer.
type Config struct {
	CacheCount        int
	CacheBytes        int64
	LowWaterBytes     int64
	MaxRequestBytes   int64
	FirstRequestBytes int64
	ReadWait          time.Duration
	StaleRequest      time.Duration
}

// LocalDataSource answers ReadAt calls for one remote file id out of a
// small LRU pool of Cache windows, issuing range requests through a
// Requester only when a read can't be served from an existing window.
// It plays the role CastLocalFileChannel's LocalDataSource plays
// between the player's data source callback and the wire.
type LocalDataSource struct {
	cfg       Config
	fileID    string
	totalSize int64
	request   Requester

	mu     sync.Mutex
	caches []*Cache
}

// NewLocalDataSource builds a data source for fileID, whose full size
// is totalSize (-1 if unknown).
func NewLocalDataSource(cfg Config, fileID string, totalSize int64, request Requester) *LocalDataSource {
	count := cfg.CacheCount
	if count <= 0 {
		count = 1
	}
	caches := make([]*Cache, count)
	for i := range caches {
		caches[i] = NewCache(cfg.CacheBytes)
	}
	return &LocalDataSource{cfg: cfg, fileID: fileID, totalSize: totalSize, request: request, caches: caches}
}

// ReadAt fills out with bytes starting at position, requesting fresh
// data over the wire as needed. It blocks until satisfied, ctx is
// cancelled, or the peer reports an error.
func (d *LocalDataSource) ReadAt(ctx context.Context, position int64, out []byte) (int, error) {
	if cache := d.findMatch(position); cache != nil {
		if n := cache.Read(position, out); n > 0 {
			d.maybeReadAhead(ctx, cache, position)
			return n, nil
		}
	}

	if err := d.fetch(ctx, position, int64(len(out))); err != nil {
		return 0, err
	}

	cache := d.findMatch(position)
	if cache == nil {
		return 0, fmt.Errorf("localfile: no cache covers position %d after fetch", position)
	}
	return cache.Read(position, out), nil
}

func (d *LocalDataSource) findMatch(position int64) *Cache {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.caches {
		if c.IsMatch(position) {
			return c
		}
	}
	return nil
}

// maybeReadAhead fires a read-ahead request on its own goroutine once a
// cache's unread tail drops below the configured low water mark; the
// caller does not wait for it.
func (d *LocalDataSource) maybeReadAhead(ctx context.Context, cache *Cache, position int64) {
	if cache.IsNeedReqData(position, d.cfg.LowWaterBytes) != NeedReqInCurrentCache {
		return
	}
	cache.MarkPending()
	start := cache.End()
	size := d.cfg.MaxRequestBytes
	if size <= 0 {
		size = d.cfg.CacheBytes
	}
	go func() {
		data, err := d.request(ctx, d.fileID, start, start+size-1)
		if err != nil {
			cache.Reset()
			return
		}
		cache.Append(start, data)
	}()
}

// fetch synchronously requests a fresh window starting at position into
// the least-recently-used cache, evicting whatever it previously held.
func (d *LocalDataSource) fetch(ctx context.Context, position, hint int64) error {
	size := d.cfg.FirstRequestBytes
	if hint > size {
		size = hint
	}
	if max := d.cfg.MaxRequestBytes; max > 0 && size > max {
		size = max
	}
	end := position + size - 1
	if d.totalSize >= 0 && end >= d.totalSize {
		end = d.totalSize - 1
	}

	data, err := d.request(ctx, d.fileID, position, end)
	if err != nil {
		return fmt.Errorf("localfile: range request [%d,%d] failed: %w", position, end, err)
	}

	cache := d.evictOldest()
	cache.Write(position, data)
	return nil
}

// evictOldest returns the cache pool's least-recently-used entry,
// matching LocalDataSource's MAX_CACHE_COUNT-bounded LRU replacement.
func (d *LocalDataSource) evictOldest() *Cache {
	d.mu.Lock()
	defer d.mu.Unlock()
	oldest := d.caches[0]
	for _, c := range d.caches[1:] {
		if !c.IsValid() {
			return c
		}
		if c.GetUsedTime() > oldest.GetUsedTime() {
			oldest = c
		}
	}
	return oldest
}

// Invalidate drops every cached window, forcing subsequent reads to
// re-request from the peer. Used after a seek far outside any window.
func (d *LocalDataSource) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.caches {
		c.Reset()
	}
}

// TotalSize returns the file's known total size, or -1 if unknown.
func (d *LocalDataSource) TotalSize() int64 { return d.totalSize }
