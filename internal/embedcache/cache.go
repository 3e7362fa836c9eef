// Package embedcache holds voice embeddings for a session under a fixed byte budget.
package embedcache

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/raphaelgruber/voxrecon/internal/models"
)

// EntryOverheadBytes is the fixed accounting cost of one entry on top of its vector.
const EntryOverheadBytes = 128

// DefaultMaxBytes is the budget used when none is configured.
const DefaultMaxBytes = 50 * 1024 * 1024

// Cache is a byte-bounded map of segment id to embedding. Nothing is ever evicted:
// once full, new ids are rejected while overwrites of existing ids still succeed.
type Cache struct {
	mu       sync.RWMutex
	maxBytes int64
	used     int64
	entries  map[string]models.CachedEmbedding
}

// New creates an empty cache. A non-positive maxBytes selects DefaultMaxBytes.
func New(maxBytes int64) *Cache {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Cache{
		maxBytes: maxBytes,
		entries:  make(map[string]models.CachedEmbedding),
	}
}

func entrySize(e models.CachedEmbedding) int64 {
	return int64(len(e.Embedding))*4 + EntryOverheadBytes
}

// Insert stores e. It returns false only when e.SegmentID is new and adding it
// would exceed the budget.
func (c *Cache) Insert(e models.CachedEmbedding) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertLocked(e)
}

func (c *Cache) insertLocked(e models.CachedEmbedding) bool {
	size := entrySize(e)
	if old, ok := c.entries[e.SegmentID]; ok {
		c.used += size - entrySize(old)
		c.entries[e.SegmentID] = cloneEntry(e)
		return true
	}
	if c.used+size > c.maxBytes {
		return false
	}
	c.used += size
	c.entries[e.SegmentID] = cloneEntry(e)
	return true
}

// Get returns the embedding stored under id.
func (c *Cache) Get(id string) (models.CachedEmbedding, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok {
		return models.CachedEmbedding{}, false
	}
	return cloneEntry(e), true
}

// All returns every entry ordered by StartMs, then SegmentID.
func (c *Cache) All() []models.CachedEmbedding {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.CachedEmbedding, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, cloneEntry(e))
	}
	sortByStart(out)
	return out
}

// ByStream returns the entries of one stream role ordered by StartMs.
func (c *Cache) ByStream(role models.StreamRole) []models.CachedEmbedding {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []models.CachedEmbedding
	for _, e := range c.entries {
		if e.StreamRole == role {
			out = append(out, cloneEntry(e))
		}
	}
	sortByStart(out)
	return out
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// MemoryUsage returns the accounted bytes of all entries.
func (c *Cache) MemoryUsage() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.used
}

// MaxBytes returns the configured budget.
func (c *Cache) MaxBytes() int64 {
	return c.maxBytes
}

// RemoveFunc drops every entry for which del returns true and reports how
// many were removed.
func (c *Cache) RemoveFunc(del func(models.CachedEmbedding) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, e := range c.entries {
		if del(e) {
			c.used -= entrySize(e)
			delete(c.entries, id)
			n++
		}
	}
	return n
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]models.CachedEmbedding)
	c.used = 0
}

type record struct {
	SegmentID       string `json:"segment_id"`
	Embedding       string `json:"embedding"`
	StartMs         int64  `json:"start_ms"`
	EndMs           int64  `json:"end_ms"`
	WindowClusterID string `json:"window_cluster_id,omitempty"`
	StreamRole      string `json:"stream_role"`
}

// Serialize encodes the cache as a JSON list ordered by StartMs. Embeddings are
// base64 of their little-endian float32 bytes.
func (c *Cache) Serialize() ([]byte, error) {
	all := c.All()
	recs := make([]record, len(all))
	for i, e := range all {
		recs[i] = record{
			SegmentID:       e.SegmentID,
			Embedding:       EncodeVector(e.Embedding),
			StartMs:         e.StartMs,
			EndMs:           e.EndMs,
			WindowClusterID: e.WindowClusterID,
			StreamRole:      string(e.StreamRole),
		}
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return nil, fmt.Errorf("marshal cache: %w", err)
	}
	return data, nil
}

// Deserialize replaces the cache contents with data. Entries that do not fit the
// budget are skipped; the number skipped is returned.
func (c *Cache) Deserialize(data []byte) (int, error) {
	var recs []record
	if err := json.Unmarshal(data, &recs); err != nil {
		return 0, fmt.Errorf("unmarshal cache: %w", err)
	}

	decoded := make([]models.CachedEmbedding, 0, len(recs))
	for _, r := range recs {
		vec, err := DecodeVector(r.Embedding)
		if err != nil {
			return 0, fmt.Errorf("segment %s: %w", r.SegmentID, err)
		}
		decoded = append(decoded, models.CachedEmbedding{
			SegmentID:       r.SegmentID,
			Embedding:       vec,
			StartMs:         r.StartMs,
			EndMs:           r.EndMs,
			WindowClusterID: r.WindowClusterID,
			StreamRole:      models.StreamRole(r.StreamRole),
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]models.CachedEmbedding, len(decoded))
	c.used = 0
	dropped := 0
	for _, e := range decoded {
		if !c.insertLocked(e) {
			dropped++
		}
	}
	return dropped, nil
}

// EncodeVector returns base64 of the little-endian float32 bytes of v.
func EncodeVector(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeVector reverses EncodeVector.
func DecodeVector(s string) ([]float32, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("decode embedding: %d bytes is not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}

func cloneEntry(e models.CachedEmbedding) models.CachedEmbedding {
	e.Embedding = slices.Clone(e.Embedding)
	return e
}

func sortByStart(es []models.CachedEmbedding) {
	slices.SortFunc(es, func(a, b models.CachedEmbedding) int {
		if a.StartMs != b.StartMs {
			if a.StartMs < b.StartMs {
				return -1
			}
			return 1
		}
		return strings.Compare(a.SegmentID, b.SegmentID)
	})
}
