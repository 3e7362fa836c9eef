package embedcache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/voxrecon/internal/models"
)

func emb(id string, start int64, role models.StreamRole, dims int) models.CachedEmbedding {
	v := make([]float32, dims)
	for i := range v {
		v[i] = float32(i+1) / float32(dims)
	}
	return models.CachedEmbedding{
		SegmentID:  id,
		Embedding:  v,
		StartMs:    start,
		EndMs:      start + 1000,
		StreamRole: role,
	}
}

func TestInsertAndSize(t *testing.T) {
	c := New(1 << 20)
	for i := range 5 {
		require.True(t, c.Insert(emb(fmt.Sprintf("seg-%d", i), int64(i)*1000, models.StreamStudents, 192)))
	}

	assert.Equal(t, 5, c.Len())
	assert.Equal(t, int64(5*(192*4+EntryOverheadBytes)), c.MemoryUsage())
}

func TestInsertRejectsNewIDOverBudget(t *testing.T) {
	size := int64(8*4 + EntryOverheadBytes)
	c := New(2 * size)

	require.True(t, c.Insert(emb("a", 0, models.StreamStudents, 8)))
	require.True(t, c.Insert(emb("b", 1000, models.StreamStudents, 8)))
	assert.False(t, c.Insert(emb("c", 2000, models.StreamStudents, 8)))
	assert.Equal(t, 2, c.Len())
	assert.LessOrEqual(t, c.MemoryUsage(), c.MaxBytes())

	_, ok := c.Get("c")
	assert.False(t, ok)
}

func TestInsertOverwriteAlwaysSucceeds(t *testing.T) {
	size := int64(8*4 + EntryOverheadBytes)
	c := New(size)

	require.True(t, c.Insert(emb("a", 0, models.StreamStudents, 8)))
	// A larger vector under the same id is still accepted.
	assert.True(t, c.Insert(emb("a", 500, models.StreamTeacher, 16)))
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(16*4+EntryOverheadBytes), c.MemoryUsage())

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, int64(500), got.StartMs)
	assert.Equal(t, models.StreamTeacher, got.StreamRole)
}

func TestAllSortedAndByStream(t *testing.T) {
	c := New(0)
	c.Insert(emb("late", 3000, models.StreamStudents, 4))
	c.Insert(emb("early", 1000, models.StreamTeacher, 4))
	c.Insert(emb("mid", 2000, models.StreamStudents, 4))

	all := c.All()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"early", "mid", "late"}, []string{all[0].SegmentID, all[1].SegmentID, all[2].SegmentID})

	students := c.ByStream(models.StreamStudents)
	require.Len(t, students, 2)
	assert.Equal(t, "mid", students[0].SegmentID)
	assert.Equal(t, "late", students[1].SegmentID)
	assert.Empty(t, c.ByStream(models.StreamMixed))
}

func TestGetReturnsCopy(t *testing.T) {
	c := New(0)
	c.Insert(emb("a", 0, models.StreamStudents, 4))

	got, _ := c.Get("a")
	got.Embedding[0] = 99

	again, _ := c.Get("a")
	assert.NotEqual(t, float32(99), again.Embedding[0])
}

func TestClear(t *testing.T) {
	c := New(0)
	c.Insert(emb("a", 0, models.StreamStudents, 4))
	c.Clear()

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.MemoryUsage())
}

func TestRemoveFunc(t *testing.T) {
	size := int64(4*4 + EntryOverheadBytes)
	c := New(3 * size)
	for i := range 3 {
		require.True(t, c.Insert(emb(fmt.Sprintf("seg-%d", i), int64(i)*1000, models.StreamStudents, 4)))
	}
	require.False(t, c.Insert(emb("late", 5000, models.StreamStudents, 4)))

	n := c.RemoveFunc(func(e models.CachedEmbedding) bool { return e.StartMs < 2000 })
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, size, c.MemoryUsage())

	// Freed budget admits new ids again.
	assert.True(t, c.Insert(emb("late", 5000, models.StreamStudents, 4)))
}

func TestSerializeRoundTrip(t *testing.T) {
	c := New(0)
	in := emb("seg-1", 1500, models.StreamStudents, 6)
	in.WindowClusterID = "c2"
	c.Insert(in)
	c.Insert(emb("seg-0", 200, models.StreamTeacher, 6))

	data, err := c.Serialize()
	require.NoError(t, err)

	restored := New(0)
	restored.Insert(emb("stale", 0, models.StreamMixed, 6))
	dropped, err := restored.Deserialize(data)
	require.NoError(t, err)
	assert.Zero(t, dropped)

	assert.Equal(t, c.All(), restored.All())
	assert.Equal(t, c.MemoryUsage(), restored.MemoryUsage())
	_, ok := restored.Get("stale")
	assert.False(t, ok, "deserialize must replace existing contents")
}

func TestDeserializeRespectsBudget(t *testing.T) {
	src := New(0)
	for i := range 4 {
		src.Insert(emb(fmt.Sprintf("s%d", i), int64(i), models.StreamStudents, 8))
	}
	data, err := src.Serialize()
	require.NoError(t, err)

	dst := New(2 * int64(8*4+EntryOverheadBytes))
	dropped, err := dst.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, 2, dst.Len())
}

func TestDeserializeInvalid(t *testing.T) {
	c := New(0)
	_, err := c.Deserialize([]byte(`not json`))
	assert.Error(t, err)

	_, err = c.Deserialize([]byte(`[{"segment_id":"x","embedding":"AAA="}]`))
	assert.Error(t, err)
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{0, -1.5, 3.25, 1e-7}
	got, err := DecodeVector(EncodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)
}
