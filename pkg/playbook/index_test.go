package playbook

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexAddAndSize(t *testing.T) {
	ix := NewIndex(3)
	require.NoError(t, ix.Add([]float32{1, 0, 0}))
	require.NoError(t, ix.Add([]float32{0, 1, 0}))
	assert.Equal(t, 2, ix.Size())
}

func TestIndexAddDimensionMismatch(t *testing.T) {
	ix := NewIndex(3)
	err := ix.Add([]float32{1, 0})
	require.Error(t, err)
	assert.Equal(t, 0, ix.Size())
}

func TestIndexSearchOrdersByScore(t *testing.T) {
	ix := NewIndex(2)
	require.NoError(t, ix.Add([]float32{1, 0}))
	require.NoError(t, ix.Add([]float32{0, 1}))
	require.NoError(t, ix.Add([]float32{0.7071, 0.7071}))

	matches := ix.Search([]float32{1, 0}, 3)
	require.Len(t, matches, 3)
	assert.Equal(t, 0, matches[0].Position)
	assert.Equal(t, 2, matches[1].Position)
	assert.Equal(t, 1, matches[2].Position)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestIndexSearchClampsK(t *testing.T) {
	ix := NewIndex(2)
	require.NoError(t, ix.Add([]float32{1, 0}))

	matches := ix.Search([]float32{1, 0}, 10)
	assert.Len(t, matches, 1)

	assert.Nil(t, ix.Search([]float32{1, 0}, 0))
	assert.Nil(t, NewIndex(2).Search([]float32{1, 0}, 5))
}

func TestIndexRebuild(t *testing.T) {
	ix := NewIndex(2)
	require.NoError(t, ix.Add([]float32{1, 0}))
	require.NoError(t, ix.Add([]float32{0, 1}))

	require.NoError(t, ix.Rebuild([][]float32{{0, 1}}))
	assert.Equal(t, 1, ix.Size())
	assert.Equal(t, []float32{0, 1}, ix.Vector(0))

	require.Error(t, ix.Rebuild([][]float32{{1, 2, 3}}))
}

func TestIndexSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.gob")

	ix := NewIndex(3)
	require.NoError(t, ix.Add([]float32{1, 0, 0}))
	require.NoError(t, ix.Add([]float32{0, 0, 1}))
	require.NoError(t, ix.Save(path))

	loaded, err := LoadIndex(path, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Size())
	assert.Equal(t, []float32{0, 0, 1}, loaded.Vector(1))
}

func TestLoadIndexDimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.gob")

	ix := NewIndex(3)
	require.NoError(t, ix.Add([]float32{1, 0, 0}))
	require.NoError(t, ix.Save(path))

	_, err := LoadIndex(path, 4)
	require.Error(t, err)
}

func TestLoadIndexMissingFile(t *testing.T) {
	_, err := LoadIndex(filepath.Join(t.TempDir(), "missing.gob"), 3)
	require.Error(t, err)
}

func TestIndexSimilarity(t *testing.T) {
	ix := NewIndex(2)
	require.NoError(t, ix.Add([]float32{1, 0}))
	require.NoError(t, ix.Add([]float32{1, 0}))
	require.NoError(t, ix.Add([]float32{0, 1}))

	assert.InDelta(t, 1.0, ix.Similarity(0, 1), 1e-6)
	assert.InDelta(t, 0.0, ix.Similarity(0, 2), 1e-6)
}
