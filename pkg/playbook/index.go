package playbook

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"sort"

	"github.com/viterin/vek/vek32"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

// Index is a flat inner-product index over L2-normalized vectors. On
// normalized input an inner product equals cosine similarity. Insertion
// is append-only; removal happens only through full rebuilds.
//
// The index is not safe for concurrent use; the owning store serializes
// access.
type Index struct {
	dim     int
	vectors [][]float32
}

// NewIndex creates an empty index for vectors of the given dimension.
func NewIndex(dim int) *Index {
	return &Index{dim: dim}
}

// Add appends a vector. The caller must pass vectors of the index dimension.
func (ix *Index) Add(vec []float32) error {
	if len(vec) != ix.dim {
		return errors.WithFields(
			errors.New(errors.InvalidInput, "vector dimension mismatch"),
			errors.Fields{"want": ix.dim, "got": len(vec)},
		)
	}
	ix.vectors = append(ix.vectors, vec)
	return nil
}

// Size returns the number of stored vectors.
func (ix *Index) Size() int {
	return len(ix.vectors)
}

// Vector returns the stored vector at the given position.
func (ix *Index) Vector(pos int) []float32 {
	return ix.vectors[pos]
}

// Match is a single search hit.
type Match struct {
	Position int
	Score    float32
}

// Search returns the top-k positions by inner product with query, ordered by
// descending score. k is clamped to the index size.
func (ix *Index) Search(query []float32, k int) []Match {
	if k > len(ix.vectors) {
		k = len(ix.vectors)
	}
	if k <= 0 {
		return nil
	}

	matches := make([]Match, len(ix.vectors))
	for i, vec := range ix.vectors {
		matches[i] = Match{Position: i, Score: vek32.Dot(query, vec)}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	return matches[:k]
}

// Similarity returns the inner product between two stored vectors. Vectors
// are normalized at insert time, so this is cosine similarity; zero vectors
// from degraded embeds score 0 and never cross a positive threshold.
func (ix *Index) Similarity(i, j int) float32 {
	return vek32.Dot(ix.vectors[i], ix.vectors[j])
}

// Rebuild replaces the index contents with the given vectors.
func (ix *Index) Rebuild(vectors [][]float32) error {
	rebuilt := make([][]float32, 0, len(vectors))
	for _, vec := range vectors {
		if len(vec) != ix.dim {
			return errors.WithFields(
				errors.New(errors.InvalidInput, "vector dimension mismatch during rebuild"),
				errors.Fields{"want": ix.dim, "got": len(vec)},
			)
		}
		rebuilt = append(rebuilt, vec)
	}
	ix.vectors = rebuilt
	return nil
}

// indexFile is the gob-serialized on-disk representation.
type indexFile struct {
	Dim     int
	Vectors [][]float32
}

// Save writes the index to path atomically.
func (ix *Index) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, errors.PersistenceFailed, "creating index directory")
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrap(err, errors.PersistenceFailed, "creating index file")
	}

	if err := gob.NewEncoder(f).Encode(indexFile{Dim: ix.dim, Vectors: ix.vectors}); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, errors.PersistenceFailed, "encoding index")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, errors.PersistenceFailed, "closing index file")
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, errors.PersistenceFailed, "replacing index file")
	}
	return nil
}

// LoadIndex reads an index from path. The stored dimension must match dim.
func LoadIndex(path string, dim int) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.PersistenceFailed, "opening index file")
	}
	defer f.Close()

	var stored indexFile
	if err := gob.NewDecoder(f).Decode(&stored); err != nil {
		return nil, errors.Wrap(err, errors.PersistenceFailed, "decoding index")
	}
	if stored.Dim != dim {
		return nil, errors.WithFields(
			errors.New(errors.PersistenceFailed, "index dimension mismatch"),
			errors.Fields{"want": dim, "got": stored.Dim},
		)
	}

	return &Index{dim: stored.Dim, vectors: stored.Vectors}, nil
}
