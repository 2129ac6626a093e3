// Package testutil provides shared mocks for ace-go tests.
package testutil

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// MockEmbeddingProvider is a deterministic in-memory embedding provider.
// By default it hashes word tokens into vector buckets, so texts sharing
// words land near each other in cosine space. Individual texts can be pinned
// to explicit vectors, and calls can be forced to fail.
type MockEmbeddingProvider struct {
	mu      sync.Mutex
	dims    int
	calls   int
	failErr error
	pinned  map[string][]float32
}

// NewMockEmbeddingProvider creates a provider emitting vectors of the given
// dimension.
func NewMockEmbeddingProvider(dims int) *MockEmbeddingProvider {
	return &MockEmbeddingProvider{
		dims:   dims,
		pinned: make(map[string][]float32),
	}
}

// Embed returns the pinned or hashed vector for text, counting the call.
func (m *MockEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.failErr != nil {
		return nil, m.failErr
	}

	if vec, ok := m.pinned[text]; ok {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out, nil
	}

	vec := make([]float32, m.dims)
	for _, token := range tokenizeWords(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[int(h.Sum32())%m.dims] += 1
	}
	return vec, nil
}

// Dimensions returns the configured vector size.
func (m *MockEmbeddingProvider) Dimensions() int {
	return m.dims
}

// SetVector pins an exact (unnormalized) vector for the given text.
func (m *MockEmbeddingProvider) SetVector(text string, vec []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinned[text] = vec
}

// FailWith makes subsequent Embed calls return err. Pass nil to recover.
func (m *MockEmbeddingProvider) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// Calls returns how many times Embed was invoked.
func (m *MockEmbeddingProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// ResetCalls zeroes the call counter.
func (m *MockEmbeddingProvider) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = 0
}

func tokenizeWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
