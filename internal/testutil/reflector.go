package testutil

import (
	"context"
	"sync"

	"github.com/XiaoConstantine/ace-go/pkg/chats"
	"github.com/XiaoConstantine/ace-go/pkg/feedback"
	"github.com/XiaoConstantine/ace-go/pkg/reflection"
)

// MockReflector returns a fixed insight or error from every Reflect call.
type MockReflector struct {
	mu      sync.Mutex
	insight *reflection.Insight
	err     error
	calls   int
}

func NewMockReflector(insight *reflection.Insight) *MockReflector {
	return &MockReflector{insight: insight}
}

func (m *MockReflector) Reflect(ctx context.Context, turn *chats.Turn, fb *feedback.Record) (*reflection.Insight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.insight, nil
}

// FailWith makes every subsequent Reflect call return err.
func (m *MockReflector) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockReflector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
