// Package history provides the ports.ConversationHistoryService and an
// in-memory reference implementation. A production (SQL/KV) backend is out
// of scope; this package is a port plus a development/testing adapter.
package history

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/corpusqa/pipelineengine/ports"
)

// Entry is one stored turn for a session.
type Entry struct {
	TurnID string
	Query  string
	Answer string
}

// InMemory is a map-backed ConversationHistoryService, guarded by a
// RWMutex. Suitable for development/testing; data does not survive process
// restart.
type InMemory struct {
	mu    sync.RWMutex
	store map[string][]Entry
}

var _ ports.ConversationHistoryService = (*InMemory)(nil)

// NewInMemory builds an empty in-memory conversation history store.
func NewInMemory() *InMemory {
	return &InMemory{store: make(map[string][]Entry)}
}

// OnRequestStarted allocates a new turn id for sessionID. Best-effort: the
// only failure mode is context cancellation.
func (m *InMemory) OnRequestStarted(ctx context.Context, sessionID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}

// OnRequestFinalized appends record to sessionID's turn list.
func (m *InMemory) OnRequestFinalized(ctx context.Context, record ports.TurnRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[record.SessionID] = append(m.store[record.SessionID], Entry{
		TurnID: record.TurnID,
		Query:  record.Query,
		Answer: record.Answer,
	})
	return nil
}

// RecentQANeutral returns the most recent limit Q/A pairs for sessionID,
// oldest first. Returns an empty slice if the session is unknown.
func (m *InMemory) RecentQANeutral(ctx context.Context, sessionID string, limit int) ([]ports.QAPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []ports.QAPair{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.store[sessionID]
	if len(entries) == 0 {
		return []ports.QAPair{}, nil
	}

	start := 0
	if len(entries) > limit {
		start = len(entries) - limit
	}
	out := make([]ports.QAPair, 0, len(entries)-start)
	for _, e := range entries[start:] {
		out = append(out, ports.QAPair{Q: e.Query, A: e.Answer})
	}
	return out, nil
}

// Clear removes all stored turns for sessionID.
func (m *InMemory) Clear(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, sessionID)
	return nil
}
