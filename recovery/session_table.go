// Package recovery implements the top-level recovery orchestration: locating the latest
// compatible checkpoint pair, restoring the fuzzy hash index, replaying the log tail, warming
// the page window, and rehydrating session resume points.
package recovery

import (
	"sync"

	"github.com/sharedcode/hlogstore"
)

// SessionTable is the thread-safe map of session identifier to resume point, rehydrated from a
// log checkpoint's continueTokens at the end of recovery: a plain map behind a sync.Mutex, no
// generics needed since both key and value are fixed concrete types.
type SessionTable struct {
	mu     sync.Mutex
	tokens map[string]hlogstore.LogicalAddress
}

// NewSessionTable returns an empty SessionTable.
func NewSessionTable() *SessionTable {
	return &SessionTable{tokens: make(map[string]hlogstore.LogicalAddress)}
}

// Rehydrate replaces the table's contents with continueTokens, as loaded from a
// HybridLogCheckpointInfo.
func (t *SessionTable) Rehydrate(continueTokens map[string]hlogstore.LogicalAddress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens = make(map[string]hlogstore.LogicalAddress, len(continueTokens))
	for session, addr := range continueTokens {
		t.tokens[session] = addr
	}
}

// ResumePoint returns the resume address for session and whether it was present.
func (t *SessionTable) ResumePoint(session string) (hlogstore.LogicalAddress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	addr, ok := t.tokens[session]
	return addr, ok
}

// Count returns the number of rehydrated sessions.
func (t *SessionTable) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tokens)
}
