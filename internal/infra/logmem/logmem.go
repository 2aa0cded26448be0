package logmem

import (
	"context"
	"sync"
	"time"

	"vcpproof/internal/domain"
	"vcpproof/internal/infra/merkle"
)

// Log is an in-memory append-only transparency log holding several
// independent trees keyed by log id. It backs mock proofs and tests.
type Log struct {
	mu    sync.RWMutex
	logs  map[string]*logState
	clock func() time.Time
}

type logState struct {
	leaves      []domain.Hash
	indexByHash map[domain.Hash]uint64
	head        domain.TreeHead
}

func New() *Log {
	return NewWithClock(nil)
}

func NewWithClock(clock func() time.Time) *Log {
	if clock == nil {
		clock = time.Now
	}
	return &Log{
		logs:  make(map[string]*logState),
		clock: clock,
	}
}

// AppendLeaf adds leafHash to the log and returns its index with the new tree
// head. Appending a leaf that is already present returns its original index
// and the current head without growing the tree.
func (l *Log) AppendLeaf(ctx context.Context, logID string, leafHash domain.Hash) (uint64, domain.TreeHead, error) {
	if err := ctx.Err(); err != nil {
		return 0, domain.TreeHead{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	state := l.ensureLog(logID)
	if index, ok := state.indexByHash[leafHash]; ok {
		return index, state.head, nil
	}

	index := uint64(len(state.leaves))
	state.leaves = append(state.leaves, leafHash)

	root, err := merkle.Root(state.leaves)
	if err != nil {
		state.leaves = state.leaves[:len(state.leaves)-1]
		return 0, domain.TreeHead{}, err
	}
	state.indexByHash[leafHash] = index
	state.head = domain.TreeHead{
		LogID:    logID,
		TreeSize: uint64(len(state.leaves)),
		RootHash: root,
		IssuedAt: l.clock().UTC(),
	}
	return index, state.head, nil
}

// Size returns the number of leaves in logID, zero if it has none.
func (l *Log) Size(logID string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	state := l.logs[logID]
	if state == nil {
		return 0
	}
	return uint64(len(state.leaves))
}

func (l *Log) TreeHead(ctx context.Context, logID string) (domain.TreeHead, error) {
	if err := ctx.Err(); err != nil {
		return domain.TreeHead{}, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	state := l.logs[logID]
	if state == nil || state.head.TreeSize == 0 {
		return domain.TreeHead{}, domain.ErrNotFound
	}
	return state.head, nil
}

// Prove builds an inclusion claim for leafHash against the current tree head.
func (l *Log) Prove(ctx context.Context, logID string, leafHash domain.Hash) (domain.InclusionClaim, domain.TreeHead, error) {
	if err := ctx.Err(); err != nil {
		return domain.InclusionClaim{}, domain.TreeHead{}, err
	}

	l.mu.RLock()
	state := l.logs[logID]
	if state == nil {
		l.mu.RUnlock()
		return domain.InclusionClaim{}, domain.TreeHead{}, domain.ErrNotFound
	}
	index, ok := state.indexByHash[leafHash]
	if !ok {
		l.mu.RUnlock()
		return domain.InclusionClaim{}, domain.TreeHead{}, domain.ErrNotFound
	}
	// Leaves are append-only, so a slice header taken under the lock stays
	// valid after it is released.
	leaves := state.leaves
	head := state.head
	l.mu.RUnlock()

	path, err := merkle.InclusionProof(leaves, index)
	if err != nil {
		return domain.InclusionClaim{}, domain.TreeHead{}, err
	}
	return domain.InclusionClaim{
		LeafIndex: index,
		TreeSize:  head.TreeSize,
		RootHash:  head.RootHash,
		AuditPath: path,
	}, head, nil
}

func (l *Log) ensureLog(logID string) *logState {
	state := l.logs[logID]
	if state == nil {
		state = &logState{indexByHash: make(map[domain.Hash]uint64)}
		l.logs[logID] = state
	}
	return state
}
