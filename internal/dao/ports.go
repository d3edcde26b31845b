package dao

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/queryir"
)

// Executor is the Statement Executor a session writes through. *store.Tx
// implements it. All calls share the caller's ambient transaction.
type Executor interface {
	Insert(ctx context.Context, row ir.Row) error

	// Update merges attrs into the row and bumps its version. It returns
	// ir.ErrRowNotFound or an error matching ir.ErrStaleVersion.
	Update(ctx context.Context, u ir.Update) (int64, error)

	Delete(ctx context.Context, ids []string) (int64, error)
	Select(ctx context.Context, q queryir.Select) ([]ir.Row, error)
	Count(ctx context.Context, q queryir.Select) (int64, error)

	Link(ctx context.Context, l ir.Link) error
	Unlink(ctx context.Context, l ir.Link) (bool, error)
	UnlinkAll(ctx context.Context, ids []string) error
	Links(ctx context.Context, q queryir.Links) ([]ir.Link, error)

	// Targets and Sources return the far ends of relation links in link
	// order.
	Targets(ctx context.Context, relation, source string) ([]string, error)
	Sources(ctx context.Context, relation, target string) ([]string, error)

	// Savepoint runs fn so that a failure rolls back fn's writes only.
	Savepoint(ctx context.Context, fn func() error) error
}

// SequenceExecutor is implemented by executors that issue SEQUENCE values
// inside their transaction. *store.Tx implements it.
type SequenceExecutor interface {
	NextSequence(ctx context.Context, name string) (int64, error)
}

// IdentifierProvider assigns identifiers to new instances.
type IdentifierProvider interface {
	NewIdentifier() string

	// IdentifierFieldName is the payload key carrying the identifier.
	IdentifierFieldName() string
}

// UUIDv7Provider issues time-sortable UUIDv7 identifiers.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Provider struct{}

// NewIdentifier returns a hyphenated UUIDv7.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Provider) NewIdentifier() string {
	return uuid.Must(uuid.NewV7()).String()
}

// IdentifierFieldName returns ir.IdentifierKey.
func (UUIDv7Provider) IdentifierFieldName() string {
	return ir.IdentifierKey
}

// SequentialProvider issues "<prefix>-1", "<prefix>-2", ... for
// deterministic tests and golden traces.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialProvider struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewSequentialProvider returns a provider starting at "<prefix>-1".
func NewSequentialProvider(prefix string) *SequentialProvider {
	return &SequentialProvider{prefix: prefix}
}

func (p *SequentialProvider) NewIdentifier() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("%s-%d", p.prefix, p.next)
}

func (p *SequentialProvider) IdentifierFieldName() string {
	return ir.IdentifierKey
}
