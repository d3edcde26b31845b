package dao

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/env"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/expr"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/queryir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
)

// Engine executes DAO operations over one schema graph.
//
// Thread-safety: Engine is immutable after New and safe to share. Each
// transaction gets its own Session.
type Engine struct {
	graph  *schema.Graph
	ids    IdentifierProvider
	env    expr.Environment
	logger *slog.Logger
	views  []*view
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithIdentifiers sets the identifier provider. The default issues UUIDv7.
func WithIdentifiers(p IdentifierProvider) Option {
	return func(e *Engine) { e.ids = p }
}

// WithEnvironment sets the variable and clock provider. The default is an
// env.Provider over the process environment and the system clock.
func WithEnvironment(p expr.Environment) Option {
	return func(e *Engine) { e.env = p }
}

// New creates an engine over graph.
func New(graph *schema.Graph, opts ...Option) *Engine {
	e := &Engine{
		graph:  graph,
		ids:    UUIDv7Provider{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.env == nil {
		e.env = env.NewProvider()
	}
	e.views = buildViews(graph)
	return e
}

// Graph returns the schema graph.
func (e *Engine) Graph() *schema.Graph {
	return e.graph
}

// IdentifierFieldName is the payload key carrying identifiers.
func (e *Engine) IdentifierFieldName() string {
	return e.ids.IdentifierFieldName()
}

// Session binds the engine to one ambient transaction.
//
// Thread-safety: NOT safe for concurrent use, like the Executor it wraps.
type Session struct {
	engine   *Engine
	exec     Executor
	stateful bool
	eval     *expr.Evaluator
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithStateful enables or disables mutating operations. Sessions are
// stateful by default; a stateless session fails every write with a
// StateError before touching the executor.
func WithStateful(stateful bool) SessionOption {
	return func(s *Session) { s.stateful = stateful }
}

// Session returns a session writing through exec. A stateful session over
// a SequenceExecutor issues SEQUENCE values in exec's transaction; every
// other lookup goes to the engine's environment.
func (e *Engine) Session(exec Executor, opts ...SessionOption) *Session {
	s := &Session{engine: e, exec: exec, stateful: true}
	for _, opt := range opts {
		opt(s)
	}
	environment := e.env
	if seq, ok := exec.(SequenceExecutor); ok && s.stateful {
		environment = txEnvironment{base: e.env, seq: seq}
	}
	s.eval = expr.New(e.graph, source{s}, environment)
	return s
}

type txEnvironment struct {
	base expr.Environment
	seq  SequenceExecutor
}

func (e txEnvironment) Lookup(ctx context.Context, scope, key string) (ir.Value, error) {
	if env.Scope(scope) != env.ScopeSequence || key == "" {
		return e.base.Lookup(ctx, scope, key)
	}
	n, err := e.seq.NextSequence(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("sequence %s: %w", key, err)
	}
	return ir.Integer(n), nil
}

func (e txEnvironment) Now() time.Time {
	return e.base.Now()
}

// Evaluator returns the session's expression evaluator. It reads through
// the session's executor, so it sees the session's uncommitted writes.
func (s *Session) Evaluator() *expr.Evaluator {
	return s.eval
}

// QueryOptions shape the payloads an operation returns and the
// collections it reads.
type QueryOptions struct {
	// Mask selects payload keys. nil selects the default shape.
	Mask Mask

	// Filter is an expression evaluated with each candidate as self.
	Filter string

	// OrderBy sorts by member values, undefined last.
	OrderBy []queryir.Order

	Limit  int
	Offset int
}

func (s *Session) view(t schema.TypeID) *view {
	return s.engine.views[t]
}

func (s *Session) graph() *schema.Graph {
	return s.engine.graph
}

func (s *Session) logger() *slog.Logger {
	return s.engine.logger
}

// mutating applies the stateful gate and runs fn in a savepoint.
func (s *Session) mutating(ctx context.Context, f failure, fn func() error) error {
	if !s.stateful {
		return f.state(RuleStateless, "session is not stateful")
	}
	return s.exec.Savepoint(ctx, fn)
}
