package env

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
)

// System property keys computed from the clock on every lookup.
const (
	KeyCurrentTimestamp = "current_timestamp"
	KeyCurrentDate      = "current_date"
	KeyCurrentTime      = "current_time"
)

// Provider resolves getVariable lookups and supplies the evaluation clock.
// Missing keys resolve to ir.Null so expressions see them as undefined.
type Provider struct {
	environment map[string]string
	lookupEnv   func(string) (string, bool)
	system      map[string]string
	sequences   SequenceSource
	clock       Clock
}

// Option configures a Provider.
type Option func(*Provider)

// WithEnvironment sets ENVIRONMENT values that take precedence over the
// process environment.
func WithEnvironment(vars map[string]string) Option {
	return func(p *Provider) {
		for k, v := range vars {
			p.environment[k] = v
		}
	}
}

// WithLookupEnv replaces os.LookupEnv as the ENVIRONMENT fallback. Passing nil
// disables the fallback.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(p *Provider) { p.lookupEnv = fn }
}

// WithSystem sets SYSTEM property values.
func WithSystem(props map[string]string) Option {
	return func(p *Provider) {
		for k, v := range props {
			p.system[k] = v
		}
	}
}

// WithSequences sets the source of SEQUENCE values. Providers sharing a
// source never issue the same value twice.
func WithSequences(s SequenceSource) Option {
	return func(p *Provider) { p.sequences = s }
}

// WithClock sets the clock used by now(), today() and the current_* keys.
func WithClock(c Clock) Option {
	return func(p *Provider) { p.clock = c }
}

// NewProvider returns a provider backed by the process environment and the
// system clock unless options say otherwise.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		environment: make(map[string]string),
		lookupEnv:   os.LookupEnv,
		system:      make(map[string]string),
		sequences:   NewSequences(),
		clock:       SystemClock{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Lookup returns the value of key in scope.
func (p *Provider) Lookup(ctx context.Context, scope, key string) (ir.Value, error) {
	if err := ValidateScope(scope); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("%s variable key is required", scope)
	}
	switch Scope(scope) {
	case ScopeEnvironment:
		if v, ok := p.environment[key]; ok {
			return ir.String(v), nil
		}
		if p.lookupEnv != nil {
			if v, ok := p.lookupEnv(key); ok {
				return ir.String(v), nil
			}
		}
	case ScopeSystem:
		now := p.Now()
		switch key {
		case KeyCurrentTimestamp:
			return ir.NewTimestamp(now), nil
		case KeyCurrentDate:
			return ir.DateOf(now), nil
		case KeyCurrentTime:
			return ir.TimeOf(now), nil
		}
		if v, ok := p.system[key]; ok {
			return ir.String(v), nil
		}
	case ScopeSequence:
		n, err := p.sequences.NextValue(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("sequence %s: %w", key, err)
		}
		return ir.Integer(n), nil
	}
	return ir.Null{}, nil
}

// Now returns the provider clock's current instant in UTC.
func (p *Provider) Now() time.Time {
	return p.clock.Now().UTC()
}

// Sequences returns the source backing the SEQUENCE scope.
func (p *Provider) Sequences() SequenceSource {
	return p.sequences
}
