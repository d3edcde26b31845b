package env

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
)

var ctx = context.Background()

func TestValidateScope_Valid(t *testing.T) {
	for _, s := range []string{"ENVIRONMENT", "SYSTEM", "SEQUENCE"} {
		t.Run(s, func(t *testing.T) {
			assert.NoError(t, ValidateScope(s))
		})
	}
}

func TestValidateScope_Invalid(t *testing.T) {
	cases := []struct {
		scope string
		desc  string
	}{
		{"environment", "case-sensitive - lowercase"},
		{"Sequence", "case-sensitive - mixed case"},
		{"", "empty"},
		{" SYSTEM", "whitespace not trimmed"},
		{"GLOBAL", "made-up scope"},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := ValidateScope(tc.scope)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid variable scope")
		})
	}
}

// TestSequences_Next tests that each name counts independently from 1.
func TestSequences_Next(t *testing.T) {
	s := NewSequences()
	assert.Equal(t, int64(1), s.Next("order"))
	assert.Equal(t, int64(2), s.Next("order"))
	assert.Equal(t, int64(1), s.Next("invoice"))
	assert.Equal(t, map[string]int64{"order": 2, "invoice": 1}, s.Snapshot())
	assert.Equal(t, []string{"invoice", "order"}, s.Names())
}

// TestSequences_Resume tests that a registry continues from stored positions.
func TestSequences_Resume(t *testing.T) {
	s := NewSequencesAt(map[string]int64{"order": 41})
	assert.Equal(t, int64(42), s.Next("order"))
}

func TestSequences_ThreadSafe(t *testing.T) {
	s := NewSequences()
	const goroutines = 50
	const calls = 100

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < calls; i++ {
				n := s.Next("shared")
				mu.Lock()
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*calls)
	assert.Equal(t, int64(goroutines*calls), s.Snapshot()["shared"])
}

func TestFixedClock(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	c := NewFixedClock(start)
	assert.Equal(t, time.UTC, c.Now().Location())
	assert.True(t, start.Equal(c.Now()))

	c.Advance(90 * time.Minute)
	assert.Equal(t, 11, c.Now().Hour())

	c.Set(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 2025, c.Now().Year())
}

func TestProvider_Environment(t *testing.T) {
	p := NewProvider(
		WithEnvironment(map[string]string{"REGION": "eu"}),
		WithLookupEnv(func(key string) (string, bool) {
			if key == "HOME" {
				return "/home/judo", true
			}
			return "", false
		}),
	)

	v, err := p.Lookup(ctx, "ENVIRONMENT", "REGION")
	require.NoError(t, err)
	assert.Equal(t, ir.String("eu"), v)

	v, err = p.Lookup(ctx, "ENVIRONMENT", "HOME")
	require.NoError(t, err)
	assert.Equal(t, ir.String("/home/judo"), v, "falls back to the process environment")

	v, err = p.Lookup(ctx, "ENVIRONMENT", "MISSING")
	require.NoError(t, err)
	assert.True(t, ir.IsNull(v))
}

func TestProvider_EnvironmentWithoutFallback(t *testing.T) {
	t.Setenv("JUDO_TEST_VAR", "set")
	p := NewProvider(WithLookupEnv(nil))
	v, err := p.Lookup(ctx, "ENVIRONMENT", "JUDO_TEST_VAR")
	require.NoError(t, err)
	assert.True(t, ir.IsNull(v))

	v, err = NewProvider().Lookup(ctx, "ENVIRONMENT", "JUDO_TEST_VAR")
	require.NoError(t, err)
	assert.Equal(t, ir.String("set"), v)
}

func TestProvider_System(t *testing.T) {
	clock := NewFixedClock(time.Date(2024, 6, 1, 10, 30, 15, 0, time.UTC))
	p := NewProvider(WithClock(clock), WithSystem(map[string]string{"user.name": "admin"}))

	v, err := p.Lookup(ctx, "SYSTEM", "user.name")
	require.NoError(t, err)
	assert.Equal(t, ir.String("admin"), v)

	v, err = p.Lookup(ctx, "SYSTEM", KeyCurrentTimestamp)
	require.NoError(t, err)
	assert.Equal(t, ir.NewTimestamp(clock.Now()), v)

	v, err = p.Lookup(ctx, "SYSTEM", KeyCurrentDate)
	require.NoError(t, err)
	assert.Equal(t, ir.NewDate(2024, time.June, 1), v)

	v, err = p.Lookup(ctx, "SYSTEM", KeyCurrentTime)
	require.NoError(t, err)
	assert.Equal(t, ir.Time{Offset: 10*time.Hour + 30*time.Minute + 15*time.Second}, v)

	v, err = p.Lookup(ctx, "SYSTEM", "absent")
	require.NoError(t, err)
	assert.True(t, ir.IsNull(v))
}

func TestProvider_Sequence(t *testing.T) {
	shared := NewSequencesAt(map[string]int64{"ticket": 9})
	p := NewProvider(WithSequences(shared))

	v, err := p.Lookup(ctx, "SEQUENCE", "ticket")
	require.NoError(t, err)
	assert.Equal(t, ir.Integer(10), v)

	v, err = NewProvider(WithSequences(shared)).Lookup(ctx, "SEQUENCE", "ticket")
	require.NoError(t, err)
	assert.Equal(t, ir.Integer(11), v, "registries are shared")
	assert.Same(t, shared, p.Sequences())
}

type failingSource struct{ err error }

func (s failingSource) NextValue(context.Context, string) (int64, error) {
	return 0, s.err
}

func TestProvider_SequenceSourceError(t *testing.T) {
	boom := errors.New("database is locked")
	p := NewProvider(WithSequences(failingSource{err: boom}))

	_, err := p.Lookup(ctx, "SEQUENCE", "ticket")
	require.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "sequence ticket")
}

func TestProvider_Errors(t *testing.T) {
	p := NewProvider()
	_, err := p.Lookup(ctx, "LOCAL", "x")
	assert.ErrorContains(t, err, "invalid variable scope")

	_, err = p.Lookup(ctx, "SEQUENCE", "")
	assert.ErrorContains(t, err, "key is required")
}
