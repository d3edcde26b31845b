package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/compiler"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/config"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/dao"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/env"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/queryir"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/store"
)

// runtime bundles the loaded model, the open database and the DAO engine
// a data command works with.
type runtime struct {
	cfg    *config.Config
	graph  *schema.Graph
	store  *store.Store
	engine *dao.Engine
	logger *slog.Logger
	out    *OutputFormatter
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openRuntime loads the configured model and opens the database. SEQUENCE
// counters resume from the values persisted by earlier runs.
func openRuntime(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*runtime, error) {
	out := newFormatter(opts, cmd)
	cfg, err := opts.Config()
	if err != nil {
		_ = out.Error(ErrCodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, ErrCodeConfig, err)
	}
	if cfg.Model == "" {
		err := errors.New("no model directory: set model in the config file or pass --model")
		_ = out.Error(ErrCodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, ErrCodeConfig, err)
	}
	logger := cfg.Log.NewLogger(cmd.ErrOrStderr())

	res, errs := compiler.LoadModel(cfg.Model)
	if len(errs) > 0 {
		code := ErrCodeGeneric
		var le *compiler.LoadError
		if errors.As(errs[0], &le) {
			code = le.Code
		}
		err := errors.Join(errs...)
		_ = out.Error(code, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, code, err)
	}
	for _, w := range res.Warnings {
		logger.Warn("model warning", "message", w.Message)
	}

	var storeOpts []store.Option
	if cfg.Database.Driver != "" {
		storeOpts = append(storeOpts, store.WithDriver(cfg.Database.Driver))
	}
	st, err := store.Open(cfg.Database.Path, storeOpts...)
	if err != nil {
		_ = out.Error(ErrCodeDatabase, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, ErrCodeDatabase, err)
	}
	seqs, err := st.LoadSequences(ctx)
	if err != nil {
		st.Close()
		_ = out.Error(ErrCodeDatabase, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, ErrCodeDatabase, err)
	}
	// Stateless sessions preview SEQUENCE values from the persisted
	// positions without advancing them.
	sequences := env.NewSequencesAt(seqs)
	provider := env.NewProvider(
		env.WithEnvironment(cfg.Environment),
		env.WithSystem(cfg.System),
		env.WithSequences(sequences),
	)
	logger.Debug("runtime opened", "model", cfg.Model, "types", len(res.Graph.Types()), "db", cfg.Database.Path, "driver", st.Driver())

	return &runtime{
		cfg:   cfg,
		graph: res.Graph,
		store: st,
		engine: dao.New(res.Graph,
			dao.WithLogger(logger),
			dao.WithIdentifiers(dao.UUIDv7Provider{}),
			dao.WithEnvironment(provider),
		),
		logger: logger,
		out:    out,
	}, nil
}

func (rt *runtime) Close() error {
	return rt.store.Close()
}

// do runs fn in one transaction. In a stateful runtime SEQUENCE values
// are issued by that transaction, so a rolled back command does not
// consume them and concurrent processes never share one.
func (rt *runtime) do(ctx context.Context, fn func(ctx context.Context, s *dao.Session) error) error {
	stateful := rt.cfg.IsStateful()
	err := rt.store.InTx(ctx, func(tx *store.Tx) error {
		return fn(ctx, rt.engine.Session(tx, dao.WithStateful(stateful)))
	})
	if err != nil {
		return rt.out.Fail(err)
	}
	return nil
}

func (rt *runtime) typ(name string) (*schema.Type, error) {
	t, ok := rt.graph.TypeByName(name)
	if !ok {
		return nil, rt.badArgument("unknown type %q", name)
	}
	return t, nil
}

func (rt *runtime) relation(t *schema.Type, name string) (*schema.Relation, error) {
	r, ok := rt.graph.ResolveRelation(t.ID, name)
	if !ok {
		return nil, rt.badArgument("type %s has no relation %q", t.Name, name)
	}
	return r, nil
}

func (rt *runtime) badArgument(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	_ = rt.out.Error(ErrCodeBadArgument, msg, nil)
	return NewExitError(ExitCommandError, msg)
}

// withRuntime opens a runtime, runs fn and closes it.
func withRuntime(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := openRuntime(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

// QueryFlags are the shaping flags shared by read commands.
type QueryFlags struct {
	Filter string
	Order  string
	Mask   string
	Limit  int
	Offset int
}

func (q *QueryFlags) register(cmd *cobra.Command, filter bool) {
	if filter {
		cmd.Flags().StringVar(&q.Filter, "filter", "", "filter expression evaluated with each instance as self")
		cmd.Flags().StringVar(&q.Order, "order", "", "comma separated members to order by, '-' prefix for descending")
		cmd.Flags().IntVar(&q.Limit, "limit", 0, "maximum number of results (0 is unlimited)")
		cmd.Flags().IntVar(&q.Offset, "offset", 0, "number of results to skip")
	}
	cmd.Flags().StringVar(&q.Mask, "mask", "", "comma separated members to include")
}

// Options converts the flags into DAO query options.
func (q *QueryFlags) Options() dao.QueryOptions {
	opts := dao.QueryOptions{Filter: q.Filter, Limit: q.Limit, Offset: q.Offset}
	for _, o := range splitList(q.Order) {
		if f, ok := strings.CutPrefix(o, "-"); ok {
			opts.OrderBy = append(opts.OrderBy, queryir.Order{Field: f, Desc: true})
			continue
		}
		opts.OrderBy = append(opts.OrderBy, queryir.Order{Field: o})
	}
	if fields := splitList(q.Mask); len(fields) > 0 {
		opts.Mask = dao.Mask{}
		for _, f := range fields {
			opts.Mask[f] = nil
		}
	}
	return opts
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
