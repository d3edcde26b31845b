package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/dao"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
)

// NewNavigateCommand creates the navigate command and its create
// subcommand.
func NewNavigateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		q     QueryFlags
		count bool
	)
	cmd := &cobra.Command{
		Use:   "navigate <type> <id> <relation>",
		Short: "List the targets of a relation",
		Long: `List the targets of a stored or derived relation of one instance.

Examples:
  judo navigate Customer 0190... orders --order -total
  judo navigate Customer 0190... orders --count --filter "self.status == Status#OPEN"`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(rootOpts, cmd, func(ctx context.Context, rt *runtime) error {
				t, err := rt.typ(args[0])
				if err != nil {
					return err
				}
				r, err := rt.relation(t, args[2])
				if err != nil {
					return err
				}
				return rt.do(ctx, func(ctx context.Context, s *dao.Session) error {
					if count {
						n, err := s.CountNavigationResultAt(ctx, t, args[1], r, q.Filter)
						if err != nil {
							return err
						}
						return rt.out.Value(ir.Integer(n))
					}
					ps, err := s.GetNavigationResultAt(ctx, t, args[1], r, q.Options())
					if err != nil {
						return err
					}
					return rt.out.Value(payloads(ps))
				})
			})
		},
	}
	q.register(cmd, true)
	cmd.Flags().BoolVar(&count, "count", false, "print the number of matching targets")
	cmd.AddCommand(newNavigateCreateCommand(rootOpts))
	return cmd
}

func newNavigateCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var q QueryFlags
	cmd := &cobra.Command{
		Use:   "create <type> <id> <relation> <json>",
		Short: "Create an instance as a new target of a relation",
		Long: `Create an instance and link it to the owner through the relation.

The relation must be createable. A relation with a filter only accepts
instances the filter admits; a rejected instance is rolled back.`,
		Args:          cobra.ExactArgs(4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(rootOpts, cmd, func(ctx context.Context, rt *runtime) error {
				t, err := rt.typ(args[0])
				if err != nil {
					return err
				}
				r, err := rt.relation(t, args[2])
				if err != nil {
					return err
				}
				payload, err := parsePayload(rt, args[3])
				if err != nil {
					return err
				}
				return rt.do(ctx, func(ctx context.Context, s *dao.Session) error {
					p, err := s.CreateNavigationInstanceAt(ctx, t, args[1], r, payload, q.Options())
					if err != nil {
						return err
					}
					return rt.out.Value(p)
				})
			})
		},
	}
	q.register(cmd, false)
	return cmd
}
