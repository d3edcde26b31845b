package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/dao"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
)

// EvalOptions holds flags for the eval command.
type EvalOptions struct {
	*RootOptions
	Type string
	ID   string
}

// NewEvalCommand creates the eval command.
func NewEvalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluate an expression",
		Long: `Evaluate an expression against the database.

With --type and --id the instance is bound to self. SEQUENCE lookups
advance persisted counters when the runtime is stateful.

Examples:
  judo eval "Order!count()"
  judo eval "self.items!filter(i | i.quantity > 5)!count()" --type Order --id 0190...
  judo eval "String!getVariable('ENVIRONMENT', 'HOME')"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(rootOpts, cmd, func(ctx context.Context, rt *runtime) error {
				var t *schema.Type
				if opts.Type != "" {
					var err error
					if t, err = rt.typ(opts.Type); err != nil {
						return err
					}
				} else if opts.ID != "" {
					return rt.badArgument("--id needs --type")
				}
				return rt.do(ctx, func(ctx context.Context, s *dao.Session) error {
					v, err := s.Evaluate(ctx, args[0], t, opts.ID)
					if err != nil {
						return err
					}
					return rt.out.Value(v)
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "type of the self instance")
	cmd.Flags().StringVar(&opts.ID, "id", "", "identifier of the self instance")

	return cmd
}
