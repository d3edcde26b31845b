package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/dao"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/schema"
)

type refOp func(ctx context.Context, s *dao.Session, t *schema.Type, id string, r *schema.Relation, targets []string) error

// NewRefCommand creates the ref command group.
func NewRefCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ref",
		Short: "Change the targets of a stored relation",
		Long: `Change relation targets without touching the owner's attributes.

Bounds and partners are enforced: a single relation holds at most one
target, a required relation cannot be emptied and a two-way partner is
kept in step. Removing a composition child deletes it.`,
	}
	cmd.AddCommand(newRefSubcommand(rootOpts, "set", "Replace all targets", 3,
		func(ctx context.Context, s *dao.Session, t *schema.Type, id string, r *schema.Relation, targets []string) error {
			return s.SetReference(ctx, t, id, r, targets)
		}))
	cmd.AddCommand(newRefSubcommand(rootOpts, "add", "Add targets", 4,
		func(ctx context.Context, s *dao.Session, t *schema.Type, id string, r *schema.Relation, targets []string) error {
			return s.AddReferences(ctx, t, id, r, targets)
		}))
	cmd.AddCommand(newRefSubcommand(rootOpts, "remove", "Remove targets", 4,
		func(ctx context.Context, s *dao.Session, t *schema.Type, id string, r *schema.Relation, targets []string) error {
			return s.RemoveReferences(ctx, t, id, r, targets)
		}))
	cmd.AddCommand(newRefSubcommand(rootOpts, "unset", "Remove every target", 3,
		func(ctx context.Context, s *dao.Session, t *schema.Type, id string, r *schema.Relation, _ []string) error {
			return s.UnsetReference(ctx, t, id, r)
		}))
	return cmd
}

func newRefSubcommand(rootOpts *RootOptions, name, short string, minArgs int, op refOp) *cobra.Command {
	use := name + " <type> <id> <relation> [target-id...]"
	args := cobra.MinimumNArgs(minArgs)
	switch name {
	case "unset":
		use = name + " <type> <id> <relation>"
		args = cobra.ExactArgs(3)
	case "add", "remove":
		use = name + " <type> <id> <relation> <target-id>..."
	}
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          args,
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
					if err := op(ctx, s, t, args[1], r, args[3:]); err != nil {
						return err
					}
					return rt.out.Success(fmt.Sprintf("✓ %s %s.%s of %s", name, t.Name, r.Name, args[1]))
				})
			})
		},
	}
}
