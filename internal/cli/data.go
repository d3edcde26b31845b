package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/dao"
	"github.com/BlackBeltTechnology/judo-runtime-core-sub001/internal/ir"
)

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var q QueryFlags
	cmd := &cobra.Command{
		Use:   "create <type> <json>",
		Short: "Create an instance",
		Long: `Create an instance of an entity or mapped transfer object type.

The payload is a JSON object. Associations reference existing instances
by identifier ({"customer": {"__identifier": "..."}}); compositions take
nested payloads. The created instance is printed.

Example:
  judo create Order '{"customer": {"__identifier": "0190..."}, "items": [{"quantity": 2}]}'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(rootOpts, cmd, func(ctx context.Context, rt *runtime) error {
				t, err := rt.typ(args[0])
				if err != nil {
					return err
				}
				payload, err := parsePayload(rt, args[1])
				if err != nil {
					return err
				}
				return rt.do(ctx, func(ctx context.Context, s *dao.Session) error {
					p, err := s.Create(ctx, t, payload, q.Options())
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

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	var q QueryFlags
	cmd := &cobra.Command{
		Use:   "update <type> <json>",
		Short: "Update an instance",
		Long: `Update the instance named by the payload's __identifier.

Only the members present in the payload change; null clears a member.
When the payload carries __version the update fails with CONFLICT unless
it equals the stored version.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(rootOpts, cmd, func(ctx context.Context, rt *runtime) error {
				t, err := rt.typ(args[0])
				if err != nil {
					return err
				}
				payload, err := parsePayload(rt, args[1])
				if err != nil {
					return err
				}
				return rt.do(ctx, func(ctx context.Context, s *dao.Session) error {
					p, err := s.Update(ctx, t, payload, q.Options())
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

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	var q QueryFlags
	cmd := &cobra.Command{
		Use:           "get <type> <id>...",
		Short:         "Read instances by identifier",
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(rootOpts, cmd, func(ctx context.Context, rt *runtime) error {
				t, err := rt.typ(args[0])
				if err != nil {
					return err
				}
				return rt.do(ctx, func(ctx context.Context, s *dao.Session) error {
					if len(args) == 2 {
						p, err := s.GetByIdentifier(ctx, t, args[1], q.Options())
						if err != nil {
							return err
						}
						if p == nil {
							return NewExitError(ExitFailure, fmt.Sprintf("%s %s not found", t.Name, args[1]))
						}
						return rt.out.Value(p)
					}
					ps, err := s.GetByIdentifiers(ctx, t, args[1:], q.Options())
					if err != nil {
						return err
					}
					return rt.out.Value(payloads(ps))
				})
			})
		},
	}
	q.register(cmd, false)
	return cmd
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		q     QueryFlags
		count bool
	)
	cmd := &cobra.Command{
		Use:   "list <type>",
		Short: "List instances of a type",
		Long: `List the instances of a type and its subtypes.

Examples:
  judo list Order --filter "self.status == Status#OPEN" --order -total --limit 10
  judo list Customer --count`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(rootOpts, cmd, func(ctx context.Context, rt *runtime) error {
				t, err := rt.typ(args[0])
				if err != nil {
					return err
				}
				return rt.do(ctx, func(ctx context.Context, s *dao.Session) error {
					if count {
						n, err := s.CountAllOf(ctx, t, q.Filter)
						if err != nil {
							return err
						}
						return rt.out.Value(ir.Integer(n))
					}
					ps, err := s.GetAllOf(ctx, t, q.Options())
					if err != nil {
						return err
					}
					return rt.out.Value(payloads(ps))
				})
			})
		},
	}
	q.register(cmd, true)
	cmd.Flags().BoolVar(&count, "count", false, "print the number of matching instances")
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <type> <id>",
		Short: "Delete an instance and its cascade",
		Long: `Delete an instance together with its compositions and the instances
that reverse-cascade from it. The delete is refused with STATE when a
surviving instance still requires one of the deleted instances.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(rootOpts, cmd, func(ctx context.Context, rt *runtime) error {
				t, err := rt.typ(args[0])
				if err != nil {
					return err
				}
				return rt.do(ctx, func(ctx context.Context, s *dao.Session) error {
					if err := s.Delete(ctx, t, args[1]); err != nil {
						return err
					}
					if rt.out.Format == "json" {
						return rt.out.Value(ir.PayloadOf(ir.IdentifierKey, args[1]))
					}
					return rt.out.Success(fmt.Sprintf("✓ deleted %s %s", t.Name, args[1]))
				})
			})
		},
	}
}

// NewDefaultsCommand creates the defaults command.
func NewDefaultsCommand(rootOpts *RootOptions) *cobra.Command {
	var q QueryFlags
	cmd := &cobra.Command{
		Use:           "defaults <type>",
		Short:         "Print the default payload of a type",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(rootOpts, cmd, func(ctx context.Context, rt *runtime) error {
				t, err := rt.typ(args[0])
				if err != nil {
					return err
				}
				return rt.do(ctx, func(ctx context.Context, s *dao.Session) error {
					p, err := s.GetDefaultsOf(ctx, t, q.Options())
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

// NewStaticCommand creates the static command.
func NewStaticCommand(rootOpts *RootOptions) *cobra.Command {
	var q QueryFlags
	cmd := &cobra.Command{
		Use:   "static <type> [attribute]",
		Short: "Evaluate the derived members of a type without an instance",
		Long: `Evaluate derived members that do not depend on an instance, such as
the getters of an unmapped transfer object. With an attribute name only
that attribute is evaluated.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(rootOpts, cmd, func(ctx context.Context, rt *runtime) error {
				t, err := rt.typ(args[0])
				if err != nil {
					return err
				}
				if len(args) == 1 {
					return rt.do(ctx, func(ctx context.Context, s *dao.Session) error {
						p, err := s.GetStaticFeatures(ctx, t, q.Options())
						if err != nil {
							return err
						}
						return rt.out.Value(p)
					})
				}
				a, ok := rt.graph.ResolveAttribute(t.ID, args[1])
				if !ok {
					return rt.badArgument("type %s has no attribute %q", t.Name, args[1])
				}
				return rt.do(ctx, func(ctx context.Context, s *dao.Session) error {
					v, err := s.GetStaticData(ctx, a)
					if err != nil {
						return err
					}
					return rt.out.Value(v)
				})
			})
		},
	}
	q.register(cmd, false)
	return cmd
}

func parsePayload(rt *runtime, src string) (*ir.Payload, error) {
	p, err := ir.ParsePayload([]byte(src))
	if err != nil {
		return nil, rt.badArgument("payload is not a JSON object: %v", err)
	}
	return p, nil
}

func payloads(ps []*ir.Payload) ir.Collection {
	c := make(ir.Collection, len(ps))
	for i, p := range ps {
		c[i] = p
	}
	return c
}
