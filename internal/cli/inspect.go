package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/localnerve/proposaldb/internal/app"
	"github.com/localnerve/proposaldb/internal/services"
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <proposal-id>",
		Short: "Compare a proposal row with its document-side records",
		Long: `Read the relational row and the attachment metadata of one proposal and
report every mismatch between them. Nothing is repaired. Exits 1 when the
stores disagree.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			return rootOpts.withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				report, err := rt.Coordinator.Debug(ctx, rootOpts.operator(rt), args[0])
				if err != nil {
					return f.Fail(ExitCommandError, "inspect failed", err)
				}
				return reportResult(f, report, nil)
			})
		},
	}
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	var strategy string
	cmd := &cobra.Command{
		Use:   "reconcile <proposal-id>",
		Short: "Repair one proposal with an explicit strategy",
		Long: `Apply a repair strategy and print the report afterwards.

  adopt-documents  declare on the row exactly the attachments the document store holds
  purge-orphans    remove attachment metadata and files whose proposal row is gone`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			return rootOpts.withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				report, err := rt.Coordinator.Reconcile(ctx, rootOpts.operator(rt), args[0], strategy)
				if err != nil {
					return f.Fail(ExitCommandError, "reconcile failed", err)
				}
				return reportResult(f, report, func(w io.Writer) {
					fmt.Fprintf(w, "reconciled %s (%s)\n", args[0], strategy)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&strategy, "strategy", "s", services.StrategyAdoptDocuments, "repair strategy (adopt-documents|purge-orphans)")
	return cmd
}

func reportResult(f *OutputFormatter, report *services.ConsistencyReport, header func(w io.Writer)) error {
	status := "ok"
	if !report.Consistent {
		status = "inconsistent"
	}
	err := f.Result(status, report, func(w io.Writer) {
		if header != nil {
			header(w)
		}
		writeReport(w, report)
	})
	if err != nil {
		return err
	}
	if !report.Consistent {
		return NewExitError(ExitFailure, fmt.Sprintf("proposal %s has %d consistency issue(s)", report.ProposalID, len(report.Issues)))
	}
	return nil
}

// NewOrphansCommand creates the orphans command.
func NewOrphansCommand(rootOpts *RootOptions) *cobra.Command {
	var purge bool
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "List attachment metadata whose proposal row is gone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			return rootOpts.withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				ids, err := rt.Coordinator.FindOrphans(ctx)
				if err != nil {
					return f.Fail(ExitCommandError, "orphan scan failed", err)
				}
				if ids == nil {
					ids = []string{}
				}

				var purged []string
				if purge {
					actor := rootOpts.operator(rt)
					for _, id := range ids {
						if _, err := rt.Coordinator.Reconcile(ctx, actor, id, services.StrategyPurgeOrphans); err != nil {
							return f.Fail(ExitCommandError, "purge failed for "+id, err)
						}
						f.VerboseLog("purged %s", id)
						purged = append(purged, id)
					}
				}

				data := map[string][]string{"orphans": ids}
				if purge {
					data["purged"] = purged
				}
				return f.Result("ok", data, func(w io.Writer) {
					if len(ids) == 0 {
						fmt.Fprintln(w, "no orphaned attachment metadata")
						return
					}
					verb := "orphaned"
					if purge {
						verb = "purged"
					}
					for _, id := range ids {
						fmt.Fprintf(w, "%s %s\n", verb, id)
					}
					fmt.Fprintf(w, "%d proposal id(s)\n", len(ids))
				})
			})
		},
	}
	cmd.Flags().BoolVar(&purge, "purge", false, "remove the orphaned metadata and files")
	return cmd
}
