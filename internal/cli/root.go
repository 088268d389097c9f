// Package cli implements proposalctl, the operator tool for the proposal
// stores: cross-store inspection, reconciliation, migrations and draft
// reference resolution.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/localnerve/proposaldb/internal/app"
	"github.com/localnerve/proposaldb/internal/config"
	"github.com/localnerve/proposaldb/internal/logger"
	"github.com/localnerve/proposaldb/internal/services"
	"github.com/localnerve/proposaldb/internal/types"
)

// Opener opens the stores a command works on.
type Opener func(ctx context.Context, opts *RootOptions) (*app.Runtime, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Timeout time.Duration
	Actor   string

	open Opener
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// OpenFromEnv loads the service configuration from the environment and
// connects to every store.
func OpenFromEnv(ctx context.Context, opts *RootOptions) (*app.Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := zap.NewNop()
	if opts.Verbose {
		if log, err = logger.New(cfg.Environment); err != nil {
			return nil, err
		}
	}
	return app.Open(ctx, cfg, log, nil)
}

// NewRootCommand creates the proposalctl command tree. A nil open uses OpenFromEnv.
func NewRootCommand(open Opener) *cobra.Command {
	if open == nil {
		open = OpenFromEnv
	}
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "proposalctl",
		Short: "Operate the proposal stores",
		Long: `Inspect and repair event proposals across the relational store and the
document store, run schema migrations and resolve draft references.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "time limit for store operations")
	cmd.PersistentFlags().StringVar(&opts.Actor, "actor", "proposalctl", "user id recorded for repairs")

	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewOrphansCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewResolveCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// withRuntime opens the stores for the duration of fn.
func (o *RootOptions) withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *app.Runtime) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), o.Timeout)
	defer cancel()

	rt, err := o.open(ctx, o)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open stores", err)
	}
	defer rt.Close()
	return fn(ctx, rt)
}

// operator is the acting user for privileged commands.
func (o *RootOptions) operator(rt *app.Runtime) *types.Actor {
	admin := rt.Config.AdminRole
	if admin == "" {
		admin = services.DefaultRoles.Admin
	}
	return &types.Actor{ID: o.Actor, Roles: []string{admin}}
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
