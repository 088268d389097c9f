package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/localnerve/proposaldb/internal/types"
	"github.com/localnerve/proposaldb/pkg/resolver"
)

type resolveOptions struct {
	server   string
	token    string
	hint     string
	cache    string
	cacheTTL time.Duration
	path     string
}

// ResolveOutput is the result of the resolve command.
type ResolveOutput struct {
	Reference string          `json:"reference"`
	ID        string          `json:"id"`
	EventType types.EventType `json:"eventType,omitempty"`
	Canonical bool            `json:"canonical"`
	Cached    bool            `json:"cached"`
	Path      string          `json:"path,omitempty"`
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &resolveOptions{}
	cmd := &cobra.Command{
		Use:   "resolve <reference>",
		Short: "Turn a descriptive draft reference into a draft id",
		Long: `Ask the service for the canonical id of a descriptive draft reference,
remembering the answer in a local cache. When the service cannot be reached a
fallback id is printed and the command exits 1.

Cache locations:
  memory              nothing survives the process (default)
  file:<path>         JSON document on disk
  redis://host:port   Redis keys under the proposaldb:draft: prefix`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, rootOpts, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", envOr("PROPOSALDB_URL", "http://localhost:3000"), "service base URL")
	cmd.Flags().StringVar(&opts.token, "token", os.Getenv("PROPOSALDB_TOKEN"), "bearer token of the acting user")
	cmd.Flags().StringVar(&opts.hint, "hint", "", "event type hint (school|community)")
	cmd.Flags().StringVar(&opts.cache, "cache", "memory", "where resolved references are remembered")
	cmd.Flags().DurationVar(&opts.cacheTTL, "cache-ttl", 30*24*time.Hour, "expiry of Redis cache entries")
	cmd.Flags().StringVar(&opts.path, "path", "", "visible path containing the reference, rewritten once resolved")
	return cmd
}

func runResolve(cmd *cobra.Command, rootOpts *RootOptions, opts *resolveOptions, reference string) error {
	f := rootOpts.formatter(cmd)
	store, closeStore, err := openCache(opts.cache, opts.cacheTTL)
	if err != nil {
		return f.Fail(ExitCommandError, "bad cache location", err)
	}
	defer closeStore()

	log := zap.NewNop()
	if rootOpts.Verbose {
		log, _ = zap.NewDevelopment()
	}
	resolverOpts := []resolver.Option{resolver.WithLogger(log)}
	var loc *resolver.MemoryLocation
	if opts.path != "" {
		loc = resolver.NewMemoryLocation(opts.path)
		resolverOpts = append(resolverOpts, resolver.WithLocation(loc))
	}

	creator := &resolver.HTTPCreator{BaseURL: opts.server, Token: opts.token, Timeout: rootOpts.Timeout}
	ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Timeout)
	defer cancel()

	res, err := resolver.New(creator, store, resolverOpts...).Resolve(ctx, reference, opts.hint)
	var resolveErr *types.IdentityResolutionError
	if err != nil && (res == nil || !errors.As(err, &resolveErr)) {
		return f.Fail(ExitCommandError, "resolve failed", err)
	}

	out := ResolveOutput{
		Reference: res.Reference,
		ID:        res.ID,
		EventType: res.EventType,
		Canonical: res.Canonical,
		Cached:    res.Cached,
	}
	if loc != nil {
		out.Path = loc.Path()
	}
	status := "ok"
	if !res.Canonical {
		status = "fallback"
	}
	if perr := f.Result(status, out, func(w io.Writer) {
		fmt.Fprintln(w, out.ID)
		if out.Path != "" {
			fmt.Fprintln(w, out.Path)
		}
	}); perr != nil {
		return perr
	}
	if err != nil {
		return WrapExitError(ExitFailure, "draft service unreachable, using fallback id", err)
	}
	return nil
}

// openCache picks the resolver store from a location string.
func openCache(location string, ttl time.Duration) (resolver.Store, func(), error) {
	noop := func() {}
	switch {
	case location == "" || location == "memory":
		return resolver.NewMemoryStore(), noop, nil
	case strings.HasPrefix(location, "file:"):
		path := strings.TrimPrefix(location, "file:")
		if path == "" {
			return nil, noop, fmt.Errorf("file cache needs a path")
		}
		return resolver.NewFileStore(path), noop, nil
	case strings.HasPrefix(location, "redis://") || strings.HasPrefix(location, "rediss://"):
		store, err := resolver.NewRedisStore(location, "", ttl)
		if err != nil {
			return nil, noop, err
		}
		return store, func() { _ = store.Close() }, nil
	}
	return nil, noop, fmt.Errorf("unknown cache location %q", location)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
