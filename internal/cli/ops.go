package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/petrijr/flowgate"
	"github.com/petrijr/flowgate/internal/config"
	"github.com/petrijr/flowgate/pkg/api"
)

func newOpsCommand(app *App) *cobra.Command {
	var filter api.OperationFilter
	cmd := &cobra.Command{
		Use:   "ops [operation-id]",
		Short: "List operations, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withBundle(cmd, func(ctx context.Context, _ *config.Config, b *flowgate.Bundle) error {
				if len(args) == 1 {
					op, err := b.Engine.GetOperation(ctx, args[0])
					if err != nil {
						return err
					}
					return app.renderer().operation(op)
				}
				ops, err := b.Engine.ListOperations(ctx, filter)
				if err != nil {
					return err
				}
				return app.renderer().operations(ops)
			})
		},
	}
	cmd.Flags().StringVar(&filter.WorkflowID, "workflow", "", "only operations of this workflow")
	cmd.Flags().StringVar((*string)(&filter.Status), "status", "", "only operations with this status")
	return cmd
}

func newLocksCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "locks",
		Short: "List held locks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withBundle(cmd, func(ctx context.Context, _ *config.Config, b *flowgate.Bundle) error {
				locks, err := b.Engine.ListLocks(ctx)
				if err != nil {
					return err
				}
				return app.renderer().locks(locks)
			})
		},
	}
}

func newReleaseCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "release <lock-id>",
		Short: "Release a lock before it expires",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withBundle(cmd, func(ctx context.Context, _ *config.Config, b *flowgate.Bundle) error {
				if err := b.Engine.ReleaseLock(ctx, args[0]); err != nil {
					return err
				}
				app.renderer().line("released %s", args[0])
				return nil
			})
		},
	}
}

func newSweepCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run due retries and evict expired locks once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withBundle(cmd, func(ctx context.Context, _ *config.Config, b *flowgate.Bundle) error {
				attempts, err := b.Engine.SweepOperations(ctx)
				if err != nil {
					return err
				}
				locks, purged, err := b.Engine.SweepLocks(ctx)
				if err != nil {
					return err
				}
				r := app.renderer()
				if r.json {
					return r.encode(map[string]int{
						"attempts":     attempts,
						"expiredLocks": locks,
						"purgedOps":    purged,
					})
				}
				r.line("attempts: %d  expired locks: %d  purged operations: %d", attempts, locks, purged)
				return nil
			})
		},
	}
}

func newServeCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the background sweeps until interrupted",
		Long: `Run the retry and lock sweeps until interrupted. With --metrics-addr
(or metrics.addr in the config) Prometheus metrics are served on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withBundle(cmd, func(ctx context.Context, cfg *config.Config, b *flowgate.Bundle) error {
				if err := b.Engine.Start(ctx); err != nil {
					return err
				}

				errCh := make(chan error, 1)
				if cfg.Metrics.Addr != "" {
					mux := http.NewServeMux()
					mux.Handle("/metrics", b.MetricsHandler())
					srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
					go func() {
						if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
							errCh <- err
						}
					}()
					defer func() {
						shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
						defer cancel()
						_ = srv.Shutdown(shutdownCtx)
					}()
					app.renderer().line("serving metrics on %s/metrics", cfg.Metrics.Addr)
				}

				select {
				case <-ctx.Done():
					return nil
				case err := <-errCh:
					return err
				}
			})
		},
	}
}

func newConfigCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(cmd)
			if err != nil {
				return err
			}
			r := app.renderer()
			if r.json {
				return r.encode(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = app.Out.Write(out)
			return err
		},
	}
}
