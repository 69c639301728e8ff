package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/petrijr/flowgate"
	"github.com/petrijr/flowgate/internal/config"
	"github.com/petrijr/flowgate/pkg/api"
)

type advanceFlags struct {
	user            string
	pairs           map[string]string
	raw             string
	force           bool
	expectedVersion int64
	timeout         time.Duration
	wait            bool
}

func newAdvanceCommand(app *App) *cobra.Command {
	var f advanceFlags
	cmd := &cobra.Command{
		Use:   "advance <workflow-id> <target-stage>",
		Short: "Move a workflow to another stage",
		Long: `Move a workflow to another stage as one atomic operation.

A stage reserved by another user is reported as a conflict (exit code 2).
A failed attempt is retried in the background; with --wait the command
runs the retries itself and exits 3 if the operation is rolled back.

Example:
  flowgate advance wf1 mapping --user alice --data file=ledger.csv --wait`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseData(f.pairs, f.raw)
			if err != nil {
				return err
			}
			opts := api.AdvanceOptions{
				ForceAdvance:    f.force,
				ExpectedVersion: f.expectedVersion,
				Timeout:         f.timeout,
			}
			return app.withBundle(cmd, func(ctx context.Context, _ *config.Config, b *flowgate.Bundle) error {
				return runAdvance(ctx, app, b.Engine, args[0], args[1], data, opts, f)
			})
		},
	}
	cmd.Flags().StringVarP(&f.user, "user", "u", "", "user performing the move")
	cmd.Flags().StringToStringVarP(&f.pairs, "data", "d", nil, "payload entries to merge, as key=value")
	cmd.Flags().StringVar(&f.raw, "data-json", "", "payload to merge, as a JSON object")
	cmd.Flags().BoolVar(&f.force, "force", false, "skip the up-front lock check")
	cmd.Flags().Int64Var(&f.expectedVersion, "expected-version", 0, "refuse unless the workflow is at this version")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "bound on the whole retry sequence (default from config)")
	cmd.Flags().BoolVar(&f.wait, "wait", false, "drive retries until the operation is terminal")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runAdvance(ctx context.Context, app *App, eng api.Engine, workflowID, target string, data map[string]any, opts api.AdvanceOptions, f advanceFlags) error {
	r := app.renderer()

	if f.wait {
		if err := eng.Start(ctx); err != nil {
			return err
		}
		op, err := flowgate.AdvanceAndWait(ctx, eng, workflowID, target, f.user, data, opts)
		var conflict *flowgate.ConflictError
		switch {
		case errors.As(err, &conflict):
			if rerr := r.conflict(conflict.Conflict); rerr != nil {
				return rerr
			}
			return exitWith(ExitConflict, nil)
		case op != nil:
			if rerr := r.operation(op); rerr != nil {
				return rerr
			}
			if err != nil {
				return exitWith(ExitRolledBack, nil)
			}
			return nil
		}
		return err
	}

	res, err := eng.Advance(ctx, workflowID, target, f.user, data, opts)
	if err != nil {
		return err
	}
	if res.Conflict != nil {
		if err := r.conflict(res.Conflict); err != nil {
			return err
		}
		return exitWith(ExitConflict, nil)
	}
	if err := r.operation(res.Operation); err != nil {
		return err
	}
	if res.Success {
		return nil
	}
	if res.Operation.Status.Terminal() {
		return exitWith(ExitRolledBack, nil)
	}
	if !r.json {
		r.line("%s retry scheduled; run %q or %q to drive it",
			warnStyle.Render("pending"), "flowgate sweep", "flowgate serve")
	}
	return nil
}

func newCancelCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <operation-id>",
		Short: "Cancel a pending retry and roll it back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withBundle(cmd, func(ctx context.Context, _ *config.Config, b *flowgate.Bundle) error {
				op, err := b.Engine.CancelOperation(ctx, args[0])
				if err != nil {
					return err
				}
				return app.renderer().operation(op)
			})
		},
	}
}
