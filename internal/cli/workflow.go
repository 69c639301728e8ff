package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/petrijr/flowgate"
	"github.com/petrijr/flowgate/internal/config"
	"github.com/petrijr/flowgate/pkg/api"
)

func newCreateCommand(app *App) *cobra.Command {
	var (
		stage string
		user  string
		pairs map[string]string
		raw   string
	)
	cmd := &cobra.Command{
		Use:   "create <workflow-id>",
		Short: "Create a workflow at its initial stage",
		Long: `Create a workflow at its initial stage with version 1.

Example:
  flowgate create wf1 --stage ingestion --user alice --data file=ledger.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseData(pairs, raw)
			if err != nil {
				return err
			}
			return app.withBundle(cmd, func(ctx context.Context, _ *config.Config, b *flowgate.Bundle) error {
				wf, err := b.Engine.CreateWorkflow(ctx, args[0], stage, user, data)
				if err != nil {
					return err
				}
				return app.renderer().workflow(wf)
			})
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "ingestion", "initial stage")
	cmd.Flags().StringVarP(&user, "user", "u", "", "user creating the workflow")
	cmd.Flags().StringToStringVarP(&pairs, "data", "d", nil, "payload entries as key=value")
	cmd.Flags().StringVar(&raw, "data-json", "", "payload as a JSON object")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newShowCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <workflow-id>",
		Short: "Show a workflow with its transitions and locks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withBundle(cmd, func(ctx context.Context, _ *config.Config, b *flowgate.Bundle) error {
				wf, err := b.Engine.GetWorkflow(ctx, args[0])
				if err != nil {
					return err
				}
				return app.renderer().workflow(wf)
			})
		},
	}
}

func newListCommand(app *App) *cobra.Command {
	var filter api.WorkflowFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withBundle(cmd, func(ctx context.Context, _ *config.Config, b *flowgate.Bundle) error {
				wfs, err := b.Engine.ListWorkflows(ctx, filter)
				if err != nil {
					return err
				}
				return app.renderer().workflows(wfs)
			})
		},
	}
	cmd.Flags().StringVar(&filter.Stage, "stage", "", "only workflows at this stage")
	cmd.Flags().StringVar((*string)(&filter.Status), "status", "", "only workflows with this status")
	return cmd
}

func newStatusCommand(app *App) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "status <workflow-id> <status>",
		Short: "Set a workflow's status",
		Long: `Set a workflow's status to pending, active, completed, failed or cancelled.
The change is recorded as an update operation and bumps the version.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withBundle(cmd, func(ctx context.Context, _ *config.Config, b *flowgate.Bundle) error {
				wf, err := b.Engine.UpdateStatus(ctx, args[0], api.Status(args[1]), user)
				if err != nil {
					return err
				}
				return app.renderer().workflow(wf)
			})
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "user making the change")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
