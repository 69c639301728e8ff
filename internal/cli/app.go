// Package cli implements the flowgate command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/petrijr/flowgate"
	"github.com/petrijr/flowgate/internal/config"
)

// OpenFunc builds the engine bundle for one command invocation.
type OpenFunc func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*flowgate.Bundle, error)

// App holds what every command shares: output streams, the global flags
// and the way an engine is opened.
type App struct {
	Out io.Writer
	Err io.Writer

	// Open defaults to flowgate.Open. Tests swap it to inject engines.
	Open OpenFunc

	configPath string
	output     string
}

// flagKeys maps persistent flags onto configuration keys.
var flagKeys = map[string]string{
	"store.driver":       "store",
	"store.dsn":          "dsn",
	"store.prefix":       "prefix",
	"graph_file":         "graph",
	"log.level":          "log-level",
	"log.format":         "log-format",
	"metrics.addr":       "metrics-addr",
	"engine.max_retries": "max-retries",
}

// NewApp creates an App writing to out and errOut.
func NewApp(out, errOut io.Writer) *App {
	return &App{Out: out, Err: errOut, Open: flowgate.Open}
}

// NewRootCommand builds the flowgate command tree.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "flowgate",
		Short: "Advance workflows atomically",
		Long: `flowgate moves workflows through their stages with exclusive locks,
retries with backoff and rollback to the last good state.

Configuration comes from flowgate.yaml, FLOWGATE_* environment variables
and the flags below, in increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(app.Out)
	root.SetErr(app.Err)

	pf := root.PersistentFlags()
	pf.StringVarP(&app.configPath, "config", "c", "", "config file (default $FLOWGATE_CONFIG_PATH or ./flowgate.yaml)")
	pf.StringVarP(&app.output, "output", "o", "text", "output format: text or json")
	pf.String("store", "", "store driver: memory, sqlite, postgres, redis, mongo")
	pf.String("dsn", "", "store location: file, connection string, address or URI")
	pf.String("prefix", "", "redis key prefix")
	pf.String("graph", "", "transition graph YAML file")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text or json")
	pf.String("metrics-addr", "", "listen address for /metrics in serve mode")
	pf.Int("max-retries", 0, "attempts per operation before rollback")

	root.AddCommand(
		newCreateCommand(app),
		newAdvanceCommand(app),
		newShowCommand(app),
		newListCommand(app),
		newStatusCommand(app),
		newOpsCommand(app),
		newCancelCommand(app),
		newLocksCommand(app),
		newReleaseCommand(app),
		newSweepCommand(app),
		newServeCommand(app),
		newConfigCommand(app),
	)
	return root
}

// Execute runs the command line against the process arguments and returns
// the exit code.
func Execute() int {
	return Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

// Run executes args and returns the exit code. Interrupts cancel the
// command context.
func Run(ctx context.Context, args []string, out, errOut io.Writer) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runApp(ctx, NewApp(out, errOut), args)
}

func runApp(ctx context.Context, app *App, args []string) int {
	root := NewRootCommand(app)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)

	var status *ExitStatus
	if err != nil && (!errors.As(err, &status) || status.Err != nil) {
		fmt.Fprintln(app.Err, errStyle.Render("error:"), err)
	}
	return exitCode(err)
}

func (a *App) renderer() renderer {
	return renderer{w: a.Out, json: strings.EqualFold(a.output, "json")}
}

// loadConfig reads the configuration with the command's flags bound on top.
func (a *App) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	l := config.NewLoader()
	for key, name := range flagKeys {
		if err := l.BindFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return nil, err
		}
	}
	if a.configPath != "" {
		return l.LoadFromFile(a.configPath)
	}
	return l.Load()
}

// withBundle opens the engine for the duration of fn.
func (a *App) withBundle(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, b *flowgate.Bundle) error) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	b, err := a.Open(ctx, cfg, cfg.Log.Logger(a.Err))
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(ctx, cfg, b)
}

// parseData merges key=value pairs into the JSON object given with
// --data-json. Pair values that parse as JSON scalars keep their type.
func parseData(pairs map[string]string, raw string) (map[string]any, error) {
	data := make(map[string]any, len(pairs))
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return nil, fmt.Errorf("--data-json: %w", err)
		}
	}
	for k, v := range pairs {
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			switch parsed.(type) {
			case float64, bool, nil:
				data[k] = parsed
				continue
			}
		}
		data[k] = v
	}
	return data, nil
}
