package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/sorrymaker9331/finsight"
	"github.com/sorrymaker9331/finsight/cache"
	"github.com/sorrymaker9331/finsight/config"
	"github.com/sorrymaker9331/finsight/core"
	"github.com/sorrymaker9331/finsight/logging"
	"github.com/sorrymaker9331/finsight/model"
	modelanthropic "github.com/sorrymaker9331/finsight/model/anthropic"
	modelopenai "github.com/sorrymaker9331/finsight/model/openai"
	"github.com/sorrymaker9331/finsight/observability"
	"github.com/sorrymaker9331/finsight/tool"
	"github.com/sorrymaker9331/finsight/trace"
)

var (
	flagConfig    string
	flagFormat    string
	flagTrace     bool
	flagNoCache   bool
	flagMaxSteps  int
	flagToolsCmd  string
	flagToolsArgs []string
)

var rootCmd = &cobra.Command{
	Use:   "finsight [query]",
	Short: "Finsight runs a multi-agent financial analysis for a stock query",
	Long: `Finsight orchestrates news, market, financial-report and macro analysis
agents over a Model Context Protocol data server and consolidates their
findings into a single report.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalysis,

	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "path to YAML config file")
	rootCmd.Flags().StringVarP(&flagFormat, "format", "f", "markdown", "report format: markdown or json")
	rootCmd.Flags().BoolVar(&flagTrace, "trace", false, "print an execution trace summary to stderr")
	rootCmd.Flags().BoolVar(&flagNoCache, "no-cache", false, "bypass the tool-result cache")
	rootCmd.Flags().IntVar(&flagMaxSteps, "max-steps", 0, "override the superstep cap")
	rootCmd.Flags().StringVar(&flagToolsCmd, "tool-server", "", "command that starts the stdio tool server")
	rootCmd.Flags().StringSliceVar(&flagToolsArgs, "tool-server-arg", nil, "argument for the tool server command (repeatable)")
}

func runAnalysis(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagMaxSteps > 0 {
		cfg.Limits.MaxSteps = flagMaxSteps
	}
	if flagToolsCmd != "" {
		cfg.ToolServer.Command = flagToolsCmd
		cfg.ToolServer.Args = flagToolsArgs
	}
	if cfg.ToolServer.Command == "" {
		return fmt.Errorf("no tool server configured: set tool_server.command or --tool-server")
	}

	logger := buildLogger(cfg.Logging)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mdl, err := buildModel(cfg.Model)
	if err != nil {
		return err
	}

	serverCmd := exec.Command(cfg.ToolServer.Command, cfg.ToolServer.Args...)
	mcpClient := tool.NewStdioMCPClient("finsight", serverCmd, logger.WithComponent("tool"))
	if err := mcpClient.Connect(ctx); err != nil {
		return fmt.Errorf("connect tool server: %w", err)
	}

	var tools tool.Client = mcpClient
	if cfg.Cache.Enabled && !flagNoCache {
		tools = cache.New(mcpClient, cache.Config{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.Cache.TTL.Std(),
		}, cache.WithLogger(logger.WithComponent("cache")), cache.WithMetrics(metrics))
	}
	defer tools.Close()

	workflow, err := finsight.New(mdl, tools, func(o *finsight.Options) {
		o.MaxSteps = cfg.Limits.MaxSteps
		o.MaxIterations = cfg.Limits.MaxIterations
		o.ToolTimeout = cfg.Limits.ToolTimeout.Std()
		o.NodeTimeout = cfg.Limits.NodeTimeout.Std()
		o.Retry = tool.RetryPolicy{
			MaxRetries: cfg.Limits.MaxRetries,
			Base:       500 * time.Millisecond,
			Max:        5 * time.Second,
		}
		o.Logger = logger
		o.Metrics = metrics
	})
	if err != nil {
		return err
	}

	result, runErr := workflow.Analyze(ctx, query)
	if flagTrace && result != nil {
		printTraceSummary(os.Stderr, result.Trace)
	}
	var report *core.Report
	if result != nil {
		report = result.Report
	}
	if report != nil {
		if err := renderReport(os.Stdout, report, flagFormat); err != nil {
			return err
		}
	}
	if err := runError(report, runErr); err != nil {
		return err
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "warning:", runErr)
	}
	return nil
}

// runError maps the run outcome onto the exit contract: any produced report,
// degraded included, exits zero. A step-cap abort still yields a degraded
// report, so it only fails the process when no report came out; fatal agent
// errors, invalid topologies and infrastructure failures always do.
func runError(report *core.Report, runErr error) error {
	if runErr == nil || report == nil {
		return runErr
	}
	if oe, ok := core.AsOrchestrationError(runErr); ok && oe.Kind == core.OrchestrationErrMaxSteps {
		return nil
	}
	return runErr
}

func buildLogger(cfg config.Logging) *logging.RunLogger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return logging.New(&logging.Config{
		Level:  level,
		Format: cfg.Format,
		Output: os.Stderr,
	})
}

func buildModel(cfg config.Model) (model.Model, error) {
	switch cfg.Provider {
	case "openai":
		return modelopenai.NewModel(func(o *modelopenai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			if cfg.Temperature > 0 {
				o.Temperature = cfg.Temperature
			}
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(cfg.MaxTokens)
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case "anthropic":
		return modelanthropic.NewModel(func(o *modelanthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropic.Model(cfg.Name)
			}
			if cfg.Temperature > 0 {
				o.Temperature = cfg.Temperature
			}
			if cfg.MaxTokens > 0 {
				o.MaxTokens = int64(cfg.MaxTokens)
			}
			o.APIKey = cfg.APIKey
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

func printTraceSummary(w *os.File, entries []trace.Entry) {
	fmt.Fprintf(w, "--- execution trace (%d entries) ---\n", len(entries))
	for _, e := range entries {
		line := fmt.Sprintf("%4d %-14s", e.Seq, e.Kind)
		if e.Step > 0 {
			line += fmt.Sprintf(" step=%d", e.Step)
		}
		if e.Node != "" {
			line += " node=" + e.Node
		}
		if e.Tool != "" {
			line += " tool=" + e.Tool
		}
		if e.Attempt > 0 {
			line += fmt.Sprintf(" attempt=%d", e.Attempt)
		}
		if e.Duration > 0 {
			line += fmt.Sprintf(" dur=%s", e.Duration.Round(time.Millisecond))
		}
		if e.Err != "" {
			line += " err=" + e.Err
		}
		fmt.Fprintln(w, line)
	}
}
