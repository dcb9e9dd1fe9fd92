// Package cli builds the replenish command tree.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/odyssey-erp/replenishment/internal/app"
	"github.com/odyssey-erp/replenishment/internal/demand"
	"github.com/odyssey-erp/replenishment/internal/pipeline"
	pipelinehttp "github.com/odyssey-erp/replenishment/internal/pipeline/http"
	"github.com/odyssey-erp/replenishment/jobs"
)

type state struct {
	cfg    *app.Config
	logger *zap.Logger
}

// NewRootCommand returns the replenish command with every subcommand attached.
func NewRootCommand() *cobra.Command {
	st := &state{}
	root := &cobra.Command{
		Use:           "replenish",
		Short:         "Inventory replenishment planning",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			st.cfg = cfg
			st.logger = app.NewLogger(cfg)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if st.logger != nil {
				_ = st.logger.Sync()
			}
		},
	}
	root.AddCommand(newServeCommand(st), newRunCommand(st), newJobsCommand(st))
	return root
}

func stageNames() []string {
	stages := pipeline.Stages()
	names := make([]string, 0, len(stages))
	for _, s := range stages {
		names = append(names, string(s))
	}
	return names
}

func newServeCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP trigger surface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), st)
		},
	}
}

func serve(ctx context.Context, st *state) error {
	rt, err := app.NewRuntime(ctx, st.cfg, st.logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: st.cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			st.logger.Warn("inspector close", zap.Error(err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:          st.logger,
		Config:          st.cfg,
		PipelineHandler: pipelinehttp.NewHandler(st.logger.Named("http"), rt.Runner, rt.Resolver, st.cfg.ScheduleHorizon),
		JobHandler:      jobs.NewHandler(inspector, st.logger),
		Metrics:         rt.Metrics,
		HealthChecks:    rt.HealthChecks(),
	})
	server := &http.Server{
		Addr:         st.cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  st.cfg.AppReadTimeout,
		WriteTimeout: st.cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		st.logger.Info("starting http server", zap.String("addr", st.cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	st.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

type runFlags struct {
	startDate string
	endDate   string
	manual    string
}

func newRunCommand(st *state) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:       "run <stage>",
		Short:     "Run a stage inline and print its report",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: stageNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := pipeline.ParseStage(args[0])
			if err != nil {
				return err
			}
			opts := pipeline.Options{StartDate: flags.startDate, EndDate: flags.endDate}
			if flags.manual != "" {
				override, err := readOverride(flags.manual)
				if err != nil {
					return err
				}
				opts.Manual = override
			}
			rt, err := app.NewRuntime(cmd.Context(), st.cfg, st.logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			outcome, runErr := rt.Runner.Run(cmd.Context(), stage, opts)
			if err := writeJSON(cmd.OutOrStdout(), outcome); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&flags.startDate, "start-date", "", "movement capture start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&flags.endDate, "end-date", "", "movement capture end (YYYY-MM-DD)")
	cmd.Flags().StringVar(&flags.manual, "manual", "", "JSON file with a manual demand override")
	return cmd
}

func readOverride(path string) (*demand.ManualOverride, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manual override: %w", err)
	}
	var override demand.ManualOverride
	if err := json.Unmarshal(raw, &override); err != nil {
		return nil, fmt.Errorf("decode manual override: %w", err)
	}
	return &override, nil
}

func newJobsCommand(st *state) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger queued stage runs",
	}

	var startDate, endDate string
	trigger := &cobra.Command{
		Use:       "trigger <stage>",
		Short:     "Enqueue a stage task",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: stageNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := pipeline.ParseStage(args[0])
			if err != nil {
				return err
			}
			c := NewJobsCLI(st.cfg.RedisAddr)
			defer func() { _ = c.Close() }()
			info, err := c.Trigger(cmd.Context(), stage, startDate, endDate)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"id": info.ID, "type": info.Type, "queue": info.Queue})
		},
	}
	trigger.Flags().StringVar(&startDate, "start-date", "", "movement capture start (YYYY-MM-DD)")
	trigger.Flags().StringVar(&endDate, "end-date", "", "movement capture end (YYYY-MM-DD)")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print default queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := NewJobsCLI(st.cfg.RedisAddr)
			defer func() { _ = c.Close() }()
			s, err := c.InspectQueue()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), s)
		},
	}

	var size int
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := NewJobsCLI(st.cfg.RedisAddr)
			defer func() { _ = c.Close() }()
			infos, err := c.ListScheduled(size)
			if err != nil {
				return err
			}
			out := make([]map[string]any, 0, len(infos))
			for _, info := range infos {
				out = append(out, map[string]any{"id": info.ID, "type": info.Type, "nextProcessAt": info.NextProcessAt})
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	scheduled.Flags().IntVar(&size, "size", 10, "page size")

	jobsCmd.AddCommand(trigger, stats, scheduled)
	return jobsCmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
