package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aixgo-dev/synode/internal/observability"
	metrics "github.com/aixgo-dev/synode/pkg/observability"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <graph>",
	Short: "Launch a graph and print its result",
	Long: `Loads the graph document named <graph> ("a.b.c" resolves to a/b/synod.c.yaml
below --dir) and launches it from --trigger. Daemon graphs keep running until
interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runGraph,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("trigger", "t", "", "Agent to start from (default main)")
	runCmd.Flags().StringP("input", "i", "", "Input as JSON, or a plain string")
	runCmd.Flags().String("session", "", "Private board seed as a JSON object")
	runCmd.Flags().String("argus", getEnv("SYNODE_ARGUS", ""), "Supervisor schema to attach")
	runCmd.Flags().Int("http-port", getEnvInt("PORT", 0), "Serve /metrics and /health on this port")
}

func runGraph(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := observability.InitFromEnv(env.log); err != nil {
		env.log.Warn("tracing disabled", "err", err)
	}
	defer func() { _ = observability.Shutdown(context.Background()) }()

	trigger, _ := cmd.Flags().GetString("trigger")
	input, _ := cmd.Flags().GetString("input")
	sessionRaw, _ := cmd.Flags().GetString("session")
	argusSchema, _ := cmd.Flags().GetString("argus")
	port, _ := cmd.Flags().GetInt("http-port")

	var session map[string]any
	if sessionRaw != "" {
		s, ok := parseValue(sessionRaw).(map[string]any)
		if !ok {
			return fmt.Errorf("--session must be a JSON object")
		}
		session = s
	}

	engine, argus, err := env.summon(args[0], argusSchema)
	if err != nil {
		return err
	}

	if port > 0 {
		metrics.InitMetrics()
		metrics.SetVersion(Version)
		srv := metrics.NewServer(port)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				env.log.Warn("observability server stopped", "err", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	if argus != nil {
		if _, err := argus.Run(ctx); err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := argus.Shutdown(sctx); err != nil {
				env.log.Warn("supervisor shutdown", "err", err)
			}
		}()
	}

	result, err := engine.Launch(ctx, trigger, parseValue(input), session)
	if err != nil {
		return err
	}
	if err := printJSON(result); err != nil {
		return err
	}

	if engine.Definition().Daemon {
		env.log.Info("daemon graph running, interrupt to stop", "graph", engine.Name())
		<-ctx.Done()
		engine.Wait()
	}
	return nil
}
