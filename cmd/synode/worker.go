package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aixgo-dev/synode/internal/observability"
	"github.com/aixgo-dev/synode/internal/operator"
	"github.com/aixgo-dev/synode/internal/remote"
	"github.com/aixgo-dev/synode/pkg/llm/provider"
	metrics "github.com/aixgo-dev/synode/pkg/observability"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Serve remote operator tasks from the Redis queue",
	Long: `Consumes run_bot, run_hydra, run_synod and run_basic tasks published by
engines whose agents run asynchronously. Requires --redis.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().Int64("concurrency", int64(getEnvInt("SYNODE_WORKER_CONCURRENCY", 16)), "Tasks handled at once")
	workerCmd.Flags().Int64("max-backlog", 0, "Report degraded health above this many pending tasks (0 disables)")
	workerCmd.Flags().Int("http-port", getEnvInt("PORT", 8080), "Serve /metrics and /health on this port")
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer env.Close()
	if env.redis == nil {
		return errors.New("worker needs --redis or SYNODE_REDIS_ADDR")
	}

	if err := observability.InitFromEnv(env.log); err != nil {
		env.log.Warn("tracing disabled", "err", err)
	}
	defer func() { _ = observability.Shutdown(context.Background()) }()

	concurrency, _ := cmd.Flags().GetInt64("concurrency")
	port, _ := cmd.Flags().GetInt("http-port")
	backlog, _ := cmd.Flags().GetInt64("max-backlog")

	metrics.InitMetrics()
	metrics.SetVersion(Version)
	health := metrics.InitHealthChecker()
	health.RegisterCheck(metrics.PingCheck())
	health.RegisterCheck(metrics.RedisCheck(func(ctx context.Context) error {
		return env.redis.Ping(ctx).Err()
	}))
	queue := remote.NewRedisQueue(env.redis, remote.WithLogger(env.log))
	if backlog > 0 {
		health.RegisterCheck(metrics.QueueCheck(queue.Pending, backlog))
	}
	srv := metrics.NewServer(port)
	go func() {
		env.log.Info("starting observability server", "port", port)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			env.log.Warn("observability server stopped", "err", err)
		}
	}()

	providers := provider.NewDefaultRegistry()
	exec := remote.OperatorExecutor(operator.Deps{
		Providers: providers,
		Launcher:  env.catalog.Launcher(env.engineOptions("worker")...),
		Logger:    env.log,
	})
	w := remote.NewWorker(queue, exec,
		remote.WithWorkerLogger(env.log),
		remote.WithConcurrency(concurrency))

	env.log.Info("starting worker", "version", Version, "concurrency", concurrency)
	err = w.Run(ctx)

	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if serr := srv.Shutdown(sctx); serr != nil {
		env.log.Warn("observability server shutdown", "err", serr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
