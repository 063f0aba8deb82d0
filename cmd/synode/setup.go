package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aixgo-dev/synode"
	"github.com/aixgo-dev/synode/internal/logging"
	"github.com/aixgo-dev/synode/internal/remote"
	"github.com/aixgo-dev/synode/internal/supervisor"
	"github.com/aixgo-dev/synode/pkg/blackboard"
	"github.com/aixgo-dev/synode/pkg/llm/provider"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// env is what every command builds from the persistent flags.
type env struct {
	log     *slog.Logger
	dir     string
	catalog *synode.Catalog
	redis   *redis.Client
}

func newEnv(cmd *cobra.Command) (*env, error) {
	level, _ := cmd.Flags().GetString("log-level")
	dir, _ := cmd.Flags().GetString("dir")
	addr, _ := cmd.Flags().GetString("redis")

	log := logging.New(logging.ParseLevel(level))
	e := &env{
		log:     log,
		dir:     dir,
		catalog: synode.NewCatalog(synode.NewLoader(&synode.OSFileReader{}), dir, log),
	}
	if addr == "" {
		return e, nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	e.redis = client
	return e, nil
}

func (e *env) Close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
}

// engineOptions wires the providers and, with Redis, the shared board of
// graph and the remote dispatcher.
func (e *env) engineOptions(graph string) []synode.Option {
	opts := []synode.Option{
		synode.WithLogger(e.log),
		synode.WithProviders(provider.NewDefaultRegistry()),
	}
	if e.redis != nil {
		opts = append(opts,
			synode.WithBlackboard(blackboard.NewRedisFromClient(e.redis, "synode:board:"+graph+":")),
			synode.WithDispatcher(remote.NewRedisQueue(e.redis, remote.WithLogger(e.log))),
		)
	}
	return opts
}

// summon builds the engine for ref. With a supervisor schema, an ARGUS
// supervisor is created on the engine's board and its hooks bound to agents.
func (e *env) summon(ref, argusSchema string) (*synode.Engine, *supervisor.Argus, error) {
	def, err := e.catalog.Definition(ref)
	if err != nil {
		return nil, nil, err
	}
	opts := e.engineOptions(def.Name)

	var argus *supervisor.Argus
	var schema *supervisor.Schema
	if argusSchema != "" {
		data, err := os.ReadFile(argusSchema) // #nosec G304 - schema path comes from the command line
		if err != nil {
			return nil, nil, fmt.Errorf("read supervisor schema: %w", err)
		}
		if schema, err = supervisor.LoadSchema(data); err != nil {
			return nil, nil, err
		}
		argus = supervisor.New(schema.Name,
			supervisor.WithHeartbeat(time.Duration(schema.Heartbeat*float64(time.Second))),
			supervisor.WithLogger(e.log))
		opts = append(opts, synode.WithSupervisor(argus))
	}

	engine, err := e.catalog.Summon(ref, opts...)
	if err != nil {
		return nil, nil, err
	}
	if argus != nil {
		if err := engine.AttachArgus(argus, schema, nil); err != nil {
			return nil, nil, err
		}
	}
	return engine, argus, nil
}

// parseValue reads s as JSON, falling back to the raw string.
func parseValue(s string) any {
	if s == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
