package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aixgo-dev/synode"
	"github.com/aixgo-dev/synode/internal/graph"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

const historyFile = ".synode_history"

var replCmd = &cobra.Command{
	Use:   "repl <graph>",
	Short: "Launch a graph interactively",
	Long: `Each line is launched as input (JSON, or a plain string) from the current
trigger. Lines starting with ":" are commands:

  :board          print the shared blackboard
  :trigger NAME   launch from NAME from now on
  :quit           leave`,
	Args: cobra.ExactArgs(1),
	RunE: runREPL,
}

func init() {
	rootCmd.AddCommand(replCmd)

	replCmd.Flags().StringP("trigger", "t", graph.DefaultTrigger, "Agent to start from")
}

func runREPL(cmd *cobra.Command, args []string) error {
	env, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	engine, _, err := env.summon(args[0], "")
	if err != nil {
		return err
	}
	trigger, _ := cmd.Flags().GetString("trigger")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	history := ""
	if home, err := os.UserHomeDir(); err == nil {
		history = filepath.Join(home, historyFile)
		if f, err := os.Open(history); err == nil { // #nosec G304 - fixed file under the home directory
			_, _ = line.ReadHistory(f)
			_ = f.Close()
		}
	}
	defer func() {
		if history == "" {
			return
		}
		if f, err := os.Create(history); err == nil { // #nosec G304 - fixed file under the home directory
			_, _ = line.WriteHistory(f)
			_ = f.Close()
		}
	}()

	ctx := cmd.Context()
	for {
		input, err := line.Prompt(engine.Name() + "> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, os.ErrClosed) {
			return nil
		}
		if err != nil {
			// io.EOF on Ctrl-D
			fmt.Println()
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, ":") {
			quit, next := replCommand(ctx, engine, input, trigger)
			if quit {
				return nil
			}
			trigger = next
			continue
		}

		result, err := engine.Launch(ctx, trigger, parseValue(input), nil)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			continue
		}
		_ = printJSON(result)
	}
}

// replCommand runs one ":" command and returns whether to quit and the
// trigger to use next.
func replCommand(ctx context.Context, engine *synode.Engine, input, trigger string) (bool, string) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(input, ":"), " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "quit", "q", "exit":
		return true, trigger
	case "board":
		dump, err := engine.Blackboard().Dump(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			return false, trigger
		}
		_ = printJSON(dump)
	case "trigger":
		if _, ok := engine.Definition().Agent(arg); !ok {
			fmt.Fprintf(os.Stderr, "Error: no agent %q\n", arg)
			return false, trigger
		}
		fmt.Printf("launching from %s\n", arg)
		return false, arg
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", name)
	}
	return false, trigger
}
