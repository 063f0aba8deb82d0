// Command synode runs agent graphs, validates graph documents and serves
// remote operator tasks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags)
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:           "synode",
	Short:         "Synode runs declarative agent graphs",
	Long:          `Synode loads synod.<name>.yaml graph documents and walks them from a trigger agent.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("dir", getEnv("SYNODE_DIR", "."), "Directory holding graph documents")
	rootCmd.PersistentFlags().String("log-level", getEnv("LOG_LEVEL", "info"), "Log level")
	rootCmd.PersistentFlags().String("redis", getEnv("SYNODE_REDIS_ADDR", ""), "Redis address for the shared blackboard and task queue")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}
