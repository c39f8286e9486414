// Command scamintel extracts scam intelligence from conversations and serves
// it over MCP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hurttlocker/scamintel/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	// Global flags
	verbose      bool
	configPath   string
	dotenvPath   string
	llmFlag      string
	llmTimeout   string
	handlePolicy string
	sessionStore string
	redisURL     string
	dbPath       string
	callbackURL  string

	logger   *zap.Logger
	resolved config.ResolvedConfig
)

var rootCmd = &cobra.Command{
	Use:   "scamintel",
	Short: "Scam intelligence extraction engine",
	Long: `scamintel pulls actionable identifiers out of scam conversations:
phone numbers, UPI payment handles, bank account numbers, phishing links,
email addresses and suspicious keywords.

Rule-based extraction always runs. When an LLM is configured (--llm), its
result is merged in under a strict timeout; any failure falls back to rules.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		resolved, err = config.ResolveConfig(config.ResolveOptions{
			ConfigPath:      configPath,
			DotEnvPath:      dotenvPath,
			CLILLM:          llmFlag,
			CLILLMTimeout:   llmTimeout,
			CLISessionStore: sessionStore,
			CLIRedisURL:     redisURL,
			CLIDBPath:       dbPath,
			CLIHandlePolicy: handlePolicy,
			CLICallbackURL:  callbackURL,
		})
		if err != nil {
			return fmt.Errorf("resolving config: %w", err)
		}

		// Initialize logger
		cfg := zap.NewProductionConfig()
		level, err := zapcore.ParseLevel(resolved.LogLevel.Value)
		if err != nil {
			return fmt.Errorf("invalid log level %q from %s", resolved.LogLevel.Value, resolved.LogLevel.From)
		}
		if verbose {
			level = zapcore.DebugLevel
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "scamintel %s\n", version)
	},
}

func init() {
	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	pf.StringVar(&configPath, "config", "", "Config file (default: ~/.scamintel/config.yaml)")
	pf.StringVar(&dotenvPath, "env-file", "", "Load environment from this file (default: ./.env if present)")
	pf.StringVar(&llmFlag, "llm", "", "External extractor as provider[/model], or off (e.g., openai/gpt-4o-mini, groq, google)")
	pf.StringVar(&llmTimeout, "llm-timeout", "", "External extractor timeout (e.g., 5s or 5000)")
	pf.StringVar(&handlePolicy, "handle-policy", "", "Undotted unknown handles: upi, email or drop")
	pf.StringVar(&sessionStore, "session-store", "", "Session store: memory, redis or sqlite")
	pf.StringVar(&redisURL, "redis-url", "", "Redis URL for --session-store redis")
	pf.StringVar(&dbPath, "db", "", "SQLite path for --session-store sqlite")
	pf.StringVar(&callbackURL, "callback-url", "", "Endpoint that receives final session reports")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(transcriptCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
