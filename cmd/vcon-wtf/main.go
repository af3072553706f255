package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/snarg/vcon-wtf/internal/config"
)

var version = "dev"

var (
	// Global flags
	envFile  string
	logLevel string

	// Serve flags (also accepted by the root command)
	listenAddr   string
	defaultModel string
	providerName string
	whisperURL   string
	watchDir     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vcon-wtf",
		Short: "Transcribe vCon audio dialogs into WTF analysis entries",
		Long: `vcon-wtf enriches vCon documents with World Transcription Format analysis.

It serves an OpenAI-compatible transcription endpoint and a vCon-native
/transcribe endpoint, and can watch a directory for vCon files.

Running without a subcommand starts the server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	addServeFlags(rootCmd)

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(enrichCmd())
	rootCmd.AddCommand(modelsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	cmd.Flags().StringVar(&defaultModel, "model", "", "Default model alias or ID (overrides DEFAULT_MODEL)")
	cmd.Flags().StringVar(&providerName, "provider", "", "Transcription provider: whisper, openai, deepinfra, elevenlabs")
	cmd.Flags().StringVar(&whisperURL, "whisper-url", "", "OpenAI-compatible transcription URL (overrides WHISPER_URL)")
	cmd.Flags().StringVar(&watchDir, "watch-dir", "", "Directory to watch for vCon files (overrides WATCH_DIR)")
}

func loadConfig() (*config.Config, error) {
	return config.Load(config.Overrides{
		EnvFile:      envFile,
		HTTPAddr:     listenAddr,
		LogLevel:     logLevel,
		DefaultModel: defaultModel,
		Provider:     providerName,
		WhisperURL:   whisperURL,
		WatchDir:     watchDir,
	})
}
