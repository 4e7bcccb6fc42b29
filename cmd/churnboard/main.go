package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Roelanb/churnboard/internal/api"
	"github.com/Roelanb/churnboard/internal/config"
	"github.com/Roelanb/churnboard/internal/observability"
)

// Injected at build time with: -ldflags "-X 'main.version=1.2.3'"
var version = "dev"

type app struct {
	configPath string
	envFile    string
	logLevel   string
	backendURL string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "churnboard",
		Short:         "Customer churn analytics dashboard",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: strings.TrimSpace(`
  # Serve the dashboard
  churnboard serve --listen 127.0.0.1:8080

  # Run a single action and print its result
  churnboard run search -p searchQuery="billing issue" -p searchLimit=3

  # Save the filtered customer export
  churnboard export --contract Month-to-month -o churners.csv
`),
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "churnboard.json", "Path to config JSON file")
	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Optional .env file with default environment")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	cmd.PersistentFlags().StringVar(&a.backendURL, "backend", "", "Backend base URL")

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newRunCmd(a))
	cmd.AddCommand(newExportCmd(a))
	cmd.AddCommand(newActionsCmd())
	return cmd
}

// loadConfig reads the .env file and the config. Flags are exported as
// environment overrides so they also hold across hot reloads.
func (a *app) loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return nil, err
	}
	if a.backendURL != "" {
		_ = os.Setenv(config.EnvBackendURL, a.backendURL)
	}
	if a.logLevel != "" {
		_ = os.Setenv(config.EnvLogLevel, a.logLevel)
	}
	return config.Load(a.configPath)
}

// cliLogger logs to stderr; one-shot commands stay quiet unless asked.
func (a *app) cliLogger(cfg *config.Config) *observability.Logger {
	level := "warn"
	if a.logLevel != "" {
		level = cfg.Logging.Level
	}
	return observability.NewLogger(level, "stderr")
}

func main() {
	api.Version = version
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
