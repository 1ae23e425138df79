// GWP dashboard: HTTP dashboard and MCP tools over the GWP backend.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jaakkos/gwp/internal/policy"
)

// Version is set by -ldflags at build time.
var Version = "dev"

const logPrefix = "[gwp] "

var (
	configPath string
	logFile    string
)

var rootCmd = &cobra.Command{
	Use:   "gwp",
	Short: "GWP dashboard server and command-line client",
	Long: `gwp serves the GWP work-plan dashboard (plan, hitos, observaciones,
documentos and the strategic library) and exposes the same views as MCP tools.

The configuration file is read from --config or $GWP_CONFIG; without one the
built-in defaults are used.

Examples:
  # Log in once; the session token is kept in the local state file
  gwp login --user ana

  # Run the dashboard on the configured port
  gwp serve

  # Ask MCP clients (stdio) to use the GWP tools
  gwp mcp`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default $GWP_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Log file, or none/off (overrides config)")

	rootCmd.AddCommand(serveCmd, mcpCmd, loginCmd, logoutCmd, refreshCmd, statusCmd, askCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogger creates a logger that writes to a log file and optionally stderr.
// When stderr is a terminal, logs go to both stderr and the file. When stderr
// is redirected, logs go only to the file.
func setupLogger(logFilePath string) *log.Logger {
	var writers []io.Writer

	stderrIsTerminal := false
	if info, err := os.Stderr.Stat(); err == nil {
		stderrIsTerminal = (info.Mode() & os.ModeCharDevice) != 0
	}

	hasLogFile := false
	lower := strings.ToLower(logFilePath)
	if lower != "none" && lower != "off" && logFilePath != "" {
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err == nil {
			f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err == nil {
				writers = append(writers, f)
				hasLogFile = true
			} else {
				fmt.Fprintf(os.Stderr, "%sWarning: cannot open log file %s: %v\n", logPrefix, logFilePath, err)
			}
		} else {
			fmt.Fprintf(os.Stderr, "%sWarning: cannot create log dir %s: %v\n", logPrefix, filepath.Dir(logFilePath), err)
		}
	}

	// At least one output is always needed.
	if stderrIsTerminal || !hasLogFile {
		writers = append(writers, os.Stderr)
	}

	return log.New(io.MultiWriter(writers...), logPrefix, log.LstdFlags|log.Lshortfile)
}

// loadConfig loads the configuration from path, then $GWP_CONFIG, then the
// defaults. A file that cannot be read or parsed is an error; no file at all
// means defaults.
func loadConfig(path string) (*policy.Config, error) {
	if path == "" {
		path = os.Getenv("GWP_CONFIG")
	}
	if path == "" {
		return policy.DefaultConfig(), nil
	}
	cfg, err := policy.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// loadPolicy resolves the config for the current command and applies flag
// overrides.
func loadPolicy() (*policy.Policy, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}
	return policy.New(cfg), nil
}
