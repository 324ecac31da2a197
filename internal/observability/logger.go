// Package observability owns the process-wide loggers and the telemetry
// system. CLI commands log through a SIMPLE-profile logger on stderr; the
// admin server logs structured JSON.
package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
)

var (
	// CLILogger is used by CLI commands.
	CLILogger *logging.Logger

	// ServerLogger is used by serve and the HTTP middleware.
	ServerLogger *logging.Logger
)

// levels maps config spellings to logging severities.
var levels = map[string]string{
	"trace":   "TRACE",
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

// InitCLILogger installs the CLI logger. verbose enables debug output.
func InitCLILogger(serviceName string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		fatal(foundry.ExitConfigInvalid, "initialize CLI logger", err)
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	CLILogger = logger
}

// InitServerLogger installs the structured server logger. Every entry
// carries the telemetry namespace when one is given.
func InitServerLogger(serviceName string, logLevel string, namespace ...string) {
	static := map[string]any{}
	if len(namespace) > 0 && namespace[0] != "" {
		static["namespace"] = namespace[0]
	}

	logger, err := logging.New(&logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: parseLogLevel(logLevel),
		Service:      serviceName,
		Environment:  "production",
		StaticFields: static,
		Middleware: []logging.MiddlewareConfig{
			{Name: "correlation", Enabled: true, Order: 100, Config: map[string]any{}},
		},
		Sinks: []logging.SinkConfig{{
			Type:    "console",
			Format:  "json",
			Console: &logging.ConsoleSinkConfig{Stream: "stderr"},
		}},
		EnableCaller:     true,
		EnableStacktrace: true,
	})
	if err != nil {
		fatal(foundry.ExitConfigInvalid, "initialize server logger", err)
	}
	ServerLogger = logger
}

// Active returns the server logger when serving, otherwise the CLI logger,
// creating a quiet one on first use.
func Active(serviceName string) *logging.Logger {
	if ServerLogger != nil {
		return ServerLogger
	}
	if CLILogger == nil {
		InitCLILogger(serviceName, false)
	}
	return CLILogger
}

// ApplyLevel sets the CLI logger level from config unless --verbose was given.
func ApplyLevel(levelStr string, verbose bool) {
	if !verbose {
		setLevel(CLILogger, levelStr)
	}
}

// ApplyServerLevel sets the server logger level on config reload.
func ApplyServerLevel(levelStr string) {
	setLevel(ServerLogger, levelStr)
}

func setLevel(logger *logging.Logger, levelStr string) {
	if logger == nil {
		return
	}
	switch parseLogLevel(levelStr) {
	case "TRACE", "DEBUG":
		logger.SetLevel(logging.DEBUG)
	case "WARN":
		logger.SetLevel(logging.WARN)
	case "ERROR":
		logger.SetLevel(logging.ERROR)
	default:
		logger.SetLevel(logging.INFO)
	}
}

// parseLogLevel maps a config value to a severity name. Unknown values are INFO.
func parseLogLevel(levelStr string) string {
	if level, ok := levels[strings.ToLower(strings.TrimSpace(levelStr))]; ok {
		return level
	}
	return "INFO"
}

// fatal reports a logger setup failure on stderr and exits. No logger
// exists yet at this point.
func fatal(code foundry.ExitCode, what string, err error) {
	fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", what, err)
	if info, ok := foundry.GetExitCodeInfo(code); ok {
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		os.Exit(info.Code)
	}
	os.Exit(int(code))
}
