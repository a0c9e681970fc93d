package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"zplink/config"
	"zplink/engine"
	"zplink/logging"
)

// app is the loaded configuration, loggers and engine for one command run.
type app struct {
	cfg        *config.Config
	configPath string
	engine     *engine.Engine

	fileLogger *logging.FileLogger
	debugLog   *logging.DebugLogger
}

// openApp loads the config file and builds an engine. Engine log lines go to
// the --log file when set, and to echo otherwise (nil discards them).
func openApp(gf *globalFlags, echo io.Writer) (*app, error) {
	cfg, err := config.Load(gf.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a := &app{cfg: cfg, configPath: gf.configPath}

	if gf.logFile != "" {
		a.fileLogger, err = logging.NewFileLogger(gf.logFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to open log file: %v\n", err)
		} else if echo != nil {
			a.fileLogger.SetEcho(echo)
		}
	}

	if gf.logDebug != "" {
		a.debugLog, err = logging.NewDebugLogger("debug.log")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to open debug log: %v\n", err)
		} else {
			filter := gf.logDebug
			if filter == "all" || filter == "true" || filter == "1" {
				filter = ""
			}
			if unknown := a.debugLog.SetFilter(filter); len(unknown) > 0 {
				fmt.Fprintf(os.Stderr, "Warning: unknown debug protocols: %s (known: %s)\n",
					strings.Join(unknown, ", "), strings.Join(logging.KnownProtocols(), ", "))
			}
			logging.SetGlobalDebugLogger(a.debugLog)
		}
	}

	a.engine = engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: gf.configPath,
		LogFunc:    a.logFunc(echo),
	})
	return a, nil
}

func (a *app) logFunc(echo io.Writer) engine.LogFunc {
	return func(format string, args ...interface{}) {
		switch {
		case a.fileLogger != nil:
			a.fileLogger.Log(format, args...)
		case echo != nil:
			fmt.Fprintf(echo, format+"\n", args...)
		}
	}
}

// Close stops the engine and flushes the log files.
func (a *app) Close() {
	a.engine.Stop()
	if a.fileLogger != nil {
		a.fileLogger.Close()
	}
	if a.debugLog != nil {
		logging.SetGlobalDebugLogger(nil)
		a.debugLog.Close()
	}
}
