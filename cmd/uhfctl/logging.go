package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/uhfsession/pkg/config"
)

// annotationConfigLogLevel marks commands that log at the configured level
// instead of staying silent by default.
const annotationConfigLogLevel = "uhfctl/config-log-level"

// configureLogger creates a logger with the appropriate log level based on flags.
// --log-level takes precedence over --verbose. Interactive commands are silent
// unless asked otherwise; long-running ones fall back to the config level.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	logLevel := logrus.PanicLevel

	logLevelStr, _ := cmd.Flags().GetString("log-level")
	verbose, _ := cmd.Flags().GetBool("verbose")

	switch {
	case logLevelStr != "":
		lvl, err := parseLevel(logLevelStr)
		if err != nil {
			return nil, err
		}
		logLevel = lvl
	case verbose:
		logLevel = logrus.DebugLevel
	case cmd.Annotations[annotationConfigLogLevel] != "":
		lvl, err := parseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		logLevel = lvl
	}

	logger := cfg.NewLogger()
	logger.SetLevel(logLevel)
	logger.SetOutput(cmd.ErrOrStderr())

	return logger, nil
}

func parseLevel(s string) (logrus.Level, error) {
	switch s {
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.PanicLevel, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", s)
	}
}
