// Package logger provides the structured logging interface used across
// igharvest.
//
// It wraps zerolog: human-readable output on stderr, and optionally JSON lines
// in a file rotated by lumberjack.
//
// Basic Usage:
//
//	import "igharvest/pkg/logger"
//
//	cfg := &config.LoggingConfig{
//	    Level: "info",
//	    File:  "/var/log/igharvest.log",
//	}
//	err := logger.Initialize(cfg)
//
//	logger.WithField("username", "natgeo").Info("Starting scrape")
//	logger.WithError(err).Error("Attempt failed")
//
// Components take a Logger and derive children with fields:
//
//	log := logger.GetLogger().
//	    WithField("component", "scraper").
//	    WithField("execution_id", id)
//
//	log.InfoWithFields("Attempt finished", map[string]interface{}{
//	    "attempt": 2,
//	    "posts":   5,
//	})
//
// Tests use NewTestLogger, which records entries for assertions, or
// NewNopLogger.
package logger
