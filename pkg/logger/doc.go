// Package logger provides the structured logging interface used across igarchiver.
//
// It wraps zerolog. Console output is colourised unless disabled; when a log
// file is configured, output is JSON lines appended to that file.
//
//	err := logger.Initialize(&cfg.Logging)
//	log, runID := logger.WithRunID(logger.GetLogger())
//	log.WithField("username", "natgeo").Info("Archive started")
//
// Tests use NewTestLogger to capture messages or NewNopLogger to discard them.
package logger
