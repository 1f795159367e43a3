// Package logger provides structured logging on top of zerolog.
//
// Loggers support JSON and console output, component-scoped children and
// map-style fields:
//
//	log := logger.WithComponent("scheduler")
//	log.Info("task completed", logger.Fields("task_id", id))
package logger
