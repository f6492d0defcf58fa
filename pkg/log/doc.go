// Package log defines the logging abstraction used across daemonkit.
//
// Core packages accept a Logger rather than a concrete logging library so
// that embedders can plug in their own infrastructure. A zerolog-backed
// adapter is provided for applications that want output, and a no-op
// logger for tests and for embedders that log elsewhere.
//
// # Usage
//
// Wrap an existing zerolog logger:
//
//	logger := log.NewZerologAdapterWithLogger(zl)
//
// Or take the console default:
//
//	logger := log.NewZerologAdapter()
package log
