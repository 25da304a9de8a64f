// Package server runs the sync server's HTTP transport together with its
// background workers.
//
// It owns the process lifecycle: startup, signal handling and graceful
// shutdown on SIGTERM, SIGINT or SIGQUIT.
package server
