package server

// Server is the lifecycle contract of the sync server process.
//
// [RunServer] blocks until a stop signal arrives and the transport has
// drained; [Shutdown] stops the transport without waiting for a signal.
type Server interface {
	// RunServer starts the workers and the HTTP listener and blocks until
	// shutdown completes.
	RunServer()

	// Shutdown gracefully stops the HTTP listener.
	Shutdown()
}
