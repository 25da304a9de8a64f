// Package workers runs the background jobs of the sync server and the field
// client. A Worker starts its own goroutine in Run and stops when the
// context passed to Run is cancelled.
package workers

import "context"

// Worker is the interface that must be implemented by any background worker.
//
// Run must not block: implementations spawn a goroutine and return. The
// goroutine exits when ctx is done.
//
// Example implementation:
//
//	type MyWorker struct{}
//
//	func (w *MyWorker) Run(ctx context.Context) {
//	    go func() {
//	        <-ctx.Done()
//	    }()
//	}
type Worker interface {
	Run(ctx context.Context)
}
