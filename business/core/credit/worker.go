package credit

import (
	"context"
	"sync"
)

// maxDriveRequests limits the number of verification drives that can be
// queued before new signals are dropped. Dropped signals are not lost
// work: the sweeper re-drives anything still pending.
const maxDriveRequests = 100

// driveGoroutines is the number of G's servicing the drive queue.
const driveGoroutines = 4

// Worker runs verification drives in the background so request handlers
// can fire and forget.
type Worker struct {
	core   *Core
	wg     sync.WaitGroup
	drives chan string
	shut   chan struct{}
}

// RunWorker creates a worker, registers it with the core, and starts the
// drive goroutines.
func RunWorker(core *Core) *Worker {
	w := Worker{
		core:   core,
		drives: make(chan string, maxDriveRequests),
		shut:   make(chan struct{}),
	}

	// Register this worker with the core.
	core.Worker = &w

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	w.wg.Add(driveGoroutines)
	for i := 0; i < driveGoroutines; i++ {
		go func() {
			defer w.wg.Done()
			hasStarted <- true
			w.driveOperations()
		}()
	}

	for i := 0; i < driveGoroutines; i++ {
		<-hasStarted
	}

	return &w
}

// Shutdown terminates the goroutines performing drives. In-flight drives
// run to completion.
func (w *Worker) Shutdown() {
	w.core.log.Infow("credit: worker: shutdown started")
	defer w.core.log.Infow("credit: worker: shutdown complete")

	close(w.shut)
	w.wg.Wait()
}

// SignalDrive queues a verification drive. If the queue is full the
// signal is dropped; the sweeper will pick the transaction up later.
func (w *Worker) SignalDrive(txID string) {
	select {
	case w.drives <- txID:
	default:
		w.core.log.Infow("credit: worker: drive queue full, signal dropped", "tx", txID)
	}
}

// driveOperations services the drive queue until shutdown.
func (w *Worker) driveOperations() {
	for {
		select {
		case txID := <-w.drives:
			if err := w.core.DriveVerification(context.Background(), txID); err != nil {
				w.core.log.Errorw("credit: worker: drive", "tx", txID, "ERROR", err)
			}

		case <-w.shut:
			return
		}
	}
}
