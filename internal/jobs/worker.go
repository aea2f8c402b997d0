package jobs

import (
	"context"
	"log"
	"time"
)

// JobProcessor drains whatever work is currently pending. Implementations
// must be safe to call repeatedly.
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker polls a JobProcessor at a fixed interval until stopped.
type Worker struct {
	processor    JobProcessor
	pollInterval time.Duration
	stop         chan struct{}
	done         chan struct{}
}

func NewWorker(processor JobProcessor, pollInterval time.Duration) *Worker {
	return &Worker{
		processor:    processor,
		pollInterval: pollInterval,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start runs the polling loop until the context is cancelled or Stop is
// called. An initial drain pass runs before the first tick so queued work
// is picked up without waiting a full interval.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.done)

	log.Printf("job worker polling every %v", w.pollInterval)

	w.drain(ctx)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("job worker stopping: context cancelled")
			return
		case <-w.stop:
			log.Println("job worker stopping: stop requested")
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	if err := w.processor.ProcessJobs(ctx); err != nil {
		log.Printf("job processing pass failed: %v", err)
	}
}

// Stop signals the loop to exit and waits for the in-flight pass to finish.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
	log.Println("job worker stopped")
}
