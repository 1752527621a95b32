package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/sshmon/internal/config"
)

// hostResult is the outcome of running a task against one host.
type hostResult[T any] struct {
	Host  string
	Value T
	Err   error
}

// fanOut runs task against every host with at most jobs hosts in flight.
// Results come back in host order whatever order the hosts finish in. A
// host's error or panic is recorded in its own result and never cancels
// the others.
//
// onProgress is called from the worker goroutines; it may be nil.
func fanOut[T any](
	ctx context.Context,
	hosts []config.Host,
	jobs int,
	onProgress func(ProgressEvent),
	task func(ctx context.Context, h config.Host) (T, error),
) []hostResult[T] {
	emit := func(ev ProgressEvent) {
		if onProgress != nil {
			onProgress(ev)
		}
	}
	if jobs < 1 {
		jobs = 1
	}

	results := make([]hostResult[T], len(hosts))
	for _, h := range hosts {
		emit(ProgressEvent{Host: h.Name, Status: ProgressPending})
	}

	var g errgroup.Group
	g.SetLimit(jobs)
	for i, h := range hosts {
		i, h := i, h
		g.Go(func() error {
			emit(ProgressEvent{Host: h.Name, Status: ProgressWorking})

			v, err := safeCall(ctx, h, task)
			results[i] = hostResult[T]{Host: h.Name, Value: v, Err: err}
			if err != nil {
				emit(ProgressEvent{Host: h.Name, Status: ProgressFailed, Message: err.Error()})
				return nil
			}
			emit(ProgressEvent{Host: h.Name, Status: ProgressComplete})
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// safeCall converts a panic in task into a *PanicError.
func safeCall[T any](ctx context.Context, h config.Host, task func(context.Context, config.Host) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return task(ctx, h)
}
