// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package job

import (
	"context"
	"errors"
	"time"
)

// ErrStopped is returned by Start when the job was stopped because a run failed.
var ErrStopped = errors.New("job stopped after failed run")

// Job represents a task that runs at a fixed interval and never overlaps with itself (singleton mode).
// A failing run stops the job, which is what the websocket keepalive relies on to tear down dead
// sessions.
type Job struct {
	interval time.Duration
	timeout  time.Duration
	task     func(context.Context) error
}

// New creates a new Job with the given interval and task. Every run is bounded by the interval.
func New(interval time.Duration, task func(context.Context) error) *Job {
	return &Job{
		interval: interval,
		timeout:  interval,
		task:     task,
	}
}

// Start executes the job until the context is cancelled or a run returns an error. If a tick fires
// while a previous run is still executing, that tick is skipped. Start returns nil on cancellation and
// an error wrapping ErrStopped and the run's error otherwise.
func (j *Job) Start(ctx context.Context) error {
	if j.task == nil || j.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// sem is a 1-slot semaphore that guards "is a run in progress?"
	sem := make(chan struct{}, 1)
	failed := make(chan error, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-failed:
			return errors.Join(ErrStopped, err)
		case <-ticker.C:
			select {
			case sem <- struct{}{}:
				go func() {
					defer func() { <-sem }()
					runCtx, cancel := context.WithTimeout(ctx, j.timeout)
					defer cancel()
					if err := j.task(runCtx); err != nil {
						select {
						case failed <- err:
						default:
						}
					}
				}()
			default:
			}
		}
	}
}
