package session

import (
	"context"
	"time"
)

// StepFunc advances one match by a fixed timestep and may emit side effects.
type StepFunc func(step time.Duration)

// maxCatchUpSteps caps how many fixed steps a single wakeup may run. When the
// host stalls longer than this, the match slows down instead of spiralling.
const maxCatchUpSteps = 5

// Loop drives a fixed timestep simulation at the configured tick rate. Wall
// clock jitter is absorbed by an accumulator so the simulated timestep itself
// never varies.
type Loop struct {
	step     time.Duration
	stepFunc StepFunc
	done     chan struct{}
}

// NewLoop configures a loop that targets the provided ticks per second.
func NewLoop(targetHz int, step StepFunc) *Loop {
	if targetHz <= 0 {
		targetHz = 60
	}
	if step == nil {
		step = func(time.Duration) {}
	}
	return &Loop{
		step:     time.Second / time.Duration(targetHz),
		stepFunc: step,
	}
}

// Start begins ticking until the context is cancelled.
func (l *Loop) Start(ctx context.Context) {
	if l == nil || l.stepFunc == nil {
		return
	}

	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		ticker := time.NewTicker(l.step)
		defer ticker.Stop()
		last := time.Now()
		accumulator := time.Duration(0)
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				//1.- Accumulate elapsed time and run fixed steps while catching up.
				accumulator += now.Sub(last)
				last = now
				steps := 0
				for accumulator >= l.step && steps < maxCatchUpSteps {
					l.stepFunc(l.step)
					accumulator -= l.step
					steps++
				}
				if steps == maxCatchUpSteps {
					accumulator = 0
				}
			}
		}
	}()
}

// Wait blocks until the loop goroutine has exited.
func (l *Loop) Wait() {
	if l == nil || l.done == nil {
		return
	}
	<-l.done
}

// StepDuration exposes the configured timestep.
func (l *Loop) StepDuration() time.Duration {
	if l == nil {
		return 0
	}
	return l.step
}
