package crawler

import (
	"context"
	"time"
)

// pauseController abstracts how the crawl loop waits between fetches.
type pauseController interface {
	Pause(ctx context.Context, delay time.Duration)
}

// timerPauseController sleeps for the politeness delay, waking early on
// context cancellation.
type timerPauseController struct{}

func (p *timerPauseController) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
