package client

import "time"

// Observer receives refresh-protocol events, typically for metrics.
type Observer interface {
	RefreshStarted()
	RefreshFinished(ok bool, elapsed time.Duration)
	RefreshWaiter()
	RequestRetried()
	SessionEnded()
}

type nopObserver struct{}

func (nopObserver) RefreshStarted()                    {}
func (nopObserver) RefreshFinished(bool, time.Duration) {}
func (nopObserver) RefreshWaiter()                     {}
func (nopObserver) RequestRetried()                    {}
func (nopObserver) SessionEnded()                      {}
