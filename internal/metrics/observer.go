package metrics

import "time"

// HTTPObserver records one served request.
type HTTPObserver interface {
	ObserveRequest(path, method string, status int, elapsed time.Duration)
}
