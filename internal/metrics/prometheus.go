package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "weddingdesk"

// ClientObserver implements client.Observer on Prometheus collectors.
type ClientObserver struct {
	started       prometheus.Counter
	refreshes     *prometheus.CounterVec
	refreshTime   prometheus.Histogram
	waiters       prometheus.Counter
	retries       prometheus.Counter
	sessionsEnded prometheus.Counter
}

// NewClientObserver registers the client collectors on reg, or on the
// default registry when reg is nil.
func NewClientObserver(reg prometheus.Registerer) *ClientObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &ClientObserver{
		started: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "refresh_started_total",
			Help:      "Token refresh calls sent.",
		}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "refresh_total",
			Help:      "Completed token refresh calls by outcome.",
		}, []string{"outcome"}),
		refreshTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "refresh_duration_seconds",
			Help:      "Latency of token refresh calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		waiters: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "refresh_waiters_total",
			Help:      "Requests that queued behind an in-flight refresh.",
		}),
		retries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "retries_total",
			Help:      "Requests retried after a token refresh.",
		}),
		sessionsEnded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "session_ended_total",
			Help:      "Sessions cleared after a failed refresh.",
		}),
	}
}

func (o *ClientObserver) RefreshStarted() {
	o.started.Inc()
}

func (o *ClientObserver) RefreshFinished(ok bool, elapsed time.Duration) {
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	o.refreshes.WithLabelValues(outcome).Inc()
	o.refreshTime.Observe(elapsed.Seconds())
}

func (o *ClientObserver) RefreshWaiter()  { o.waiters.Inc() }
func (o *ClientObserver) RequestRetried() { o.retries.Inc() }
func (o *ClientObserver) SessionEnded()   { o.sessionsEnded.Inc() }

type httpObserver struct {
	summary *prometheus.SummaryVec
}

// NewHTTPObserver registers the server request summary on reg, or on the
// default registry when reg is nil.
func NewHTTPObserver(reg prometheus.Registerer) HTTPObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &httpObserver{
		summary: promauto.With(reg).NewSummaryVec(prometheus.SummaryOpts{
			Namespace: namespace,
			Name:      "http_duration_seconds",
			Help:      "Duration of HTTP requests.",
		}, []string{"path", "method", "status"}),
	}
}

func (h *httpObserver) ObserveRequest(path, method string, status int, elapsed time.Duration) {
	h.summary.WithLabelValues(path, method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves a single registry, used when collectors are not on the
// default one.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
