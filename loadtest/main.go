// Command loadtest drives many virtual users through one shared client
// session and periodically invalidates the access token so that bursts of
// concurrent 401s exercise the shared refresh.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"weddingdesk/client"
	"weddingdesk/client/session"
	"weddingdesk/internal/config"
	"weddingdesk/internal/metrics"
	"weddingdesk/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	configFile  = flag.String("config", "", "Config file (defaults and WEDDESK_* env apply)")
	identifier  = flag.String("user", "admin", "Login identifier")
	secret      = flag.String("password", "", "Login password")
	totalVUs    = flag.Int("c", 200, "Virtual users sharing one session")
	duration    = flag.Duration("d", 30*time.Second, "Test duration")
	rampUp      = flag.Duration("ramp", 5*time.Second, "Ramp up duration")
	expireEvery = flag.Duration("expire", 5*time.Second, "Invalidate the access token this often (0 disables)")
	metricsAddr = flag.String("metrics", ":9091", "Prometheus listen address (empty disables)")
)

type stats struct {
	requests, errors, refreshes, retries, waiters, ended atomic.Int64
}

// statsObserver counts locally and forwards to Prometheus.
type statsObserver struct {
	s    *stats
	next client.Observer
}

func (o statsObserver) RefreshStarted() {
	o.s.refreshes.Add(1)
	o.next.RefreshStarted()
}

func (o statsObserver) RefreshFinished(ok bool, elapsed time.Duration) {
	o.next.RefreshFinished(ok, elapsed)
}

func (o statsObserver) RefreshWaiter() {
	o.s.waiters.Add(1)
	o.next.RefreshWaiter()
}

func (o statsObserver) RequestRetried() {
	o.s.retries.Add(1)
	o.next.RequestRetried()
}

func (o statsObserver) SessionEnded() {
	o.s.ended.Add(1)
	o.next.SessionEnded()
}

func main() {
	flag.Parse()
	logger.InitLogger("dev")
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Error("load test failed", zap.Error(err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadFrom(*configFile)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	store, err := session.Open(ctx, backend, session.WithSafetyMargin(cfg.Client.SafetyMargin))
	if err != nil {
		return err
	}

	st := &stats{}
	c, err := client.New(store, client.Options{
		BaseURL:        cfg.Client.BaseURL,
		Timeout:        cfg.Client.Timeout,
		RefreshTimeout: cfg.Client.RefreshTimeout,
		Observer:       statsObserver{s: st, next: metrics.NewClientObserver(nil)},
		UserAgent:      "weddingdesk-loadtest",
		HTTPClient: &http.Client{Transport: &http.Transport{
			MaxIdleConns:        *totalVUs,
			MaxIdleConnsPerHost: *totalVUs,
			IdleConnTimeout:     90 * time.Second,
		}},
	})
	if err != nil {
		return err
	}

	if !store.Snapshot().Active() {
		if _, err := c.Login(ctx, *identifier, *secret); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}

	if *metricsAddr != "" {
		go func() {
			srv := &http.Server{Addr: *metricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics listener failed", zap.Error(err))
			}
		}()
	}

	fmt.Printf("Starting load test: %d VUs for %v against %s\n", *totalVUs, *duration, cfg.Client.BaseURL)

	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	go report(ctx, st)
	if *expireEvery > 0 {
		go invalidate(ctx, store, *expireEvery)
	}

	g, gctx := errgroup.WithContext(ctx)
	interval := *rampUp / time.Duration(max(*totalVUs, 1))
	for i := 0; i < *totalVUs; i++ {
		g.Go(func() error {
			return virtualUser(gctx, c, st)
		})
		select {
		case <-gctx.Done():
		case <-time.After(interval):
		}
	}
	err = g.Wait()

	fmt.Printf("Done. requests=%d errors=%d refreshes=%d waiters=%d retries=%d sessions_ended=%d\n",
		st.requests.Load(), st.errors.Load(), st.refreshes.Load(), st.waiters.Load(), st.retries.Load(), st.ended.Load())
	if errors.Is(err, client.ErrSessionExpired) {
		return err
	}
	return nil
}

// virtualUser stops the whole run once the session is gone.
func virtualUser(ctx context.Context, c *client.Client, st *stats) error {
	for ctx.Err() == nil {
		_, err := c.Profile(ctx)
		st.requests.Add(1)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			st.errors.Add(1)
			if errors.Is(err, client.ErrSessionExpired) {
				return err
			}
		}
	}
	return nil
}

func invalidate(ctx context.Context, store *session.Store, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Save(ctx, "invalidated-by-loadtest", store.RefreshToken()); err != nil {
				logger.Warn("invalidate access token", zap.Error(err))
			}
		}
	}
}

func report(ctx context.Context, st *stats) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	var lastReq, lastRefresh int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			req, ref := st.requests.Load(), st.refreshes.Load()
			fmt.Printf("[%s] req/s: %d | errors: %d | refreshes/s: %d | retries: %d\n",
				time.Now().Format("15:04:05"), req-lastReq, st.errors.Load(), ref-lastRefresh, st.retries.Load())
			lastReq, lastRefresh = req, ref
		}
	}
}

func openBackend(cfg *config.Config) (session.Backend, func(), error) {
	nop := func() {}
	switch cfg.Client.SessionBackend {
	case "memory":
		return session.NewMemoryBackend(), nop, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return session.NewRedisBackend(rdb, cfg.Client.SessionKeyPrefix, 0), func() { _ = rdb.Close() }, nil
	default:
		path := cfg.Client.SessionFile
		if path == "" {
			var err error
			if path, err = session.DefaultSessionFile(); err != nil {
				return nil, nop, err
			}
		}
		return session.NewFileBackend(path), nop, nil
	}
}
