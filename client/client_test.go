package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"weddingdesk/client/session"
	v1 "weddingdesk/pkg/api/v1"
	"weddingdesk/pkg/constraints"
	"weddingdesk/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func init() {
	logger.InitLogger("test")
}

func jwtExpiringIn(t *testing.T, d time.Duration) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(d)),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return tok
}

// authServer stubs the Auth Endpoint plus one protected resource.
type authServer struct {
	t *testing.T

	// accepted is the only bearer token /costumes accepts.
	accepted string

	refreshStatus int
	refreshPair   v1.TokenPair
	// refreshAfter delays the refresh response until this many 401s have
	// been served, so that every request observes the expired token.
	refreshAfter int32

	refreshCalls  atomic.Int32
	refreshTokens chan string
	unauthorized  atomic.Int32
	logoutCalls   atomic.Int32
	logoutStatus  int

	mu         sync.Mutex
	authSeen   []string
	resHandler http.HandlerFunc
}

func newAuthServer(t *testing.T) *authServer {
	return &authServer{
		t:             t,
		refreshStatus: http.StatusOK,
		logoutStatus:  http.StatusOK,
		refreshTokens: make(chan string, 64),
	}
}

func (s *authServer) start() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		s.refreshCalls.Add(1)
		var body v1.RefreshRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.refreshTokens <- body.RefreshToken

		deadline := time.Now().Add(2 * time.Second)
		for s.unauthorized.Load() < s.refreshAfter && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}

		if s.refreshStatus != http.StatusOK {
			writeJSON(w, s.refreshStatus, v1.ErrorBody{Message: "refresh token expired", Error: constraints.CodeInvalidRefreshToken})
			return
		}
		writeJSON(w, http.StatusOK, s.refreshPair)
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		s.logoutCalls.Add(1)
		w.WriteHeader(s.logoutStatus)
	})
	mux.HandleFunc("/costumes", func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		s.mu.Lock()
		s.authSeen = append(s.authSeen, auth)
		s.mu.Unlock()

		if auth != "Bearer "+s.accepted {
			s.unauthorized.Add(1)
			writeJSON(w, http.StatusUnauthorized, v1.ErrorBody{Message: "token expired", Error: constraints.CodeUnauthorized})
			return
		}
		if s.resHandler != nil {
			s.resHandler(w, r)
			return
		}
		writeJSON(w, http.StatusOK, v1.Page[v1.Costume]{Items: []v1.Costume{{ID: "c-1", Name: "Ao dai"}}, Total: 1})
	})

	srv := httptest.NewServer(mux)
	s.t.Cleanup(srv.Close)
	return srv
}

func (s *authServer) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.authSeen...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, baseURL string, access, refresh string, opts ...func(*Options)) *Client {
	t.Helper()
	store, err := session.Open(context.Background(), session.NewMemoryBackend())
	require.NoError(t, err)
	if access != "" || refresh != "" {
		require.NoError(t, store.Save(context.Background(), access, refresh))
	}
	o := Options{BaseURL: baseURL, Timeout: 5 * time.Second}
	for _, fn := range opts {
		fn(&o)
	}
	c, err := New(store, o)
	require.NoError(t, err)
	return c
}

func costumesReq() *Request {
	return &Request{Method: http.MethodGet, Path: "/costumes"}
}

func TestNew_Validation(t *testing.T) {
	store, _ := session.Open(context.Background(), nil)
	_, err := New(nil, Options{BaseURL: "http://x"})
	assert.Error(t, err)
	_, err = New(store, Options{BaseURL: "not a url"})
	assert.Error(t, err)
	_, err = New(store, Options{BaseURL: "http://localhost:8080/api/"})
	assert.NoError(t, err)
}

func TestDo_AttachesLikelyValidToken(t *testing.T) {
	as := newAuthServer(t)
	as.accepted = jwtExpiringIn(t, time.Hour)
	srv := as.start()

	c := newTestClient(t, srv.URL, as.accepted, "R1")
	resp, err := c.Do(context.Background(), costumesReq())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Bearer " + as.accepted}, as.seen())
	assert.Zero(t, as.refreshCalls.Load())
}

func TestDo_NearExpiryTokenIsSentWithoutCredentials(t *testing.T) {
	as := newAuthServer(t)
	as.refreshPair = v1.TokenPair{AccessToken: jwtExpiringIn(t, time.Hour), RefreshToken: "R2"}
	as.accepted = as.refreshPair.AccessToken
	srv := as.start()

	// expires inside the default 30s margin
	c := newTestClient(t, srv.URL, jwtExpiringIn(t, 10*time.Second), "R1")
	_, err := c.Do(context.Background(), costumesReq())
	require.NoError(t, err)

	seen := as.seen()
	require.Len(t, seen, 2)
	assert.Empty(t, seen[0], "no proactive refresh: the first send carries no credentials")
	assert.Equal(t, "Bearer "+as.accepted, seen[1])
	assert.Equal(t, int32(1), as.refreshCalls.Load())
}

func TestDo_EndToEndTwoRequestsShareOneRefresh(t *testing.T) {
	as := newAuthServer(t)
	as.accepted = "T2"
	as.refreshPair = v1.TokenPair{AccessToken: "T2", RefreshToken: "R2"}
	as.refreshAfter = 2
	srv := as.start()

	c := newTestClient(t, srv.URL, jwtExpiringIn(t, -time.Minute), "R1")

	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, err := c.Do(context.Background(), costumesReq())
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), as.refreshCalls.Load())
	assert.Equal(t, "R1", <-as.refreshTokens)

	var retried int
	for _, h := range as.seen() {
		if h == "Bearer T2" {
			retried++
		}
	}
	assert.Equal(t, 2, retried)
	assert.Equal(t, "T2", c.Session().AccessToken())
	assert.Equal(t, "R2", c.Session().RefreshToken())
}

func TestDo_SingleFlightUnderLoad(t *testing.T) {
	const n = 25
	as := newAuthServer(t)
	as.refreshPair = v1.TokenPair{AccessToken: jwtExpiringIn(t, time.Hour), RefreshToken: "R2"}
	as.accepted = as.refreshPair.AccessToken
	as.refreshAfter = n
	srv := as.start()

	var observed countingObserver
	c := newTestClient(t, srv.URL, jwtExpiringIn(t, -time.Minute), "R1", func(o *Options) {
		o.Observer = &observed
	})

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := c.Do(context.Background(), costumesReq())
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), as.refreshCalls.Load())
	assert.Equal(t, int32(n), as.unauthorized.Load())
	assert.Equal(t, int32(n), observed.retried.Load())
	assert.Equal(t, int32(1), observed.started.Load())
}

func TestDo_NoSecondRetry(t *testing.T) {
	as := newAuthServer(t)
	as.accepted = "never-matches"
	as.refreshPair = v1.TokenPair{AccessToken: "T2", RefreshToken: "R2"}
	srv := as.start()

	c := newTestClient(t, srv.URL, jwtExpiringIn(t, -time.Minute), "R1")
	_, err := c.Do(context.Background(), costumesReq())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, int32(1), as.refreshCalls.Load())
	assert.Len(t, as.seen(), 2)
	assert.Equal(t, "T2", c.Session().AccessToken(), "a failed retry does not clear the renewed session")
}

func TestDo_RefreshRejectedClearsSession(t *testing.T) {
	as := newAuthServer(t)
	as.accepted = "T2"
	as.refreshStatus = http.StatusUnauthorized
	srv := as.start()

	var reasons []string
	c := newTestClient(t, srv.URL, jwtExpiringIn(t, -time.Minute), "R1", func(o *Options) {
		o.OnSessionEnded = func(reason string) { reasons = append(reasons, reason) }
	})
	require.NoError(t, c.Session().SetUser(context.Background(), &v1.User{ID: "u-1"}))

	_, err := c.Do(context.Background(), costumesReq())

	assert.ErrorIs(t, err, ErrSessionExpired)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, http.StatusUnauthorized, e.Status)
	assert.Equal(t, constraints.CodeInvalidRefreshToken, e.Code)

	assert.Empty(t, c.Session().AccessToken())
	assert.Empty(t, c.Session().RefreshToken())
	assert.Nil(t, c.Session().User())
	require.Len(t, reasons, 1)
	assert.Contains(t, reasons[0], "sign in again")
}

func TestDo_RefreshRejectedFailsEveryWaiter(t *testing.T) {
	const n = 8
	as := newAuthServer(t)
	as.accepted = "T2"
	as.refreshStatus = http.StatusUnauthorized
	as.refreshAfter = n
	srv := as.start()

	var observed countingObserver
	c := newTestClient(t, srv.URL, jwtExpiringIn(t, -time.Minute), "R1", func(o *Options) {
		o.Observer = &observed
	})

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Do(context.Background(), costumesReq())
		}()
	}
	wg.Wait()

	// A request whose 401 lands after the session was already cleared finds
	// no refresh token and fails without another refresh call.
	for _, err := range errs {
		k := KindOf(err)
		assert.True(t, k == KindSessionExpired || k == KindUnauthenticated, "unexpected kind %s", k)
	}
	assert.Equal(t, int32(1), as.refreshCalls.Load())
	assert.Equal(t, int32(1), observed.ended.Load())
	assert.Zero(t, observed.retried.Load())
	assert.False(t, c.Session().Snapshot().Active())
}

func TestDo_RefreshNetworkFailureClearsSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/costumes", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var reason string
	c := newTestClient(t, srv.URL, jwtExpiringIn(t, -time.Minute), "R1", func(o *Options) {
		o.OnSessionEnded = func(r string) { reason = r }
	})
	_, err := c.Do(context.Background(), costumesReq())

	require.Error(t, err)
	assert.Equal(t, KindSessionExpired, KindOf(err))
	assert.False(t, c.Session().Snapshot().Active())
	assert.Contains(t, reason, "Could not reach the server")
}

func TestDo_NoRefreshTokenIsUnauthenticated(t *testing.T) {
	as := newAuthServer(t)
	as.accepted = "T2"
	srv := as.start()

	c := newTestClient(t, srv.URL, "", "")
	_, err := c.Do(context.Background(), costumesReq())

	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Zero(t, as.refreshCalls.Load())
}

func TestDo_ForbiddenKeepsSession(t *testing.T) {
	token := jwtExpiringIn(t, time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, v1.ErrorBody{Message: "admins only", Error: constraints.CodeInsufficientRole})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, token, "R1")
	_, err := c.Do(context.Background(), costumesReq())

	assert.ErrorIs(t, err, ErrForbidden)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, http.StatusForbidden, e.Status)
	assert.Equal(t, "admins only", e.Message)
	assert.Equal(t, token, c.Session().AccessToken())
}

func TestDo_ValidationFailureCarriesFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, v1.ErrorBody{
			Message: "invalid costume",
			Error:   constraints.CodeValidation,
			Errors:  map[string]string{"rentalFee": "must be positive"},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, jwtExpiringIn(t, time.Hour), "R1")
	_, err := c.Costumes().Create(context.Background(), &v1.Costume{Name: "Vest"})

	assert.ErrorIs(t, err, ErrValidation)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "must be positive", e.Fields["rentalFee"])
}

func TestDo_ServerErrorPreservesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, jwtExpiringIn(t, time.Hour), "R1")
	_, err := c.Do(context.Background(), costumesReq())

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindServer, e.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, e.Status)
	assert.Equal(t, "database unavailable", e.Message)
}

func TestDo_TimeoutIsDistinctAndNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, jwtExpiringIn(t, time.Hour), "R1", func(o *Options) {
		o.Timeout = 50 * time.Millisecond
	})
	_, err := c.Do(context.Background(), costumesReq())

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, int32(1), hits.Load())
	assert.True(t, c.Session().Snapshot().Active())
}

func TestDo_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url, jwtExpiringIn(t, time.Hour), "R1")
	_, err := c.Do(context.Background(), costumesReq())

	assert.ErrorIs(t, err, ErrNetwork)
	assert.True(t, c.Session().Snapshot().Active())
}

func TestDo_CanceledContextIsDistinct(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, jwtExpiringIn(t, time.Hour), "R1")
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := c.Do(ctx, costumesReq())

	assert.ErrorIs(t, err, ErrCanceled)
	assert.NotErrorIs(t, err, ErrNetwork)
	assert.Equal(t, int32(1), hits.Load())
	assert.True(t, c.Session().Snapshot().Active())
}

func TestDo_SessionEndedHookCanIssueRequests(t *testing.T) {
	as := newAuthServer(t)
	as.accepted = "T2"
	as.refreshStatus = http.StatusUnauthorized
	srv := as.start()

	var (
		c        *Client
		observed countingObserver
		hookErr  error
		hookTook time.Duration
	)
	c = newTestClient(t, srv.URL, jwtExpiringIn(t, -time.Minute), "R1", func(o *Options) {
		o.Timeout = 2 * time.Second
		o.Observer = &observed
		o.OnSessionEnded = func(string) {
			start := time.Now()
			_, hookErr = c.Do(context.Background(), costumesReq())
			hookTook = time.Since(start)
		}
	})

	start := time.Now()
	_, err := c.Do(context.Background(), costumesReq())
	took := time.Since(start)

	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, KindUnauthenticated, KindOf(hookErr))
	assert.Less(t, hookTook, time.Second)
	assert.Less(t, took, time.Second)
	assert.Equal(t, int32(1), as.refreshCalls.Load())
	assert.Equal(t, int32(1), observed.ended.Load())
	assert.False(t, c.coord.InFlight())
}

func TestRecoverSession_ReusesTokenSavedBeforeAcquire(t *testing.T) {
	// Nothing listens here: any refresh attempt would fail the test.
	c := newTestClient(t, "http://127.0.0.1:1", "T2", "R2")

	token, err := c.recoverSession(context.Background(), "GET /costumes", "T1")

	require.NoError(t, err)
	assert.Equal(t, "T2", token)
	assert.False(t, c.coord.InFlight())
}

func TestRecoverSession_WaitsForRefreshInFlight(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", "T1", "R1")
	require.True(t, c.coord.TryAcquire())

	type result struct {
		token string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		token, err := c.recoverSession(context.Background(), "GET /costumes", "T1")
		done <- result{token, err}
	}()
	require.Eventually(t, func() bool { return c.coord.Waiting() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.Session().Save(context.Background(), "T2", "R2"))
	c.coord.Release(RefreshResult{AccessToken: "T2"})

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, "T2", r.token)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released")
	}
}

func TestDo_RetryResendsBody(t *testing.T) {
	as := newAuthServer(t)
	as.refreshPair = v1.TokenPair{AccessToken: jwtExpiringIn(t, time.Hour), RefreshToken: "R2"}
	as.accepted = as.refreshPair.AccessToken
	var (
		mu     sync.Mutex
		bodies []string
	)
	as.resHandler = func(w http.ResponseWriter, r *http.Request) {
		var c v1.Costume
		_ = json.NewDecoder(r.Body).Decode(&c)
		mu.Lock()
		bodies = append(bodies, c.Name)
		mu.Unlock()
		c.ID = "c-9"
		writeJSON(w, http.StatusCreated, c)
	}
	srv := as.start()

	c := newTestClient(t, srv.URL, jwtExpiringIn(t, -time.Minute), "R1")
	out, err := c.Costumes().Create(context.Background(), &v1.Costume{Name: "Groom suit"})
	require.NoError(t, err)
	assert.Equal(t, "c-9", out.ID)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Groom suit"}, bodies)
}

func TestDo_KeepsRefreshTokenWhenServerDoesNotRotate(t *testing.T) {
	as := newAuthServer(t)
	as.refreshPair = v1.TokenPair{AccessToken: jwtExpiringIn(t, time.Hour)}
	as.accepted = as.refreshPair.AccessToken
	srv := as.start()

	c := newTestClient(t, srv.URL, jwtExpiringIn(t, -time.Minute), "R1")
	_, err := c.Do(context.Background(), costumesReq())
	require.NoError(t, err)
	assert.Equal(t, "R1", c.Session().RefreshToken())
}

func TestDo_SetsRequestHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, jwtExpiringIn(t, time.Hour), "R1")
	require.NoError(t, c.PostJSON(context.Background(), "/categories", v1.Category{Name: "Vest"}, nil))

	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.NotEmpty(t, got.Get("X-Request-ID"))
	assert.True(t, strings.HasPrefix(got.Get("Authorization"), "Bearer "))
}

type countingObserver struct {
	started, finished, waiters, retried, ended atomic.Int32
}

func (o *countingObserver) RefreshStarted()                     { o.started.Add(1) }
func (o *countingObserver) RefreshFinished(bool, time.Duration) { o.finished.Add(1) }
func (o *countingObserver) RefreshWaiter()                      { o.waiters.Add(1) }
func (o *countingObserver) RequestRetried()                     { o.retried.Add(1) }
func (o *countingObserver) SessionEnded()                       { o.ended.Add(1) }
