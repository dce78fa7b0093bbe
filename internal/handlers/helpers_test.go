package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/blogauth/internal/logger"
	"github.com/nkiryanov/blogauth/internal/metrics"
	"github.com/nkiryanov/blogauth/internal/repository/postgres"
	"github.com/nkiryanov/blogauth/internal/service/auth"
	"github.com/nkiryanov/blogauth/internal/service/auth/tokencodec"
	"github.com/nkiryanov/blogauth/internal/service/oauth"
	"github.com/nkiryanov/blogauth/internal/service/user"
)

const (
	testSecretKey = "6368616e676520746869732070617373776f726420746f206120736563726574"
	testAPIKey    = "internal-key"
)

// Production services over the test transaction
type testApp struct {
	url     string
	auth    *auth.AuthService
	users   *user.UserService
	codes   *oauth.Broker
	links   *oauth.Registry
	metrics *metrics.Metrics
	clock   *testClock
}

// Clock shared with the server goroutines
type testClock struct {
	nanos atomic.Int64
}

func (c *testClock) Now() time.Time {
	return time.Unix(0, c.nanos.Load())
}

func (c *testClock) Advance(d time.Duration) {
	c.nanos.Add(int64(d))
}

func startApp(t *testing.T, tx pgx.Tx, cfg RouterConfig) *testApp {
	t.Helper()
	l := logger.NewNoOpLogger()
	m := metrics.New()
	storage := postgres.NewStorage(tx)
	app := &testApp{metrics: m, clock: &testClock{}}
	app.clock.nanos.Store(time.Now().UnixNano())

	codec, err := tokencodec.New(tokencodec.Config{SecretKey: testSecretKey}, l)
	require.NoError(t, err)

	app.users = user.NewService(user.BcryptHasher{Cost: bcrypt.MinCost}, storage)
	app.auth, err = auth.NewService(auth.Config{RefreshTTL: 24 * time.Hour, Metrics: m}, codec, app.users, storage.Refresh())
	require.NoError(t, err)

	app.codes = oauth.NewBroker(oauth.BrokerConfig{Now: app.clock.Now, Metrics: m}, oauth.NewMemoryCodeStore(), l)
	app.links = oauth.NewRegistry(storage.Link(), m)
	oauthService := oauth.NewService(app.codes, app.links, app.users, app.auth, l, m)

	srv := httptest.NewServer(NewRouter(cfg, app.auth, oauthService, app.links, app.users, l, m))
	t.Cleanup(srv.Close)
	app.url = srv.URL

	return app
}

type testResponse struct {
	status  int
	body    string
	header  http.Header
	cookies []*http.Cookie
}

func doRequest(t *testing.T, method string, url string, body string, opts ...func(r *http.Request)) testResponse {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return testResponse{status: resp.StatusCode, body: string(b), header: resp.Header, cookies: resp.Cookies()}
}

func withBearer(access string) func(r *http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", access) }
}

func withCookie(c *http.Cookie) func(r *http.Request) {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value}) }
}

func withHeader(key string, value string) func(r *http.Request) {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

// Register user through API and return its access header and refresh cookie
func registerUser(t *testing.T, app *testApp, username string) (string, *http.Cookie) {
	t.Helper()
	body := `{"username": "` + username + `", "email": "` + username + `@x.com", "password": "Pw1!aaaa"}`

	resp := doRequest(t, http.MethodPost, app.url+"/api/v1/auth/register", body)

	require.Equalf(t, http.StatusOK, resp.status, "register failed: %s", resp.body)
	require.Len(t, resp.cookies, 1)
	return resp.header.Get("Authorization"), resp.cookies[0]
}
