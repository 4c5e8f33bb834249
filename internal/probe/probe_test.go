package probe

import (
	"compress/gzip"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdh8316/watson/internal/catalog"
	"github.com/tdh8316/watson/internal/detect"
	"github.com/tdh8316/watson/internal/httpx"
)

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func newSite(name, url string, rule catalog.Rule) catalog.Site {
	return catalog.Site{Name: name, URL: url, Method: http.MethodGet, Detection: rule}
}

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/users/bob", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<h1>bob</h1>")
	})
	mux.HandleFunc("/users/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "User not found", http.StatusNotFound)
	})
	mux.HandleFunc("/soft/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/soft/bob" {
			_, _ = io.WriteString(w, "welcome to bob's page")
			return
		}
		_, _ = io.WriteString(w, "Sorry, User not found")
	})
	mux.HandleFunc("/redir/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/redir/bob" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		_, _ = io.WriteString(w, "profile")
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "login")
	})
	mux.HandleFunc("/gzip/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = io.WriteString(gz, `{"profile": "`+r.URL.Path+`"}`)
		_ = gz.Close()
	})
	mux.HandleFunc("/br/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		bw := brotli.NewWriter(w)
		_, _ = io.WriteString(bw, `{"profile": "`+r.URL.Path+`"}`)
		_ = bw.Close()
	})
	mux.HandleFunc("/latin1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte("caf\xe9 owner"))
	})
	mux.HandleFunc("/slow/", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	mux.HandleFunc("/backtrack/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("a", 40)+"!")
	})
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Method == http.MethodPost &&
			r.Header.Get("X-Api-Key") == "k" &&
			r.Header.Get("Content-Type") == "application/json" &&
			string(body) == `{"user":"bob"}` {
			_, _ = io.WriteString(w, `{"exists": true}`)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_StatusCode(t *testing.T) {
	srv := testServer(t)
	ex := NewExecutor(srv.Client(), Options{})
	site := newSite("Users", srv.URL+"/users/{}", catalog.StatusRule(200))

	found := ex.Run(context.Background(), site, "bob", time.Second)
	assert.Equal(t, detect.Found, found.Status)
	assert.Equal(t, 200, found.HTTPStatus)
	assert.Equal(t, srv.URL+"/users/bob", found.URL)
	assert.Equal(t, FailureNone, found.Failure)
	assert.Positive(t, found.Elapsed)

	missing := ex.Run(context.Background(), site, "alice", time.Second)
	assert.Equal(t, detect.NotFound, missing.Status)
	assert.Equal(t, 404, missing.HTTPStatus)
	assert.Empty(t, missing.Detail)
}

func TestRun_BodyAbsent(t *testing.T) {
	srv := testServer(t)
	ex := NewExecutor(srv.Client(), Options{})
	site := newSite("Soft", srv.URL+"/soft/{}", catalog.AbsentRule("User not found"))

	assert.Equal(t, detect.Found, ex.Run(context.Background(), site, "bob", time.Second).Status)
	assert.Equal(t, detect.NotFound, ex.Run(context.Background(), site, "alice", time.Second).Status)
}

func TestRun_RedirectURL(t *testing.T) {
	srv := testServer(t)
	ex := NewExecutor(srv.Client(), Options{})
	site := newSite("Redir", srv.URL+"/redir/{}", catalog.RedirectRule(srv.URL+"/redir/{}"))

	assert.Equal(t, detect.Found, ex.Run(context.Background(), site, "bob", time.Second).Status)
	assert.Equal(t, detect.NotFound, ex.Run(context.Background(), site, "alice", time.Second).Status)
}

func TestRun_DecodesBodies(t *testing.T) {
	srv := testServer(t)
	ex := NewExecutor(srv.Client(), Options{})

	for _, enc := range []string{"gzip", "br"} {
		site := newSite(enc, srv.URL+"/"+enc+"/{}", catalog.ContainsRule(`"profile": "/`+enc+`/bob"`))
		assert.Equal(t, detect.Found, ex.Run(context.Background(), site, "bob", time.Second).Status, enc)
	}

	latin := newSite("latin1", srv.URL+"/latin1/{}", catalog.ContainsRule("café"))
	assert.Equal(t, detect.Found, ex.Run(context.Background(), latin, "bob", time.Second).Status)
}

func TestRun_TruncatedBodyIsNotAnError(t *testing.T) {
	srv := testServer(t)
	ex := NewExecutor(srv.Client(), Options{MaxBodyBytes: 8})
	// "Sorry, User not found" is cut before the needle.
	site := newSite("Soft", srv.URL+"/soft/{}", catalog.AbsentRule("User not found"))

	res := ex.Run(context.Background(), site, "alice", time.Second)
	assert.Equal(t, detect.Found, res.Status)
	assert.Equal(t, FailureNone, res.Failure)
}

func TestRun_PostPayloadAndHeaders(t *testing.T) {
	srv := testServer(t)
	ex := NewExecutor(srv.Client(), Options{})
	site := catalog.Site{
		Name:      "Api",
		URL:       srv.URL + "/u/{}",
		URLProbe:  srv.URL + "/api",
		Method:    http.MethodPost,
		Headers:   map[string]string{"X-Api-Key": "k"},
		Payload:   `{"user":"{}"}`,
		Detection: catalog.StatusRule(200),
	}

	res := ex.Run(context.Background(), site, "bob", time.Second)
	assert.Equal(t, detect.Found, res.Status)
	assert.Equal(t, srv.URL+"/u/bob", res.URL)
}

func TestRun_UsernamePatternSkipsRequest(t *testing.T) {
	var calls atomic.Int32
	ex := NewExecutor(doerFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, io.EOF
	}), Options{})

	entries, err := catalog.Parse([]byte(`{"Strict": {"errorType": "status_code", "url": "https://strict.example/{}", "regexCheck": "^[a-z]{3,}$"}}`))
	require.NoError(t, err)
	sites, _ := catalog.Validate(entries)
	require.Len(t, sites, 1)

	res := ex.Run(context.Background(), sites[0], "B0", time.Second)
	assert.Equal(t, detect.NotFound, res.Status)
	assert.True(t, res.Rejected)
	assert.Zero(t, calls.Load())
}

func TestRun_Timeout(t *testing.T) {
	srv := testServer(t)
	ex := NewExecutor(srv.Client(), Options{})
	site := newSite("Slow", srv.URL+"/slow/{}", catalog.StatusRule(200))

	start := time.Now()
	res := ex.Run(context.Background(), site, "bob", 50*time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, detect.Unknown, res.Status)
	assert.Equal(t, FailureTimeout, res.Failure)
	assert.NotEmpty(t, res.Detail)
}

func TestRun_Cancelled(t *testing.T) {
	srv := testServer(t)
	ex := NewExecutor(srv.Client(), Options{})
	site := newSite("Slow", srv.URL+"/slow/{}", catalog.StatusRule(200))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := ex.Run(ctx, site, "bob", time.Second)
	assert.Equal(t, FailureCancelled, res.Failure)
	assert.Equal(t, "cancelled", res.Detail)

	// Aborted in flight: same detail as a result that never started.
	ctx, cancel = context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	res = ex.Run(ctx, site, "bob", 5*time.Second)
	assert.Equal(t, detect.Unknown, res.Status)
	assert.Equal(t, FailureCancelled, res.Failure)
	assert.Equal(t, Cancelled(site, "bob").Detail, res.Detail)
	assert.Equal(t, "cancelled", res.Detail)
}

func TestRun_RegexBoundedByDeadline(t *testing.T) {
	srv := testServer(t)
	ex := NewExecutor(srv.Client(), Options{})
	rule, err := catalog.RegexRule("^(a+)+$")
	require.NoError(t, err)
	site := newSite("Backtrack", srv.URL+"/backtrack/{}", rule)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(300*time.Millisecond, cancel)

	start := time.Now()
	res := ex.Run(ctx, site, "bob", 200*time.Millisecond)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
	assert.Equal(t, detect.Unknown, res.Status)
	assert.Equal(t, FailureTimeout, res.Failure)
	assert.Equal(t, 200, res.HTTPStatus)

	// Cancelled while matching.
	ctx, cancel = context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	start = time.Now()
	res = ex.Run(ctx, site, "bob", 5*time.Second)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
	assert.Equal(t, FailureCancelled, res.Failure)
	assert.Equal(t, "cancelled", res.Detail)
}

func TestNewExecutor_DefaultLoggerIsSilent(t *testing.T) {
	ex := NewExecutor(doerFunc(nil), Options{})
	l, ok := ex.log.(*logrus.Logger)
	require.True(t, ok)
	assert.Equal(t, io.Discard, l.Out)
	assert.Equal(t, logrus.PanicLevel, l.GetLevel())
}

func TestRun_ClassifiesTransportErrors(t *testing.T) {
	tests := []struct {
		err  error
		want Failure
	}{
		{&httpx.UnavailableError{Addr: "127.0.0.1:9050", Err: io.EOF}, FailureUnavailable},
		{&net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}, FailureDNS},
		{&net.OpError{Op: "dial", Net: "tcp", Err: io.ErrUnexpectedEOF}, FailureConnection},
		{context.DeadlineExceeded, FailureTimeout},
	}
	site := newSite("Any", "https://any.example/{}", catalog.StatusRule(200))
	for _, tt := range tests {
		ex := NewExecutor(doerFunc(func(*http.Request) (*http.Response, error) {
			return nil, tt.err
		}), Options{})
		res := ex.Run(context.Background(), site, "bob", time.Second)
		assert.Equal(t, detect.Unknown, res.Status, tt.err.Error())
		assert.Equal(t, tt.want, res.Failure, tt.err.Error())
	}
}

func TestRun_BadRequestURL(t *testing.T) {
	ex := NewExecutor(doerFunc(func(*http.Request) (*http.Response, error) {
		t.Fatal("request must not be sent")
		return nil, nil
	}), Options{})
	site := newSite("Broken", "http://bad host/{}", catalog.StatusRule(200))

	res := ex.Run(context.Background(), site, "bob", time.Second)
	assert.Equal(t, FailureRequest, res.Failure)
}

func TestCancelled(t *testing.T) {
	site := newSite("Any", "https://any.example/{}", catalog.StatusRule(200))
	res := Cancelled(site, "bob")
	assert.Equal(t, detect.Unknown, res.Status)
	assert.Equal(t, FailureCancelled, res.Failure)
	assert.Equal(t, "https://any.example/bob", res.URL)
}
