package static

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/docs" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Docs</title></head>` +
			`<body><p>hello world</p><a href="/docs/a">A</a></body></html>`))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "echochat-test"}, nil)

	outcome, err := f.Fetch(context.Background(), srv.URL+"/docs")
	require.NoError(t, err)
	require.NoError(t, outcome.Err)
	require.Equal(t, "Docs", outcome.Title)
	require.Equal(t, "hello world A", outcome.Text)
	require.Equal(t, []string{"/docs/a"}, outcome.Links)
	require.Contains(t, outcome.HTML, "<title>Docs</title>")
}

func TestFetcher_IgnoresRobotsTxt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /\n"))
		case "/docs":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><head><title>Docs</title></head><body><p>open</p></body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := New(Config{}, nil)

	// Scope enforcement lives in the crawl policy; a disallow-all
	// robots.txt must not block the fetch.
	outcome, err := f.Fetch(context.Background(), srv.URL+"/docs")
	require.NoError(t, err)
	require.NoError(t, outcome.Err)
	require.Equal(t, "Docs", outcome.Title)
}

func TestFetcher_HTTPErrorIsPerURLOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(Config{}, nil)

	outcome, err := f.Fetch(context.Background(), srv.URL+"/broken")
	require.NoError(t, err, "HTTP failures must not abort the crawl")
	require.Error(t, outcome.Err)
	require.Equal(t, srv.URL+"/broken", outcome.URL)
}

func TestFetcher_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(Config{}, nil)
	_, err := f.Fetch(ctx, "http://site.invalid/never")
	require.ErrorIs(t, err, context.Canceled)
}
