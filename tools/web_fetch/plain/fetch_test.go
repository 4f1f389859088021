package plain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head><title>Window Functions in Practice</title></head>
<body>
<article>
<h1>Window Functions in Practice</h1>
<p>Window functions let you compute aggregates over a sliding frame of rows
without collapsing the result set. They are the workhorse of analytical SQL
and show up in almost every reporting query worth reading.</p>
<p>The OVER clause defines the frame. PARTITION BY splits rows into groups,
ORDER BY fixes their order inside each group, and the frame clause bounds
which neighbours participate in the aggregate.</p>
</article>
</body>
</html>`

func TestFetchExtractsArticle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	f := Fetch{Timeout: 5 * time.Second}
	res, err := f.Exec(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if res.Status != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Status)
	}
	if res.Title != "Window Functions in Practice" {
		t.Fatalf("unexpected title: %q", res.Title)
	}
	if !strings.Contains(res.Text, "OVER clause") {
		t.Fatalf("expected article text, got: %q", res.Text)
	}
	if res.HTMLHash == "" {
		t.Fatal("expected html hash")
	}
}

func TestFetchTruncatesToMaxChars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	f := Fetch{Timeout: 5 * time.Second, MaxChars: 40}
	res, err := f.Exec(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if len(res.Text) > 40 {
		t.Fatalf("expected text capped at 40 chars, got %d", len(res.Text))
	}
}

func TestFetchUnreachableHostReports599(t *testing.T) {
	f := Fetch{Timeout: 500 * time.Millisecond}
	res, err := f.Exec(context.Background(), "http://127.0.0.1:1/never")
	if err != nil {
		t.Fatalf("transport failures must not surface as errors: %v", err)
	}
	if res.Status != 599 {
		t.Fatalf("expected synthetic 599, got %d", res.Status)
	}
}

func TestFetchRejectsEmptyURL(t *testing.T) {
	f := Fetch{Timeout: time.Second}
	if _, err := f.Exec(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty url")
	}
}
