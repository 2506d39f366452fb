package discovery

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/search"
)

func feedXML(updated string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>newest submissions : hiking</title>
  <entry>
    <title>Best boots for wet trails?</title>
    <link href="https://www.reddit.com/r/hiking/comments/abc123/best_boots/"/>
    <updated>` + updated + `</updated>
    <content type="html">Looking for waterproof boots</content>
  </entry>
  <entry>
    <title>Subreddit rules</title>
    <link href="https://www.reddit.com/r/hiking/wiki/rules"/>
    <updated>` + updated + `</updated>
  </entry>
</feed>`
}

func TestCollectKeepsOnlyThreadEntries(t *testing.T) {
	now := time.Now().UTC().Format(time.RFC3339)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/r/hiking/new/.rss" {
			t.Errorf("unexpected feed path: %s", r.URL.Path)
		}
		fmt.Fprint(w, feedXML(now))
	}))
	defer srv.Close()

	fc := NewFeedCollector(srv.URL)
	candidates := fc.Collect([]string{"hiking"}, search.RangeWeek)

	if len(candidates) != 1 {
		t.Fatalf("expected 1 thread candidate, got %d", len(candidates))
	}
	if candidates[0].Subreddit != "hiking" {
		t.Errorf("expected subreddit hiking, got %q", candidates[0].Subreddit)
	}
	if candidates[0].Snippet == "" {
		t.Error("expected snippet from feed content")
	}
}

func TestCollectAppliesCutoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feedXML("2020-01-01T00:00:00+00:00"))
	}))
	defer srv.Close()

	fc := NewFeedCollector(srv.URL)
	if got := fc.Collect([]string{"hiking"}, search.RangeDay); len(got) != 0 {
		t.Errorf("stale entries should be cut off, got %d", len(got))
	}
}

func TestCollectSkipsFailingSubreddit(t *testing.T) {
	now := time.Now().UTC().Format(time.RFC3339)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/r/broken/new/.rss" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, feedXML(now))
	}))
	defer srv.Close()

	fc := NewFeedCollector(srv.URL)
	candidates := fc.Collect([]string{"broken", "hiking"}, "")

	if len(candidates) != 1 {
		t.Errorf("failing feed should be skipped, got %d candidates", len(candidates))
	}
}
