package fetch

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/time/rate"

	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/database"
)

// Result holds the results of a thread-content fetch run.
type Result struct {
	Fetched int
	Failed  int
}

// ThreadFetcher pulls the full text of discovered threads so the comment
// generator sees more than the search snippet.
type ThreadFetcher struct {
	db      *database.DB
	client  *http.Client
	limiter *rate.Limiter
}

// NewThreadFetcher creates a new thread fetcher.
func NewThreadFetcher(db *database.DB, timeout time.Duration) *ThreadFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &ThreadFetcher{
		db: db,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		// Polite pacing against reddit.com.
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
}

// FetchMissingContent fetches thread text for posts that only have a snippet.
// A domain that errors once is skipped for the rest of the run.
func (f *ThreadFetcher) FetchMissingContent(ctx context.Context, projectID int64) *Result {
	posts, err := f.db.GetPostsNeedingContent(projectID)
	if err != nil {
		log.Printf("Error getting posts needing content: %v", err)
		return &Result{}
	}

	if len(posts) == 0 {
		log.Println("No posts need content fetching")
		return &Result{}
	}

	result := &Result{}
	failedDomains := make(map[string]struct{})

	for _, post := range posts {
		if ctx.Err() != nil {
			break
		}

		u, _ := url.Parse(post.URL)
		domain := ""
		if u != nil {
			domain = strings.ToLower(u.Host)
		}

		if _, failed := failedDomains[domain]; failed {
			f.db.MarkPostContentAttempted(post.ID)
			result.Failed++
			continue
		}

		if err := f.limiter.Wait(ctx); err != nil {
			break
		}

		content, httpErr := f.fetchThreadContent(ctx, post.URL)
		if httpErr != nil {
			f.db.MarkPostContentAttempted(post.ID)
			result.Failed++
			if domain != "" {
				failedDomains[domain] = struct{}{}
			}
			log.Printf("HTTP error for %s, skipping remaining from %s", post.URL, domain)
			continue
		}

		if content != "" {
			f.db.UpdatePostContent(post.ID, &content)
			result.Fetched++
			log.Printf("Fetched thread content for: %s", post.Title)
		} else {
			f.db.MarkPostContentAttempted(post.ID)
			result.Failed++
			log.Printf("No extractable content from: %s", post.URL)
		}
	}

	log.Printf("Thread content fetch complete: %d fetched, %d failed", result.Fetched, result.Failed)
	return result
}

func (f *ThreadFetcher) fetchThreadContent(ctx context.Context, threadURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", threadURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "redditengage/1.0 (thread reader)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil // connection error, not HTTP error
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil
	}

	parsedURL, _ := url.Parse(threadURL)
	article, err := readability.FromReader(strings.NewReader(string(bodyBytes)), parsedURL)
	if err != nil {
		return "", nil
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) > 8000 {
		text = text[:8000]
	}
	if len(text) > 100 {
		return text, nil
	}
	return "", nil
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}
