package discovery

import (
	"log"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/search"
)

const maxPerFeed = 20

// FeedCollector pulls fresh threads from subreddit RSS feeds. It complements
// keyword search: new threads show up in the feed before they rank anywhere.
type FeedCollector struct {
	parser  *gofeed.Parser
	baseURL string
}

// NewFeedCollector creates a feed collector. baseURL overrides the Reddit
// host in tests; empty means reddit.com.
func NewFeedCollector(baseURL string) *FeedCollector {
	if baseURL == "" {
		baseURL = "https://www.reddit.com"
	}
	return &FeedCollector{parser: gofeed.NewParser(), baseURL: baseURL}
}

// Collect parses the /new feed of each subreddit and returns thread
// candidates within the time range. Feed failures degrade to skipping that
// subreddit.
func (fc *FeedCollector) Collect(subreddits []string, timeRange string) []search.Candidate {
	cutoff := cutoffFor(timeRange)
	var all []search.Candidate

	for _, sub := range subreddits {
		feedURL := fc.baseURL + "/r/" + sub + "/new/.rss"
		feed, err := fc.parser.ParseURL(feedURL)
		if err != nil {
			log.Printf("Failed to parse feed for r/%s: %v", sub, err)
			continue
		}

		count := 0
		for _, item := range feed.Items {
			if count >= maxPerFeed {
				break
			}
			c := feedCandidate(item, cutoff)
			if c == nil {
				continue
			}
			all = append(all, *c)
			count++
		}
		log.Printf("Feed r/%s contributed %d thread candidates", sub, count)
	}

	return all
}

func feedCandidate(item *gofeed.Item, cutoff *time.Time) *search.Candidate {
	if item.Link == "" || item.Title == "" {
		return nil
	}
	subreddit, ok := search.ExtractSubreddit(item.Link)
	if !ok {
		return nil
	}

	published := time.Now()
	if item.PublishedParsed != nil {
		published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		published = *item.UpdatedParsed
	}
	if cutoff != nil && published.Before(*cutoff) {
		return nil
	}

	snippet := item.Description
	if snippet == "" {
		snippet = item.Content
	}
	if len(snippet) > 500 {
		snippet = snippet[:500]
	}

	return &search.Candidate{
		URL:          item.Link,
		Title:        item.Title,
		Snippet:      snippet,
		Subreddit:    subreddit,
		DiscoveredAt: published,
	}
}

// cutoffFor maps a provider time-range token to an absolute cutoff.
func cutoffFor(timeRange string) *time.Time {
	var days int
	switch timeRange {
	case search.RangeDay:
		days = 1
	case search.RangeWeek:
		days = 7
	case search.RangeMonth:
		days = 30
	default:
		return nil
	}
	t := time.Now().AddDate(0, 0, -days)
	return &t
}
