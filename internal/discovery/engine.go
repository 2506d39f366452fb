package discovery

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/database"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/progress"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/scoring"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/search"
)

// Searcher is the search-client boundary the engine depends on.
type Searcher interface {
	Search(ctx context.Context, keyword string, communities []string, timeRange string, limit int) []search.Candidate
}

// Result holds the counters of a finished discovery run.
type Result struct {
	KeywordsSearched int
	TotalFound       int
	Duplicates       int
	PostsScored      int
	PostsStored      int
}

// Engine orchestrates one search per (keyword, community scope), deduplicates
// candidates, scores new ones, and persists them incrementally. Already-stored
// posts survive a failed run; storage is idempotent per post.
type Engine struct {
	db          *database.DB
	searcher    Searcher
	scorer      scoring.Scorer
	feeds       *FeedCollector
	tracker     *progress.Tracker
	resultLimit int
}

// NewEngine creates a discovery engine. feeds and scorer may be nil; posts
// then stay pending for manual triage.
func NewEngine(db *database.DB, searcher Searcher, scorer scoring.Scorer, feeds *FeedCollector, tracker *progress.Tracker, resultLimit int) *Engine {
	if resultLimit <= 0 {
		resultLimit = 20
	}
	return &Engine{
		db:          db,
		searcher:    searcher,
		scorer:      scorer,
		feeds:       feeds,
		tracker:     tracker,
		resultLimit: resultLimit,
	}
}

// Run executes a discovery run for a project. It is single-flight: a second
// call while a run is active returns an error immediately.
func (e *Engine) Run(ctx context.Context, projectID int64, timeRange string) (*Result, error) {
	if _, err := e.tracker.Start(progress.KindDiscovery, projectID, progress.StatusSearching); err != nil {
		return nil, err
	}

	result, err := e.run(ctx, projectID, timeRange)
	if err != nil {
		log.Printf("Discovery run failed for project %d: %v", projectID, err)
		e.tracker.Fail(progress.KindDiscovery, projectID, err.Error())
		return nil, err
	}

	e.tracker.Complete(progress.KindDiscovery, projectID)
	log.Printf("Discovery complete: %d keywords, %d found, %d stored, %d duplicates",
		result.KeywordsSearched, result.TotalFound, result.PostsStored, result.Duplicates)
	return result, nil
}

func (e *Engine) run(ctx context.Context, projectID int64, timeRange string) (*Result, error) {
	project, err := e.db.GetProject(projectID)
	if err != nil {
		return nil, fmt.Errorf("loading project: %w", err)
	}
	if project == nil {
		return nil, fmt.Errorf("project %d not found", projectID)
	}
	if len(project.Keywords) == 0 {
		return nil, fmt.Errorf("project %d has no keywords configured", projectID)
	}

	settings, err := e.db.GetRedditSettings(projectID)
	if err != nil {
		return nil, fmt.Errorf("loading reddit settings: %w", err)
	}

	var communities, blocked []string
	feedDiscovery := false
	if settings != nil {
		communities = settings.Subreddits
		blocked = settings.BlockedSubreddits
		feedDiscovery = settings.FeedDiscovery
	}
	blockedSet := make(map[string]struct{}, len(blocked))
	for _, b := range blocked {
		blockedSet[b] = struct{}{}
	}

	result := &Result{}

	// Search stage: one logical search per keyword, deduplicated within the run.
	seen := make(map[string]struct{})
	var candidates []candidate
	for _, keyword := range project.Keywords {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		found := e.searcher.Search(ctx, keyword, communities, timeRange, e.resultLimit)
		result.TotalFound += len(found)

		for rank, c := range found {
			if _, dup := seen[c.URL]; dup {
				result.Duplicates++
				continue
			}
			if _, banned := blockedSet[c.Subreddit]; banned {
				continue
			}
			seen[c.URL] = struct{}{}
			candidates = append(candidates, candidate{Candidate: c, keyword: keyword, rank: rank + 1})
		}

		result.KeywordsSearched++
		e.tracker.Add(progress.KindDiscovery, projectID, "keywords_searched", 1)
		e.tracker.Set(progress.KindDiscovery, projectID, "total_posts_found", result.TotalFound)
	}

	if feedDiscovery && e.feeds != nil && len(communities) > 0 {
		for _, c := range e.feeds.Collect(communities, timeRange) {
			if _, dup := seen[c.URL]; dup {
				result.Duplicates++
				continue
			}
			seen[c.URL] = struct{}{}
			result.TotalFound++
			candidates = append(candidates, candidate{Candidate: c, keyword: "feed"})
		}
		e.tracker.Set(progress.KindDiscovery, projectID, "total_posts_found", result.TotalFound)
	}

	// Scoring + storing stage: insert-or-skip per candidate, then score new rows.
	e.tracker.SetStatus(progress.KindDiscovery, projectID, progress.StatusScoring)
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		post := &database.DiscoveredPost{
			ProjectID:    projectID,
			Subreddit:    c.Subreddit,
			Title:        c.Title,
			URL:          c.URL,
			Keyword:      c.keyword,
			FilterStatus: database.FilterPending,
			SerpRank:     c.rank,
		}
		if c.Snippet != "" {
			snippet := c.Snippet
			post.Snippet = &snippet
		}
		if id, ok := redditPostID(c.URL); ok {
			post.RedditPostID = &id
		}

		postID, err := e.db.InsertPost(post)
		if err != nil {
			return nil, fmt.Errorf("storing post %s: %w", c.URL, err)
		}
		if postID == 0 {
			// Already discovered for this project by an earlier run.
			result.Duplicates++
			continue
		}
		post.ID = postID
		result.PostsStored++
		e.tracker.Add(progress.KindDiscovery, projectID, "posts_stored", 1)

		if e.scorer == nil {
			continue
		}
		score, err := e.scorer.Score(ctx, post, project.Keywords)
		if err != nil {
			// The post stays pending; scoring can be redone by hand.
			log.Printf("Scoring failed for %s: %v", c.URL, err)
			continue
		}
		err = e.db.UpdatePostScoring(postID, score.Score, score.Intent, score.Categories,
			score.MatchedKeywords, score.Evaluation, score.FilterStatus)
		if err != nil {
			return nil, fmt.Errorf("recording score for %s: %w", c.URL, err)
		}
		result.PostsScored++
		e.tracker.Add(progress.KindDiscovery, projectID, "posts_scored", 1)
	}

	e.tracker.SetStatus(progress.KindDiscovery, projectID, progress.StatusStoring)
	return result, nil
}

type candidate struct {
	search.Candidate
	keyword string
	rank    int
}

// redditPostID extracts the native post id from a thread URL.
func redditPostID(link string) (string, bool) {
	const marker = "/comments/"
	idx := strings.Index(link, marker)
	if idx < 0 {
		return "", false
	}
	rest := link[idx+len(marker):]
	if end := strings.IndexAny(rest, "/?"); end >= 0 {
		rest = rest[:end]
	}
	return rest, rest != ""
}
