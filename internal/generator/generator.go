package generator

import (
	"context"
	"fmt"
	"log"

	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/database"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/llm"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/progress"
)

// Fixed sampling settings: moderate temperature, bounded reply length.
const (
	generationTemperature = 0.7
	generationMaxTokens   = 400
)

// Result holds the counters of a batch generation run.
type Result struct {
	Total     int
	Generated int
	Failed    int
}

// Generator builds candidate replies for discovered threads. Each generation
// creates a new draft row; existing comments are never overwritten, so the
// full history of attempts is preserved.
type Generator struct {
	db       *database.DB
	provider llm.Provider
	selector Selector
	tracker  *progress.Tracker
}

// New creates a comment generator. A nil selector defaults to uniform random.
func New(db *database.DB, provider llm.Provider, selector Selector, tracker *progress.Tracker) *Generator {
	if selector == nil {
		selector = RandomSelector{}
	}
	return &Generator{db: db, provider: provider, selector: selector, tracker: tracker}
}

// GenerateForPost generates one draft comment for a post. It fails fast when
// the project's brand configuration or Reddit settings are missing, and when
// the model call fails structurally, with no silent fallback text.
func (g *Generator) GenerateForPost(ctx context.Context, projectID, postID int64, isPromotional bool) (*database.Comment, error) {
	if g.provider == nil {
		return nil, fmt.Errorf("no LLM provider available for generation")
	}

	brand, err := g.db.GetBrandConfig(projectID)
	if err != nil {
		return nil, fmt.Errorf("loading brand config: %w", err)
	}
	if brand == nil {
		return nil, fmt.Errorf("project %d has no brand configuration", projectID)
	}

	settings, err := g.db.GetRedditSettings(projectID)
	if err != nil {
		return nil, fmt.Errorf("loading reddit settings: %w", err)
	}
	if settings == nil {
		return nil, fmt.Errorf("project %d has no reddit settings", projectID)
	}

	post, err := g.db.GetPostByID(postID)
	if err != nil {
		return nil, fmt.Errorf("loading post: %w", err)
	}
	if post == nil {
		return nil, fmt.Errorf("post %d not found", postID)
	}
	if post.ProjectID != projectID {
		return nil, fmt.Errorf("post %d does not belong to project %d", postID, projectID)
	}

	approach := g.selector.Select(CatalogFor(isPromotional))
	prompt := buildPrompt(post, brand, settings, approach, isPromotional)

	text, err := g.provider.Generate(ctx, prompt, generationMaxTokens, generationTemperature)
	if err != nil {
		return nil, fmt.Errorf("generating comment: %w", err)
	}

	body := llm.StripEnclosingQuotes(text)
	if body == "" {
		return nil, fmt.Errorf("model returned empty comment")
	}

	modelID := g.provider.ModelID()
	commentID, err := g.db.InsertComment(postID, projectID, body, isPromotional, approach.Name, &modelID)
	if err != nil {
		return nil, fmt.Errorf("storing comment: %w", err)
	}

	log.Printf("Generated %s draft (approach=%s) for post %d", mode(isPromotional), approach.Name, postID)
	return g.db.GetCommentByID(commentID)
}

// GenerateBatch generates drafts for an explicit post set, or for every
// relevant post without a comment when postIDs is empty. Work is sequential
// by design to bound model cost; a per-post failure is logged and the batch
// continues. Single-flight per project.
func (g *Generator) GenerateBatch(ctx context.Context, projectID int64, postIDs []int64, isPromotional bool) (*Result, error) {
	if _, err := g.tracker.Start(progress.KindGeneration, projectID, progress.StatusRunning); err != nil {
		return nil, err
	}

	result, err := g.generateBatch(ctx, projectID, postIDs, isPromotional)
	if err != nil {
		log.Printf("Generation run failed for project %d: %v", projectID, err)
		g.tracker.Fail(progress.KindGeneration, projectID, err.Error())
		return nil, err
	}

	g.tracker.Complete(progress.KindGeneration, projectID)
	log.Printf("Generation complete: %d/%d drafts created, %d failed",
		result.Generated, result.Total, result.Failed)
	return result, nil
}

func (g *Generator) generateBatch(ctx context.Context, projectID int64, postIDs []int64, isPromotional bool) (*Result, error) {
	targets, err := g.resolveTargets(projectID, postIDs)
	if err != nil {
		return nil, err
	}

	result := &Result{Total: len(targets)}
	g.tracker.Set(progress.KindGeneration, projectID, "total_posts", result.Total)

	for _, postID := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if _, err := g.GenerateForPost(ctx, projectID, postID, isPromotional); err != nil {
			log.Printf("Skipping post %d: %v", postID, err)
			result.Failed++
			g.tracker.Add(progress.KindGeneration, projectID, "posts_failed", 1)
			g.tracker.AddError(progress.KindGeneration, projectID, fmt.Sprintf("post %d: %v", postID, err))
			continue
		}
		result.Generated++
		g.tracker.Add(progress.KindGeneration, projectID, "posts_generated", 1)
	}

	return result, nil
}

func (g *Generator) resolveTargets(projectID int64, postIDs []int64) ([]int64, error) {
	if len(postIDs) > 0 {
		return postIDs, nil
	}
	posts, err := g.db.GetPostsWithoutComments(projectID)
	if err != nil {
		return nil, fmt.Errorf("resolving target posts: %w", err)
	}
	targets := make([]int64, len(posts))
	for i, p := range posts {
		targets[i] = p.ID
	}
	return targets, nil
}

func mode(isPromotional bool) string {
	if isPromotional {
		return "promotional"
	}
	return "organic"
}
