package submit

import (
	"context"
	"fmt"
	"log"

	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/database"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/marketplace"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/progress"
)

// MarketClient is the task-creation boundary the engine depends on.
type MarketClient interface {
	CreateTask(ctx context.Context, targetURL, content string, upvotes int) (*marketplace.CreateTaskResult, error)
	ProjectID() string
}

// Result holds the counters of a submission run. Submitted + Failed always
// equals Total.
type Result struct {
	Total     int
	Submitted int
	Failed    int
}

// Engine submits approved comments to the marketplace and tracks a local
// shadow task per submission. Each item commits independently, so partial
// progress survives a mid-batch crash.
type Engine struct {
	db      *database.DB
	market  MarketClient
	tracker *progress.Tracker
	upvotes int
}

// NewEngine creates a submission engine. upvotes is the requested upvote
// count attached to every task; zero disables it.
func NewEngine(db *database.DB, market MarketClient, tracker *progress.Tracker, upvotes int) *Engine {
	return &Engine{db: db, market: market, tracker: tracker, upvotes: upvotes}
}

// Submit pushes an explicit comment set, or every approved comment for the
// project when commentIDs is empty. Sequential by design; a single comment's
// failure never aborts the batch. Single-flight per project.
func (e *Engine) Submit(ctx context.Context, projectID int64, commentIDs []int64) (*Result, error) {
	if _, err := e.tracker.Start(progress.KindSubmission, projectID, progress.StatusRunning); err != nil {
		return nil, err
	}

	result, err := e.submit(ctx, projectID, commentIDs)
	if err != nil {
		log.Printf("Submission run failed for project %d: %v", projectID, err)
		e.tracker.Fail(progress.KindSubmission, projectID, err.Error())
		return nil, err
	}

	e.tracker.Complete(progress.KindSubmission, projectID)
	log.Printf("Submission complete: %d/%d submitted, %d failed",
		result.Submitted, result.Total, result.Failed)
	return result, nil
}

func (e *Engine) submit(ctx context.Context, projectID int64, commentIDs []int64) (*Result, error) {
	comments, err := e.resolveComments(projectID, commentIDs)
	if err != nil {
		return nil, err
	}

	result := &Result{Total: len(comments)}
	e.tracker.Set(progress.KindSubmission, projectID, "total_comments", result.Total)

	for i := range comments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		comment := &comments[i]
		if err := e.submitOne(ctx, comment); err != nil {
			log.Printf("Submitting comment %d failed: %v", comment.ID, err)
			result.Failed++
			e.tracker.Add(progress.KindSubmission, projectID, "comments_failed", 1)
			e.tracker.AddError(progress.KindSubmission, projectID, fmt.Sprintf("comment %d: %v", comment.ID, err))
			continue
		}
		result.Submitted++
		e.tracker.Add(progress.KindSubmission, projectID, "comments_submitted", 1)
	}

	return result, nil
}

// submitOne hands a single comment to the marketplace and commits the local
// shadow immediately.
func (e *Engine) submitOne(ctx context.Context, comment *database.Comment) error {
	post, err := e.db.GetPostByID(comment.PostID)
	if err != nil {
		return fmt.Errorf("loading post: %w", err)
	}
	if post == nil {
		return fmt.Errorf("post %d not found", comment.PostID)
	}

	created, err := e.market.CreateTask(ctx, post.URL, comment.Body, e.upvotes)
	if err != nil {
		return fmt.Errorf("creating marketplace task: %w", err)
	}

	providerProject := e.market.ProjectID()
	task := &database.ExternalTask{
		CommentID:         &comment.ID,
		ExternalID:        &created.ExternalID,
		TaskType:          "comment",
		Status:            database.TaskSubmitted,
		TargetURL:         post.URL,
		Content:           comment.Body,
		Upvotes:           e.upvotes,
	}
	if providerProject != "" {
		task.ProviderProjectID = &providerProject
	}
	if created.RawRequest != "" {
		task.RequestPayload = &created.RawRequest
	}
	if created.RawResponse != "" {
		task.ResponsePayload = &created.RawResponse
	}

	if _, err := e.db.InsertTask(task); err != nil {
		return fmt.Errorf("storing task shadow: %w", err)
	}
	if err := e.db.MarkCommentSubmitting(comment.ID, created.ExternalID); err != nil {
		return fmt.Errorf("updating comment status: %w", err)
	}

	log.Printf("Submitted comment %d as task %s", comment.ID, created.ExternalID)
	return nil
}

func (e *Engine) resolveComments(projectID int64, commentIDs []int64) ([]database.Comment, error) {
	if len(commentIDs) == 0 {
		comments, err := e.db.GetCommentsByStatus(projectID, database.CommentApproved)
		if err != nil {
			return nil, fmt.Errorf("resolving approved comments: %w", err)
		}
		return comments, nil
	}

	var comments []database.Comment
	for _, id := range commentIDs {
		c, err := e.db.GetCommentByID(id)
		if err != nil {
			return nil, fmt.Errorf("loading comment %d: %w", id, err)
		}
		if c == nil {
			return nil, fmt.Errorf("comment %d not found", id)
		}
		comments = append(comments, *c)
	}
	return comments, nil
}
