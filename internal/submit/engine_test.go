package submit

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/database"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/marketplace"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/progress"
)

type fakeMarket struct {
	nextID  int
	failFor map[string]bool // keyed by content
	created []string
}

func (f *fakeMarket) CreateTask(_ context.Context, targetURL, content string, upvotes int) (*marketplace.CreateTaskResult, error) {
	if f.failFor[content] {
		return nil, fmt.Errorf("marketplace unavailable")
	}
	f.nextID++
	id := fmt.Sprintf("task_%d", f.nextID)
	f.created = append(f.created, id)
	return &marketplace.CreateTaskResult{
		ExternalID:  id,
		RawRequest:  `{"threadUrl":"` + targetURL + `"}`,
		RawResponse: `{"_id":"` + id + `"}`,
	}, nil
}

func (f *fakeMarket) ProjectID() string { return "proj_1" }

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func approvedComment(t *testing.T, db *database.DB, projectID int64, url, body string) int64 {
	t.Helper()
	postID, err := db.InsertPost(&database.DiscoveredPost{
		ProjectID:    projectID,
		Subreddit:    "hiking",
		Title:        "Thread",
		URL:          url,
		Keyword:      "hiking boots",
		FilterStatus: database.FilterRelevant,
	})
	if err != nil {
		t.Fatalf("inserting post: %v", err)
	}
	commentID, err := db.InsertComment(postID, projectID, body, false, "empathy", nil)
	if err != nil {
		t.Fatalf("inserting comment: %v", err)
	}
	if err := db.ApproveComment(commentID); err != nil {
		t.Fatalf("approving comment: %v", err)
	}
	return commentID
}

func TestSubmitApprovedComments(t *testing.T) {
	db := openTestDB(t)
	projectID, _ := db.InsertProject("TrailCo", nil)
	commentID := approvedComment(t, db, projectID,
		"https://www.reddit.com/r/hiking/comments/abc123/x", "great thread!")

	market := &fakeMarket{}
	engine := NewEngine(db, market, progress.NewTracker(), 2)

	result, err := engine.Submit(context.Background(), projectID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 1 || result.Submitted != 1 || result.Failed != 0 {
		t.Errorf("unexpected result: %+v", result)
	}

	comment, _ := db.GetCommentByID(commentID)
	if comment.Status != database.CommentSubmitting {
		t.Errorf("expected submitting, got %q", comment.Status)
	}
	if comment.CrowdReplyTaskID == nil || *comment.CrowdReplyTaskID != "task_1" {
		t.Errorf("external task id not recorded: %v", comment.CrowdReplyTaskID)
	}

	tasks, _ := db.GetTasksForComment(commentID)
	if len(tasks) != 1 {
		t.Fatalf("expected 1 shadow task, got %d", len(tasks))
	}
	task := tasks[0]
	if task.Status != database.TaskSubmitted {
		t.Errorf("expected SUBMITTED, got %q", task.Status)
	}
	if task.ExternalID == nil || *task.ExternalID != "task_1" {
		t.Errorf("external id not stored: %v", task.ExternalID)
	}
	if task.Content != "great thread!" {
		t.Errorf("content snapshot missing: %q", task.Content)
	}
	if task.RequestPayload == nil || task.ResponsePayload == nil {
		t.Error("raw payloads not stored")
	}
}

func TestSubmitContinuesPastFailures(t *testing.T) {
	db := openTestDB(t)
	projectID, _ := db.InsertProject("TrailCo", nil)
	bad := approvedComment(t, db, projectID, "https://www.reddit.com/r/hiking/comments/aaa111/x", "bad one")
	good := approvedComment(t, db, projectID, "https://www.reddit.com/r/hiking/comments/bbb222/y", "good one")

	market := &fakeMarket{failFor: map[string]bool{"bad one": true}}
	tracker := progress.NewTracker()
	engine := NewEngine(db, market, tracker, 0)

	result, err := engine.Submit(context.Background(), projectID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 2 || result.Submitted != 1 || result.Failed != 1 {
		t.Errorf("unexpected result: %+v", result)
	}

	// The failed comment keeps its approved status and stays retryable.
	c, _ := db.GetCommentByID(bad)
	if c.Status != database.CommentApproved {
		t.Errorf("failed submission must not change status, got %q", c.Status)
	}
	c, _ = db.GetCommentByID(good)
	if c.Status != database.CommentSubmitting {
		t.Errorf("expected submitting, got %q", c.Status)
	}

	rec := tracker.Get(progress.KindSubmission, projectID)
	if rec.Status != progress.StatusComplete || len(rec.Errors) != 1 {
		t.Errorf("unexpected run record: %+v", rec)
	}
}

func TestSubmitExplicitUnknownComment(t *testing.T) {
	db := openTestDB(t)
	projectID, _ := db.InsertProject("TrailCo", nil)

	engine := NewEngine(db, &fakeMarket{}, progress.NewTracker(), 0)
	if _, err := engine.Submit(context.Background(), projectID, []int64{999}); err == nil {
		t.Error("expected error for unknown comment id")
	}
}

func TestSubmitSingleFlight(t *testing.T) {
	db := openTestDB(t)
	projectID, _ := db.InsertProject("TrailCo", nil)

	tracker := progress.NewTracker()
	tracker.Start(progress.KindSubmission, projectID, progress.StatusRunning)

	engine := NewEngine(db, &fakeMarket{}, tracker, 0)
	if _, err := engine.Submit(context.Background(), projectID, nil); err == nil {
		t.Error("expected error while a run is active")
	}
}
