package generator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/database"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/progress"
)

type mockProvider struct {
	response string
	err      error
	prompts  []string
}

func (m *mockProvider) Generate(_ context.Context, prompt string, _ int, _ float64) (string, error) {
	m.prompts = append(m.prompts, prompt)
	return m.response, m.err
}

func (m *mockProvider) ModelID() string    { return "mock-model" }
func (m *mockProvider) IsConfigured() bool { return true }

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func setupProject(t *testing.T, db *database.DB) (projectID, postID int64) {
	t.Helper()
	projectID, err := db.InsertProject("TrailCo", []string{"hiking boots"})
	if err != nil {
		t.Fatalf("inserting project: %v", err)
	}
	desc := "Rugged hiking boots"
	tone := "friendly"
	if err := db.UpsertBrandConfig(&database.BrandConfig{
		ProjectID:   projectID,
		BrandName:   "TrailCo",
		Description: &desc,
		Tone:        &tone,
	}); err != nil {
		t.Fatalf("inserting brand config: %v", err)
	}
	if err := db.UpsertRedditSettings(&database.RedditSettings{
		ProjectID:  projectID,
		Subreddits: []string{"hiking"},
	}); err != nil {
		t.Fatalf("inserting reddit settings: %v", err)
	}

	snippet := "Looking for waterproof boots"
	postID, err = db.InsertPost(&database.DiscoveredPost{
		ProjectID:    projectID,
		Subreddit:    "hiking",
		Title:        "Best boots for wet trails?",
		URL:          "https://www.reddit.com/r/hiking/comments/abc123/best_boots",
		Snippet:      &snippet,
		Keyword:      "hiking boots",
		FilterStatus: database.FilterRelevant,
	})
	if err != nil {
		t.Fatalf("inserting post: %v", err)
	}
	return projectID, postID
}

func TestGenerateForPostPromotional(t *testing.T) {
	db := openTestDB(t)
	projectID, postID := setupProject(t, db)

	provider := &mockProvider{response: "honestly I've been using TrailCo boots for two seasons and they hold up great in mud"}
	gen := New(db, provider, FixedSelector{Index: 0}, progress.NewTracker())

	comment, err := gen.GenerateForPost(context.Background(), projectID, postID, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !comment.IsPromotional {
		t.Error("expected promotional comment")
	}
	if comment.Status != database.CommentDraft {
		t.Errorf("expected draft, got %q", comment.Status)
	}
	if !IsKnownApproach(comment.Approach, true) {
		t.Errorf("approach %q not in promotional catalog", comment.Approach)
	}
	if comment.ModelID == nil || *comment.ModelID != "mock-model" {
		t.Errorf("model id not recorded: %v", comment.ModelID)
	}

	prompt := provider.prompts[0]
	if !strings.Contains(prompt, "Brand to mention: TrailCo") {
		t.Error("prompt missing brand mention instruction")
	}
	if !strings.Contains(prompt, "exactly once") {
		t.Error("prompt missing exactly-once constraint")
	}
	if !strings.Contains(prompt, "Best boots for wet trails?") {
		t.Error("prompt missing thread context")
	}
}

func TestGenerateForPostOrganic(t *testing.T) {
	db := openTestDB(t)
	projectID, postID := setupProject(t, db)

	provider := &mockProvider{response: "what kind of terrain are you mostly on?"}
	gen := New(db, provider, FixedSelector{Index: 2}, progress.NewTracker())

	comment, err := gen.GenerateForPost(context.Background(), projectID, postID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if comment.IsPromotional {
		t.Error("expected organic comment")
	}
	if !IsKnownApproach(comment.Approach, false) {
		t.Errorf("approach %q not in organic catalog", comment.Approach)
	}
	if !strings.Contains(provider.prompts[0], "Do not mention any brand") {
		t.Error("organic prompt must forbid brand mentions")
	}
}

func TestGenerateStripsEnclosingQuotes(t *testing.T) {
	db := openTestDB(t)
	projectID, postID := setupProject(t, db)

	provider := &mockProvider{response: `"a quoted reply"`}
	gen := New(db, provider, FixedSelector{}, progress.NewTracker())

	comment, err := gen.GenerateForPost(context.Background(), projectID, postID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if comment.Body != "a quoted reply" {
		t.Errorf("quotes not stripped: %q", comment.Body)
	}
	if comment.OriginalBody != "a quoted reply" {
		t.Errorf("original body should match stored body at creation: %q", comment.OriginalBody)
	}
}

func TestGenerateFailsFast(t *testing.T) {
	db := openTestDB(t)
	provider := &mockProvider{response: "text"}
	gen := New(db, provider, FixedSelector{}, progress.NewTracker())
	ctx := context.Background()

	projectID, _ := db.InsertProject("NoBrand", nil)
	if _, err := gen.GenerateForPost(ctx, projectID, 1, false); err == nil {
		t.Error("expected error without brand config")
	}

	fullProject, postID := setupProject(t, db)
	otherProject, _ := db.InsertProject("Other", nil)
	db.UpsertBrandConfig(&database.BrandConfig{ProjectID: otherProject, BrandName: "X"})
	db.UpsertRedditSettings(&database.RedditSettings{ProjectID: otherProject})
	if _, err := gen.GenerateForPost(ctx, otherProject, postID, false); err == nil {
		t.Error("expected error for post owned by another project")
	}

	empty := New(db, &mockProvider{response: "   "}, FixedSelector{}, progress.NewTracker())
	if _, err := empty.GenerateForPost(ctx, fullProject, postID, false); err == nil {
		t.Error("expected error for empty model output")
	}

	noProvider := New(db, nil, FixedSelector{}, progress.NewTracker())
	if _, err := noProvider.GenerateForPost(ctx, fullProject, postID, false); err == nil {
		t.Error("expected error without provider")
	}
}

func TestGenerateBatchContinuesOnFailure(t *testing.T) {
	db := openTestDB(t)
	projectID, postID := setupProject(t, db)

	// Second relevant post whose generation will fail.
	badPost, _ := db.InsertPost(&database.DiscoveredPost{
		ProjectID:    projectID,
		Subreddit:    "hiking",
		Title:        "Another thread",
		URL:          "https://www.reddit.com/r/hiking/comments/def456/another",
		Keyword:      "hiking boots",
		FilterStatus: database.FilterRelevant,
	})

	provider := &flakyProvider{}
	tracker := progress.NewTracker()
	gen := New(db, provider, FixedSelector{}, tracker)

	result, err := gen.GenerateBatch(context.Background(), projectID, []int64{postID, badPost}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 2 || result.Generated != 1 || result.Failed != 1 {
		t.Errorf("unexpected result: %+v", result)
	}

	rec := tracker.Get(progress.KindGeneration, projectID)
	if rec.Status != progress.StatusComplete {
		t.Errorf("batch with partial failures still completes, got %s", rec.Status)
	}
	if len(rec.Errors) != 1 {
		t.Errorf("expected 1 recorded error, got %v", rec.Errors)
	}
}

func TestGenerateBatchTargetsRelevantWithoutComments(t *testing.T) {
	db := openTestDB(t)
	projectID, postID := setupProject(t, db)
	db.InsertComment(postID, projectID, "already drafted", false, "empathy", nil)

	provider := &mockProvider{response: "text"}
	gen := New(db, provider, FixedSelector{}, progress.NewTracker())

	result, err := gen.GenerateBatch(context.Background(), projectID, nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 0 {
		t.Errorf("post with existing comment should not be targeted: %+v", result)
	}
}

// flakyProvider fails only for prompts that mention a marker thread title.
type flakyProvider struct {
	calls int
}

func (f *flakyProvider) Generate(_ context.Context, prompt string, _ int, _ float64) (string, error) {
	if strings.Contains(prompt, "Another thread") {
		return "", fmt.Errorf("model overloaded")
	}
	f.calls++
	return "a perfectly fine reply", nil
}

func (f *flakyProvider) ModelID() string    { return "mock-model" }
func (f *flakyProvider) IsConfigured() bool { return true }
