package database

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func insertTestPost(t *testing.T, db *DB, projectID int64, url string) int64 {
	t.Helper()
	id, err := db.InsertPost(&DiscoveredPost{
		ProjectID:    projectID,
		Subreddit:    "hiking",
		Title:        "Best boots for wet trails?",
		URL:          url,
		Keyword:      "hiking boots",
		FilterStatus: FilterPending,
	})
	if err != nil {
		t.Fatalf("inserting post: %v", err)
	}
	return id
}

func TestInsertProjectAndGet(t *testing.T) {
	db := openTestDB(t)
	id, err := db.InsertProject("TrailCo", []string{"hiking boots", "trail shoes"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero project ID")
	}

	p, err := db.GetProject(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected project")
	}
	if p.Name != "TrailCo" {
		t.Errorf("expected TrailCo, got %q", p.Name)
	}
	if len(p.Keywords) != 2 || p.Keywords[0] != "hiking boots" {
		t.Errorf("keywords not preserved: %v", p.Keywords)
	}
}

func TestInsertDuplicatePost(t *testing.T) {
	db := openTestDB(t)
	p1, _ := db.InsertProject("A", nil)
	p2, _ := db.InsertProject("B", nil)

	url := "https://www.reddit.com/r/hiking/comments/abc123/best_boots"
	first := insertTestPost(t, db, p1, url)
	if first == 0 {
		t.Fatal("expected non-zero post ID")
	}

	dup := insertTestPost(t, db, p1, url)
	if dup != 0 {
		t.Errorf("expected 0 for duplicate URL in same project, got %d", dup)
	}

	other := insertTestPost(t, db, p2, url)
	if other == 0 {
		t.Error("same URL in a different project should insert")
	}
}

func TestUpdatePostScoring(t *testing.T) {
	db := openTestDB(t)
	projectID, _ := db.InsertProject("A", nil)
	postID := insertTestPost(t, db, projectID, "https://www.reddit.com/r/hiking/comments/abc123/x")

	err := db.UpdatePostScoring(postID, 0.85, ptr("recommendation_seeking"),
		[]string{"advice"}, []string{"hiking boots"}, ptr("asks for boot advice"), FilterRelevant)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	post, err := db.GetPostByID(postID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if post.RelevanceScore == nil || *post.RelevanceScore != 0.85 {
		t.Errorf("score not stored: %v", post.RelevanceScore)
	}
	if post.FilterStatus != FilterRelevant {
		t.Errorf("expected relevant, got %q", post.FilterStatus)
	}
	if len(post.MatchedKeywords) != 1 || post.MatchedKeywords[0] != "hiking boots" {
		t.Errorf("matched keywords not preserved: %v", post.MatchedKeywords)
	}

	relevant, err := db.GetPostsByFilterStatus(projectID, FilterRelevant)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(relevant) != 1 {
		t.Errorf("expected 1 relevant post, got %d", len(relevant))
	}
}

func TestBulkUpdateFilterStatus(t *testing.T) {
	db := openTestDB(t)
	projectID, _ := db.InsertProject("A", nil)
	p1 := insertTestPost(t, db, projectID, "https://www.reddit.com/r/hiking/comments/aaa111/x")
	p2 := insertTestPost(t, db, projectID, "https://www.reddit.com/r/hiking/comments/bbb222/y")

	updated, err := db.BulkUpdateFilterStatus([]int64{p1, p2}, FilterSkipped)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated != 2 {
		t.Errorf("expected 2 updated, got %d", updated)
	}

	if _, err := db.BulkUpdateFilterStatus([]int64{p1}, "bogus"); err == nil {
		t.Error("expected error for invalid filter status")
	}
}

func TestGetPostsWithoutComments(t *testing.T) {
	db := openTestDB(t)
	projectID, _ := db.InsertProject("A", nil)
	p1 := insertTestPost(t, db, projectID, "https://www.reddit.com/r/hiking/comments/aaa111/x")
	p2 := insertTestPost(t, db, projectID, "https://www.reddit.com/r/hiking/comments/bbb222/y")
	db.UpdatePostFilterStatus(p1, FilterRelevant)
	db.UpdatePostFilterStatus(p2, FilterRelevant)

	db.InsertComment(p1, projectID, "nice thread", false, "empathy", nil)

	posts, err := db.GetPostsWithoutComments(projectID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 post without comments, got %d", len(posts))
	}
	if posts[0].ID != p2 {
		t.Errorf("expected post %d, got %d", p2, posts[0].ID)
	}
}

func TestRegenerationKeepsHistory(t *testing.T) {
	db := openTestDB(t)
	projectID, _ := db.InsertProject("A", nil)
	postID := insertTestPost(t, db, projectID, "https://www.reddit.com/r/hiking/comments/abc123/x")

	db.InsertComment(postID, projectID, "first attempt", false, "empathy", nil)
	db.InsertComment(postID, projectID, "second attempt", false, "humor", nil)

	comments, err := db.GetCommentsForPost(postID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(comments))
	}
}

func TestEditPreservesOriginalBody(t *testing.T) {
	db := openTestDB(t)
	projectID, _ := db.InsertProject("A", nil)
	postID := insertTestPost(t, db, projectID, "https://www.reddit.com/r/hiking/comments/abc123/x")
	id, _ := db.InsertComment(postID, projectID, "as generated", false, "empathy", nil)

	if err := db.UpdateCommentBody(id, "edited by operator"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, _ := db.GetCommentByID(id)
	if c.Body != "edited by operator" {
		t.Errorf("body not updated: %q", c.Body)
	}
	if c.OriginalBody != "as generated" {
		t.Errorf("original body must stay immutable, got %q", c.OriginalBody)
	}
}

func TestCommentLifecycle(t *testing.T) {
	db := openTestDB(t)
	projectID, _ := db.InsertProject("A", nil)
	postID := insertTestPost(t, db, projectID, "https://www.reddit.com/r/hiking/comments/abc123/x")
	id, _ := db.InsertComment(postID, projectID, "draft text", true, "story_based", ptr("qwen2.5:7b"))

	c, _ := db.GetCommentByID(id)
	if c.Status != CommentDraft {
		t.Fatalf("new comment should be draft, got %q", c.Status)
	}
	if !c.IsPromotional {
		t.Error("promotional flag lost")
	}

	if err := db.ApproveComment(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, _ = db.GetCommentByID(id)
	if c.Status != CommentApproved {
		t.Errorf("expected approved, got %q", c.Status)
	}

	if err := db.RejectComment(id, ptr("tone off")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, _ = db.GetCommentByID(id)
	if c.Status != CommentRejected {
		t.Errorf("expected rejected, got %q", c.Status)
	}
	if c.RejectionReason == nil || *c.RejectionReason != "tone off" {
		t.Errorf("rejection reason not stored: %v", c.RejectionReason)
	}
}

func TestMarkCommentSubmitting(t *testing.T) {
	db := openTestDB(t)
	projectID, _ := db.InsertProject("A", nil)
	postID := insertTestPost(t, db, projectID, "https://www.reddit.com/r/hiking/comments/abc123/x")
	id, _ := db.InsertComment(postID, projectID, "text", false, "empathy", nil)

	if err := db.MarkCommentSubmitting(id, "task_123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, _ := db.GetCommentByID(id)
	if c.Status != CommentSubmitting {
		t.Errorf("expected submitting, got %q", c.Status)
	}
	if c.CrowdReplyTaskID == nil || *c.CrowdReplyTaskID != "task_123" {
		t.Errorf("task id not stored: %v", c.CrowdReplyTaskID)
	}
}

func TestFindTaskByExternalIDNewestWins(t *testing.T) {
	db := openTestDB(t)

	old, _ := db.InsertTask(&ExternalTask{ExternalID: ptr("task_dup"), TaskType: "comment",
		Status: TaskSubmitted, TargetURL: "https://r.example/1", Content: "a"})
	newer, _ := db.InsertTask(&ExternalTask{ExternalID: ptr("task_dup"), TaskType: "comment",
		Status: TaskSubmitted, TargetURL: "https://r.example/1", Content: "a"})

	task, err := db.FindTaskByExternalID("task_dup")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task == nil {
		t.Fatal("expected a match")
	}
	if task.ID != newer {
		t.Errorf("expected newest task %d, got %d (old %d)", newer, task.ID, old)
	}

	missing, err := db.FindTaskByExternalID("task_unknown")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown external id")
	}
}

func TestFindTaskByTarget(t *testing.T) {
	db := openTestDB(t)
	db.InsertTask(&ExternalTask{TaskType: "comment", Status: TaskSubmitted,
		TargetURL: "https://r.example/1", Content: "exact body"})

	task, err := db.FindTaskByTarget("https://r.example/1", "exact body")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task == nil {
		t.Fatal("expected a match on url+content")
	}

	task, _ = db.FindTaskByTarget("https://r.example/1", "different body")
	if task != nil {
		t.Error("content must match exactly")
	}
}

func TestApplyCallback(t *testing.T) {
	db := openTestDB(t)
	projectID, _ := db.InsertProject("A", nil)
	postID := insertTestPost(t, db, projectID, "https://www.reddit.com/r/hiking/comments/abc123/x")
	commentID, _ := db.InsertComment(postID, projectID, "text", false, "empathy", nil)
	db.MarkCommentSubmitting(commentID, "task_123")
	taskID, _ := db.InsertTask(&ExternalTask{CommentID: &commentID, ExternalID: ptr("task_123"),
		TaskType: "comment", Status: TaskSubmitted, TargetURL: "https://r.example/1", Content: "text"})

	update := CallbackUpdate{
		TaskID:        taskID,
		TaskStatus:    TaskPublished,
		CommentStatus: CommentPosted,
		PostedURL:     ptr("https://www.reddit.com/r/hiking/comments/abc123/x/comment/c1"),
		PostedAt:      ptr("2026-08-30T12:00:00Z"),
		PublishedAt:   ptr("2026-08-30T12:00:00Z"),
	}
	if err := db.ApplyCallback(update); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	task, _ := db.GetTaskByID(taskID)
	if task.Status != TaskPublished {
		t.Errorf("expected PUBLISHED, got %q", task.Status)
	}
	if task.PublishedAt == nil {
		t.Error("published_at not stored")
	}

	c, _ := db.GetCommentByID(commentID)
	if c.Status != CommentPosted {
		t.Errorf("expected posted, got %q", c.Status)
	}
	if c.PostedURL == nil || *c.PostedURL == "" {
		t.Error("posted_url not stored")
	}

	// Replay lands on identical state.
	if err := db.ApplyCallback(update); err != nil {
		t.Fatalf("replay errored: %v", err)
	}
	again, _ := db.GetCommentByID(commentID)
	if again.Status != CommentPosted || *again.PostedURL != *c.PostedURL {
		t.Error("replay changed final state")
	}
}

func TestApplyCallbackTaskWithoutComment(t *testing.T) {
	db := openTestDB(t)
	taskID, _ := db.InsertTask(&ExternalTask{ExternalID: ptr("task_orphan"),
		TaskType: "comment", Status: TaskSubmitted, TargetURL: "https://r.example/1", Content: "a"})

	err := db.ApplyCallback(CallbackUpdate{
		TaskID:        taskID,
		TaskStatus:    TaskCancelled,
		CommentStatus: CommentFailed,
	})
	if err != nil {
		t.Fatalf("task without comment should still update: %v", err)
	}

	task, _ := db.GetTaskByID(taskID)
	if task.Status != TaskCancelled {
		t.Errorf("expected CANCELLED, got %q", task.Status)
	}
}

func TestBrandConfigRoundtrip(t *testing.T) {
	db := openTestDB(t)
	projectID, _ := db.InsertProject("TrailCo", nil)

	if bc, _ := db.GetBrandConfig(projectID); bc != nil {
		t.Fatal("expected nil before upsert")
	}

	err := db.UpsertBrandConfig(&BrandConfig{
		ProjectID:        projectID,
		BrandName:        "TrailCo",
		Tone:             ptr("friendly"),
		SignaturePhrases: []string{"happy trails"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bc, err := db.GetBrandConfig(projectID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bc.BrandName != "TrailCo" {
		t.Errorf("expected TrailCo, got %q", bc.BrandName)
	}
	if len(bc.SignaturePhrases) != 1 {
		t.Errorf("signature phrases not preserved: %v", bc.SignaturePhrases)
	}

	// Second upsert replaces, not duplicates.
	db.UpsertBrandConfig(&BrandConfig{ProjectID: projectID, BrandName: "TrailCo v2"})
	bc, _ = db.GetBrandConfig(projectID)
	if bc.BrandName != "TrailCo v2" {
		t.Errorf("upsert did not replace: %q", bc.BrandName)
	}
}

func TestRedditSettingsRoundtrip(t *testing.T) {
	db := openTestDB(t)
	projectID, _ := db.InsertProject("A", nil)

	if rs, _ := db.GetRedditSettings(projectID); rs != nil {
		t.Fatal("expected nil before upsert")
	}

	err := db.UpsertRedditSettings(&RedditSettings{
		ProjectID:         projectID,
		Subreddits:        []string{"hiking", "camping"},
		BlockedSubreddits: []string{"circlejerk"},
		FeedDiscovery:     true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rs, err := db.GetRedditSettings(projectID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rs.Subreddits) != 2 || rs.Subreddits[1] != "camping" {
		t.Errorf("subreddits not preserved: %v", rs.Subreddits)
	}
	if !rs.FeedDiscovery {
		t.Error("feed discovery flag lost")
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	projectID, _ := db.InsertProject("A", nil)
	postID := insertTestPost(t, db, projectID, "https://www.reddit.com/r/hiking/comments/abc123/x")
	db.UpdatePostFilterStatus(postID, FilterRelevant)
	db.InsertComment(postID, projectID, "text", false, "empathy", nil)

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Projects != 1 || stats.TotalPosts != 1 || stats.RelevantPosts != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.TotalComments != 1 || stats.DraftComments != 1 {
		t.Errorf("unexpected comment stats: %+v", stats)
	}
}
