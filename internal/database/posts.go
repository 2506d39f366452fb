package database

import (
	"database/sql"
	"fmt"
	"strings"
)

const postColumns = `id, project_id, reddit_post_id, subreddit, title, url, snippet, keyword,
	intent, intent_categories, relevance_score, matched_keywords, evaluation,
	filter_status, serp_rank, content, content_fetched, discovered_at`

// InsertPost inserts a discovered post. Returns the ID on success, 0 when the
// (project, url) pair already exists.
func (db *DB) InsertPost(p *DiscoveredPost) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO discovered_posts (project_id, reddit_post_id, subreddit, title, url, snippet,
			keyword, intent, intent_categories, relevance_score, matched_keywords, evaluation,
			filter_status, serp_rank)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, url) DO NOTHING`,
		p.ProjectID, p.RedditPostID, p.Subreddit, p.Title, p.URL, p.Snippet,
		p.Keyword, p.Intent, marshalList(p.IntentCategories), p.RelevanceScore,
		marshalList(p.MatchedKeywords), p.Evaluation, p.FilterStatus, p.SerpRank,
	)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, nil
	}
	return result.LastInsertId()
}

// GetPostByID returns a single post by ID, or nil if not found.
func (db *DB) GetPostByID(postID int64) (*DiscoveredPost, error) {
	row := db.conn.QueryRow(
		"SELECT "+postColumns+" FROM discovered_posts WHERE id = ?", postID,
	)
	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetPostsForProject returns all posts for a project, newest first.
func (db *DB) GetPostsForProject(projectID int64) ([]DiscoveredPost, error) {
	rows, err := db.conn.Query(
		"SELECT "+postColumns+" FROM discovered_posts WHERE project_id = ? ORDER BY discovered_at DESC, id DESC",
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

// GetPostsByFilterStatus returns a project's posts with the given filter status.
func (db *DB) GetPostsByFilterStatus(projectID int64, status string) ([]DiscoveredPost, error) {
	rows, err := db.conn.Query(
		"SELECT "+postColumns+" FROM discovered_posts WHERE project_id = ? AND filter_status = ? ORDER BY relevance_score DESC, id",
		projectID, status,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

// GetPostsWithoutComments returns relevant posts that have no comment yet.
// These are the implicit targets for batch generation.
func (db *DB) GetPostsWithoutComments(projectID int64) ([]DiscoveredPost, error) {
	rows, err := db.conn.Query(
		`SELECT `+postColumns+` FROM discovered_posts p
		WHERE p.project_id = ? AND p.filter_status = 'relevant'
			AND NOT EXISTS (SELECT 1 FROM comments c WHERE c.post_id = p.id)
		ORDER BY p.relevance_score DESC, p.id`,
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

// GetPostsNeedingContent returns posts whose full thread text hasn't been fetched.
func (db *DB) GetPostsNeedingContent(projectID int64) ([]DiscoveredPost, error) {
	rows, err := db.conn.Query(
		`SELECT `+postColumns+` FROM discovered_posts
		WHERE project_id = ? AND (content IS NULL OR content = '') AND content_fetched = 0
		ORDER BY id`,
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

// UpdatePostContent stores fetched thread content for a post.
func (db *DB) UpdatePostContent(postID int64, content *string) error {
	_, err := db.conn.Exec(
		"UPDATE discovered_posts SET content = ?, content_fetched = 1 WHERE id = ?",
		content, postID,
	)
	return err
}

// MarkPostContentAttempted marks that a content fetch was tried for a post.
func (db *DB) MarkPostContentAttempted(postID int64) error {
	_, err := db.conn.Exec(
		"UPDATE discovered_posts SET content_fetched = 1 WHERE id = ?", postID,
	)
	return err
}

// validFilterStatus reports whether s is a member of the filter-status enum.
func validFilterStatus(s string) bool {
	switch s {
	case FilterPending, FilterRelevant, FilterLowRelevance, FilterSkipped:
		return true
	}
	return false
}

// UpdatePostFilterStatus sets the filter status of a single post.
// Any status may move to any other; this is a manual triage action.
func (db *DB) UpdatePostFilterStatus(postID int64, status string) error {
	if !validFilterStatus(status) {
		return fmt.Errorf("invalid filter status: %q", status)
	}
	_, err := db.conn.Exec(
		"UPDATE discovered_posts SET filter_status = ? WHERE id = ?", status, postID,
	)
	return err
}

// BulkUpdateFilterStatus sets the filter status for many posts at once.
// Returns the number of rows updated.
func (db *DB) BulkUpdateFilterStatus(postIDs []int64, status string) (int64, error) {
	if !validFilterStatus(status) {
		return 0, fmt.Errorf("invalid filter status: %q", status)
	}
	if len(postIDs) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(postIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(postIDs)+1)
	args = append(args, status)
	for _, id := range postIDs {
		args = append(args, id)
	}

	result, err := db.conn.Exec(
		"UPDATE discovered_posts SET filter_status = ? WHERE id IN ("+placeholders+")", args...,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// UpdatePostScoring records the relevance classifier's output for a post and
// sets the resulting filter status.
func (db *DB) UpdatePostScoring(postID int64, score float64, intent *string, categories, matched []string, evaluation *string, filterStatus string) error {
	if !validFilterStatus(filterStatus) {
		return fmt.Errorf("invalid filter status: %q", filterStatus)
	}
	_, err := db.conn.Exec(
		`UPDATE discovered_posts SET relevance_score = ?, intent = ?, intent_categories = ?,
			matched_keywords = ?, evaluation = ?, filter_status = ?
		WHERE id = ?`,
		score, intent, marshalList(categories), marshalList(matched), evaluation, filterStatus, postID,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPostFrom(s rowScanner) (*DiscoveredPost, error) {
	var p DiscoveredPost
	var categories, matched *string
	var fetched int
	err := s.Scan(&p.ID, &p.ProjectID, &p.RedditPostID, &p.Subreddit, &p.Title, &p.URL,
		&p.Snippet, &p.Keyword, &p.Intent, &categories, &p.RelevanceScore, &matched,
		&p.Evaluation, &p.FilterStatus, &p.SerpRank, &p.Content, &fetched, &p.DiscoveredAt)
	if err != nil {
		return nil, err
	}
	p.IntentCategories = unmarshalList(categories)
	p.MatchedKeywords = unmarshalList(matched)
	p.ContentFetched = fetched != 0
	return &p, nil
}

func scanPost(row *sql.Row) (*DiscoveredPost, error) {
	return scanPostFrom(row)
}

func scanPosts(rows *sql.Rows) ([]DiscoveredPost, error) {
	var posts []DiscoveredPost
	for rows.Next() {
		p, err := scanPostFrom(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}
