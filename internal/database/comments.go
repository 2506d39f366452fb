package database

import (
	"database/sql"
	"fmt"
	"strings"
)

const commentColumns = `id, post_id, project_id, account_id, body, original_body, is_promotional,
	approach, status, rejection_reason, crowdreply_task_id, posted_url, posted_at, model_id, generated_at`

// InsertComment persists a newly generated draft. A regeneration for the same
// post always inserts a fresh row; earlier attempts are never touched.
func (db *DB) InsertComment(postID, projectID int64, body string, isPromotional bool, approach string, modelID *string) (int64, error) {
	promo := 0
	if isPromotional {
		promo = 1
	}
	result, err := db.conn.Exec(
		`INSERT INTO comments (post_id, project_id, body, original_body, is_promotional, approach, status, model_id)
		VALUES (?, ?, ?, ?, ?, ?, 'draft', ?)`,
		postID, projectID, body, body, promo, approach, modelID,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetCommentByID returns a single comment, or nil if not found.
func (db *DB) GetCommentByID(commentID int64) (*Comment, error) {
	row := db.conn.QueryRow(
		"SELECT "+commentColumns+" FROM comments WHERE id = ?", commentID,
	)
	c, err := scanCommentFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetCommentsForProject returns a project's comments, newest first.
func (db *DB) GetCommentsForProject(projectID int64) ([]Comment, error) {
	rows, err := db.conn.Query(
		"SELECT "+commentColumns+" FROM comments WHERE project_id = ? ORDER BY generated_at DESC, id DESC",
		projectID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanComments(rows)
}

// GetCommentsByStatus returns a project's comments with the given status.
func (db *DB) GetCommentsByStatus(projectID int64, status string) ([]Comment, error) {
	rows, err := db.conn.Query(
		"SELECT "+commentColumns+" FROM comments WHERE project_id = ? AND status = ? ORDER BY id",
		projectID, status,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanComments(rows)
}

// GetCommentsForPost returns all generation attempts for a post, newest first.
func (db *DB) GetCommentsForPost(postID int64) ([]Comment, error) {
	rows, err := db.conn.Query(
		"SELECT "+commentColumns+" FROM comments WHERE post_id = ? ORDER BY id DESC", postID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanComments(rows)
}

// UpdateCommentBody edits the working body text. The original body is immutable.
func (db *DB) UpdateCommentBody(commentID int64, body string) error {
	_, err := db.conn.Exec("UPDATE comments SET body = ? WHERE id = ?", body, commentID)
	return err
}

// ApproveComment moves a comment to approved.
func (db *DB) ApproveComment(commentID int64) error {
	return db.setCommentStatus(commentID, CommentApproved)
}

// RejectComment moves a comment to rejected with an optional reason.
func (db *DB) RejectComment(commentID int64, reason *string) error {
	_, err := db.conn.Exec(
		"UPDATE comments SET status = 'rejected', rejection_reason = ? WHERE id = ?",
		reason, commentID,
	)
	return err
}

// BulkRejectComments rejects many comments at once with a shared reason.
func (db *DB) BulkRejectComments(commentIDs []int64, reason *string) (int64, error) {
	if len(commentIDs) == 0 {
		return 0, nil
	}
	placeholders := strings.Repeat("?,", len(commentIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(commentIDs)+1)
	args = append(args, reason)
	for _, id := range commentIDs {
		args = append(args, id)
	}
	result, err := db.conn.Exec(
		"UPDATE comments SET status = 'rejected', rejection_reason = ? WHERE id IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// MarkCommentSubmitting flips a comment to submitting and records the external task id.
func (db *DB) MarkCommentSubmitting(commentID int64, taskID string) error {
	_, err := db.conn.Exec(
		"UPDATE comments SET status = 'submitting', crowdreply_task_id = ? WHERE id = ?",
		taskID, commentID,
	)
	return err
}

func (db *DB) setCommentStatus(commentID int64, status string) error {
	switch status {
	case CommentDraft, CommentApproved, CommentRejected, CommentSubmitting,
		CommentPosted, CommentFailed, CommentModRemoved:
	default:
		return fmt.Errorf("invalid comment status: %q", status)
	}
	_, err := db.conn.Exec("UPDATE comments SET status = ? WHERE id = ?", status, commentID)
	return err
}

func scanCommentFrom(s rowScanner) (*Comment, error) {
	var c Comment
	var promo int
	err := s.Scan(&c.ID, &c.PostID, &c.ProjectID, &c.AccountID, &c.Body, &c.OriginalBody,
		&promo, &c.Approach, &c.Status, &c.RejectionReason, &c.CrowdReplyTaskID,
		&c.PostedURL, &c.PostedAt, &c.ModelID, &c.GeneratedAt)
	if err != nil {
		return nil, err
	}
	c.IsPromotional = promo != 0
	return &c, nil
}

func scanComments(rows *sql.Rows) ([]Comment, error) {
	var comments []Comment
	for rows.Next() {
		c, err := scanCommentFrom(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, *c)
	}
	return comments, rows.Err()
}
