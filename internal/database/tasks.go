package database

import "database/sql"

const taskColumns = `id, comment_id, external_id, task_type, status, target_url, content,
	provider_project_id, request_payload, response_payload, upvotes, price,
	submitted_at, published_at, created_at`

// InsertTask persists the local shadow of a marketplace task.
func (db *DB) InsertTask(t *ExternalTask) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO external_tasks (comment_id, external_id, task_type, status, target_url, content,
			provider_project_id, request_payload, response_payload, upvotes, price, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))`,
		t.CommentID, t.ExternalID, t.TaskType, t.Status, t.TargetURL, t.Content,
		t.ProviderProjectID, t.RequestPayload, t.ResponsePayload, t.Upvotes, t.Price,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetTaskByID returns a single task, or nil if not found.
func (db *DB) GetTaskByID(taskID int64) (*ExternalTask, error) {
	row := db.conn.QueryRow("SELECT "+taskColumns+" FROM external_tasks WHERE id = ?", taskID)
	t, err := scanTaskFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetTasksForComment returns all tasks for a comment, newest first.
func (db *DB) GetTasksForComment(commentID int64) ([]ExternalTask, error) {
	rows, err := db.conn.Query(
		"SELECT "+taskColumns+" FROM external_tasks WHERE comment_id = ? ORDER BY created_at DESC, id DESC",
		commentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// FindTaskByExternalID returns the most recently created task with the given
// external id, or nil. Duplicate tasks for the same submission resolve to the
// newest row.
func (db *DB) FindTaskByExternalID(externalID string) (*ExternalTask, error) {
	row := db.conn.QueryRow(
		"SELECT "+taskColumns+" FROM external_tasks WHERE external_id = ? ORDER BY created_at DESC, id DESC LIMIT 1",
		externalID,
	)
	t, err := scanTaskFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// FindTaskByTarget returns the most recently created task matching the exact
// (target URL, content) pair. Used when a callback arrives before the external
// id is known locally.
func (db *DB) FindTaskByTarget(targetURL, content string) (*ExternalTask, error) {
	row := db.conn.QueryRow(
		"SELECT "+taskColumns+" FROM external_tasks WHERE target_url = ? AND content = ? ORDER BY created_at DESC, id DESC LIMIT 1",
		targetURL, content,
	)
	t, err := scanTaskFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CallbackUpdate carries all mutations derived from one marketplace callback.
type CallbackUpdate struct {
	TaskID          int64
	ExternalID      *string
	TaskStatus      string
	ResponsePayload *string
	Price           *float64
	PublishedAt     *string
	CommentStatus   string
	PostedURL       *string
	PostedAt        *string
}

// ApplyCallback applies a reconciliation update atomically: the task row and
// its comment (when one still exists) change in a single transaction, so a
// replayed callback lands on already-final state.
func (db *DB) ApplyCallback(u CallbackUpdate) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`UPDATE external_tasks SET
			status = ?,
			external_id = COALESCE(external_id, ?),
			response_payload = COALESCE(?, response_payload),
			price = COALESCE(?, price),
			published_at = COALESCE(?, published_at)
		WHERE id = ?`,
		u.TaskStatus, u.ExternalID, u.ResponsePayload, u.Price, u.PublishedAt, u.TaskID,
	)
	if err != nil {
		return err
	}

	var commentID *int64
	if err := tx.QueryRow("SELECT comment_id FROM external_tasks WHERE id = ?", u.TaskID).Scan(&commentID); err != nil {
		return err
	}

	// The task may outlive its comment; the task update alone is still valid.
	if commentID != nil {
		if u.PostedURL != nil || u.PostedAt != nil {
			_, err = tx.Exec(
				`UPDATE comments SET status = ?,
					crowdreply_task_id = COALESCE(crowdreply_task_id, ?),
					posted_url = COALESCE(?, posted_url),
					posted_at = COALESCE(?, posted_at)
				WHERE id = ?`,
				u.CommentStatus, u.ExternalID, u.PostedURL, u.PostedAt, *commentID,
			)
		} else {
			_, err = tx.Exec(
				`UPDATE comments SET status = ?,
					crowdreply_task_id = COALESCE(crowdreply_task_id, ?)
				WHERE id = ?`,
				u.CommentStatus, u.ExternalID, *commentID,
			)
		}
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func scanTaskFrom(s rowScanner) (*ExternalTask, error) {
	var t ExternalTask
	err := s.Scan(&t.ID, &t.CommentID, &t.ExternalID, &t.TaskType, &t.Status,
		&t.TargetURL, &t.Content, &t.ProviderProjectID, &t.RequestPayload,
		&t.ResponsePayload, &t.Upvotes, &t.Price, &t.SubmittedAt, &t.PublishedAt, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]ExternalTask, error) {
	var tasks []ExternalTask
	for rows.Next() {
		t, err := scanTaskFrom(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}
