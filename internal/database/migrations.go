package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS projects (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL,
    keywords TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS brand_configs (
    project_id INTEGER PRIMARY KEY REFERENCES projects(id) ON DELETE CASCADE,
    brand_name TEXT NOT NULL,
    description TEXT,
    usp TEXT,
    tone TEXT,
    formality TEXT,
    preferred_vocabulary TEXT,
    banned_vocabulary TEXT,
    signature_phrases TEXT
);

CREATE TABLE IF NOT EXISTS reddit_settings (
    project_id INTEGER PRIMARY KEY REFERENCES projects(id) ON DELETE CASCADE,
    subreddits TEXT,
    blocked_subreddits TEXT,
    custom_instructions TEXT,
    feed_discovery INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS discovered_posts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    reddit_post_id TEXT,
    subreddit TEXT NOT NULL,
    title TEXT NOT NULL,
    url TEXT NOT NULL,
    snippet TEXT,
    keyword TEXT NOT NULL DEFAULT '',
    intent TEXT,
    intent_categories TEXT,
    relevance_score REAL,
    matched_keywords TEXT,
    evaluation TEXT,
    filter_status TEXT NOT NULL DEFAULT 'pending'
        CHECK(filter_status IN ('pending', 'relevant', 'low_relevance', 'skipped')),
    serp_rank INTEGER DEFAULT 0,
    content TEXT,
    content_fetched INTEGER DEFAULT 0,
    discovered_at TEXT DEFAULT (datetime('now')),
    UNIQUE(project_id, url)
);

CREATE TABLE IF NOT EXISTS comments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    post_id INTEGER NOT NULL REFERENCES discovered_posts(id) ON DELETE CASCADE,
    project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    account_id TEXT,
    body TEXT NOT NULL,
    original_body TEXT NOT NULL,
    is_promotional INTEGER DEFAULT 0,
    approach TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'draft'
        CHECK(status IN ('draft', 'approved', 'rejected', 'submitting', 'posted', 'failed', 'mod_removed')),
    rejection_reason TEXT,
    crowdreply_task_id TEXT,
    posted_url TEXT,
    posted_at TEXT,
    model_id TEXT,
    generated_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS external_tasks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    comment_id INTEGER REFERENCES comments(id) ON DELETE SET NULL,
    external_id TEXT,
    task_type TEXT NOT NULL DEFAULT 'comment',
    status TEXT NOT NULL DEFAULT 'PENDING',
    target_url TEXT NOT NULL,
    content TEXT NOT NULL,
    provider_project_id TEXT,
    request_payload TEXT,
    response_payload TEXT,
    upvotes INTEGER DEFAULT 0,
    price REAL,
    submitted_at TEXT,
    published_at TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_posts_project ON discovered_posts(project_id);
CREATE INDEX IF NOT EXISTS idx_posts_filter ON discovered_posts(project_id, filter_status);
CREATE INDEX IF NOT EXISTS idx_comments_post ON comments(post_id);
CREATE INDEX IF NOT EXISTS idx_comments_status ON comments(project_id, status);
CREATE INDEX IF NOT EXISTS idx_tasks_external ON external_tasks(external_id);
CREATE INDEX IF NOT EXISTS idx_tasks_comment ON external_tasks(comment_id);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
