package database

import "database/sql"

// InsertProject creates a new project. Returns the ID on success.
func (db *DB) InsertProject(name string, keywords []string) (int64, error) {
	result, err := db.conn.Exec(
		"INSERT INTO projects (name, keywords) VALUES (?, ?)",
		name, marshalList(keywords),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetProject returns a project by ID, or nil if it doesn't exist.
func (db *DB) GetProject(projectID int64) (*Project, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, keywords, created_at FROM projects WHERE id = ?", projectID,
	)
	var p Project
	var keywords *string
	if err := row.Scan(&p.ID, &p.Name, &keywords, &p.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	p.Keywords = unmarshalList(keywords)
	return &p, nil
}

// GetAllProjects returns all projects ordered by creation time.
func (db *DB) GetAllProjects() ([]Project, error) {
	rows, err := db.conn.Query("SELECT id, name, keywords, created_at FROM projects ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		var keywords *string
		if err := rows.Scan(&p.ID, &p.Name, &keywords, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Keywords = unmarshalList(keywords)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpdateProjectKeywords replaces a project's keyword list.
func (db *DB) UpdateProjectKeywords(projectID int64, keywords []string) error {
	_, err := db.conn.Exec(
		"UPDATE projects SET keywords = ? WHERE id = ?",
		marshalList(keywords), projectID,
	)
	return err
}

// UpsertBrandConfig creates or replaces a project's brand configuration.
func (db *DB) UpsertBrandConfig(bc *BrandConfig) error {
	_, err := db.conn.Exec(
		`INSERT INTO brand_configs (project_id, brand_name, description, usp, tone, formality,
			preferred_vocabulary, banned_vocabulary, signature_phrases)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			brand_name = excluded.brand_name,
			description = excluded.description,
			usp = excluded.usp,
			tone = excluded.tone,
			formality = excluded.formality,
			preferred_vocabulary = excluded.preferred_vocabulary,
			banned_vocabulary = excluded.banned_vocabulary,
			signature_phrases = excluded.signature_phrases`,
		bc.ProjectID, bc.BrandName, bc.Description, bc.USP, bc.Tone, bc.Formality,
		marshalList(bc.PreferredVocabulary), marshalList(bc.BannedVocabulary),
		marshalList(bc.SignaturePhrases),
	)
	return err
}

// GetBrandConfig returns a project's brand configuration, or nil if missing.
func (db *DB) GetBrandConfig(projectID int64) (*BrandConfig, error) {
	row := db.conn.QueryRow(
		`SELECT project_id, brand_name, description, usp, tone, formality,
			preferred_vocabulary, banned_vocabulary, signature_phrases
		FROM brand_configs WHERE project_id = ?`, projectID,
	)
	var bc BrandConfig
	var preferred, banned, phrases *string
	err := row.Scan(&bc.ProjectID, &bc.BrandName, &bc.Description, &bc.USP,
		&bc.Tone, &bc.Formality, &preferred, &banned, &phrases)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	bc.PreferredVocabulary = unmarshalList(preferred)
	bc.BannedVocabulary = unmarshalList(banned)
	bc.SignaturePhrases = unmarshalList(phrases)
	return &bc, nil
}

// UpsertRedditSettings creates or replaces a project's Reddit settings.
func (db *DB) UpsertRedditSettings(rs *RedditSettings) error {
	feed := 0
	if rs.FeedDiscovery {
		feed = 1
	}
	_, err := db.conn.Exec(
		`INSERT INTO reddit_settings (project_id, subreddits, blocked_subreddits, custom_instructions, feed_discovery)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			subreddits = excluded.subreddits,
			blocked_subreddits = excluded.blocked_subreddits,
			custom_instructions = excluded.custom_instructions,
			feed_discovery = excluded.feed_discovery`,
		rs.ProjectID, marshalList(rs.Subreddits), marshalList(rs.BlockedSubreddits),
		rs.CustomInstructions, feed,
	)
	return err
}

// GetRedditSettings returns a project's Reddit settings, or nil if missing.
func (db *DB) GetRedditSettings(projectID int64) (*RedditSettings, error) {
	row := db.conn.QueryRow(
		`SELECT project_id, subreddits, blocked_subreddits, custom_instructions, feed_discovery
		FROM reddit_settings WHERE project_id = ?`, projectID,
	)
	var rs RedditSettings
	var subs, blocked *string
	var feed int
	err := row.Scan(&rs.ProjectID, &subs, &blocked, &rs.CustomInstructions, &feed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rs.Subreddits = unmarshalList(subs)
	rs.BlockedSubreddits = unmarshalList(blocked)
	rs.FeedDiscovery = feed != 0
	return &rs, nil
}
