package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Family members - the people the patient should recognize
		`CREATE TABLE IF NOT EXISTS family_members (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			relation TEXT NOT NULL DEFAULT '',
			age INTEGER NOT NULL DEFAULT 0,
			interest TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Enrollment images - one or more face photos per member
		`CREATE TABLE IF NOT EXISTS enrollment_images (
			id TEXT PRIMARY KEY,
			member_id TEXT NOT NULL REFERENCES family_members(id) ON DELETE CASCADE,
			filename TEXT NOT NULL,
			content_type TEXT NOT NULL DEFAULT 'image/jpeg',
			data BLOB NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Member updates - family news posted for a member
		`CREATE TABLE IF NOT EXISTS member_updates (
			id TEXT PRIMARY KEY,
			member_id TEXT NOT NULL REFERENCES family_members(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			date TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Gallery snapshots - cached embeddings keyed by enrollment set fingerprint
		`CREATE TABLE IF NOT EXISTS gallery_snapshots (
			fingerprint TEXT PRIMARY KEY,
			entries INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS gallery_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			fingerprint TEXT NOT NULL REFERENCES gallery_snapshots(fingerprint) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			identity TEXT NOT NULL,
			embedding BLOB NOT NULL
		)`,

		// Recognition sessions - one row per completed session
		`CREATE TABLE IF NOT EXISTS recognition_sessions (
			id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			identity TEXT NOT NULL DEFAULT '',
			distance REAL NOT NULL DEFAULT 0,
			frames INTEGER NOT NULL DEFAULT 0,
			timed_out INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			handoff_error TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			ended_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_enrollment_images_member_id ON enrollment_images(member_id)`,
		`CREATE INDEX IF NOT EXISTS idx_member_updates_member_id ON member_updates(member_id)`,
		`CREATE INDEX IF NOT EXISTS idx_gallery_entries_fingerprint ON gallery_entries(fingerprint)`,
		`CREATE INDEX IF NOT EXISTS idx_recognition_sessions_started_at ON recognition_sessions(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
