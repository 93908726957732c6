package sqlite

import (
	"database/sql"
)

const (
	insertVideoQuery = `
        INSERT INTO videos (id, name, thumbnail_url, video_url, user_id)
        VALUES (?, ?, ?, ?, ?)
        RETURNING created_at
    `

	getVideoQuery = `
        SELECT id, name, thumbnail_url, video_url, user_id, created_at
        FROM videos WHERE id = ?
    `

	listVideosQuery = `
        SELECT id, name, thumbnail_url, video_url, user_id, created_at
        FROM videos WHERE user_id = ?
        ORDER BY created_at DESC, id DESC
    `

	renameVideoQuery = `
        UPDATE videos SET name = ? WHERE id = ?
        RETURNING user_id
    `

	deleteVideoQuery = `
        DELETE FROM videos WHERE id = ?
        RETURNING user_id
    `
)

type statements struct {
	insert *sql.Stmt
	get    *sql.Stmt
	list   *sql.Stmt
	rename *sql.Stmt
	delete *sql.Stmt
}

func prepareStatements(db *sql.DB) (*statements, error) {
	s := &statements{}
	queries := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.insert, insertVideoQuery},
		{&s.get, getVideoQuery},
		{&s.list, listVideosQuery},
		{&s.rename, renameVideoQuery},
		{&s.delete, deleteVideoQuery},
	}

	for _, q := range queries {
		stmt, err := db.Prepare(q.query)
		if err != nil {
			s.close()
			return nil, err
		}
		*q.dst = stmt
	}

	return s, nil
}

func (s *statements) close() {
	for _, stmt := range []*sql.Stmt{s.insert, s.get, s.list, s.rename, s.delete} {
		if stmt != nil {
			stmt.Close()
		}
	}
}
