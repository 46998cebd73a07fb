package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"storyweaver/pkg/schema"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS datasets (
    story_id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    version INTEGER NOT NULL,
    payload TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS stories (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stories_created ON stories(created_at);
`

// SQLiteStore keeps each dataset and story as a JSON document keyed by id.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens or creates the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection keeps ":memory:" a single database and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) GetDataset(ctx context.Context, storyID string) (*schema.StoryLogicDataset, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM datasets WHERE story_id = ?`, storyID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("dataset", storyID)
	}
	if err != nil {
		return nil, err
	}
	var ds schema.StoryLogicDataset
	if err := json.Unmarshal([]byte(payload), &ds); err != nil {
		return nil, fmt.Errorf("decode dataset %q: %w", storyID, err)
	}
	return &ds, nil
}

func (s *SQLiteStore) CreateDataset(ctx context.Context, ds *schema.StoryLogicDataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(ds)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO datasets (story_id, title, version, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(story_id) DO NOTHING`,
		ds.StoryID, ds.Title, ds.Version, string(payload), ds.LastUpdated.UnixMilli())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return exists("dataset", ds.StoryID)
	}
	return nil
}

func (s *SQLiteStore) UpdateDataset(ctx context.Context, ds *schema.StoryLogicDataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(ds)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE datasets SET title = ?, version = ?, payload = ?, updated_at = ?
		WHERE story_id = ?`,
		ds.Title, ds.Version, string(payload), ds.LastUpdated.UnixMilli(), ds.StoryID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("dataset", ds.StoryID)
	}
	return nil
}

func (s *SQLiteStore) ListDatasets(ctx context.Context) ([]*schema.StoryLogicDataset, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT story_id, payload FROM datasets ORDER BY story_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*schema.StoryLogicDataset{}
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var ds schema.StoryLogicDataset
		if err := json.Unmarshal([]byte(payload), &ds); err != nil {
			return nil, fmt.Errorf("decode dataset %q: %w", id, err)
		}
		out = append(out, &ds)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteDataset(ctx context.Context, storyID string) error {
	return s.delete(ctx, `DELETE FROM datasets WHERE story_id = ?`, "dataset", storyID)
}

func (s *SQLiteStore) GetStory(ctx context.Context, id string) (*schema.Story, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM stories WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("story", id)
	}
	if err != nil {
		return nil, err
	}
	var st schema.Story
	if err := json.Unmarshal([]byte(payload), &st); err != nil {
		return nil, fmt.Errorf("decode story %q: %w", id, err)
	}
	return &st, nil
}

func (s *SQLiteStore) CreateStory(ctx context.Context, st *schema.Story) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO stories (id, title, payload, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		st.ID, st.Title, string(payload), st.CreatedAt.UnixMilli())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return exists("story", st.ID)
	}
	return nil
}

func (s *SQLiteStore) UpdateStory(ctx context.Context, st *schema.Story) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE stories SET title = ?, payload = ? WHERE id = ?`, st.Title, string(payload), st.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("story", st.ID)
	}
	return nil
}

func (s *SQLiteStore) ListStories(ctx context.Context) ([]*schema.Story, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, payload FROM stories ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*schema.Story{}
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var st schema.Story
		if err := json.Unmarshal([]byte(payload), &st); err != nil {
			return nil, fmt.Errorf("decode story %q: %w", id, err)
		}
		out = append(out, &st)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteStory(ctx context.Context, id string) error {
	return s.delete(ctx, `DELETE FROM stories WHERE id = ?`, "story", id)
}

func (s *SQLiteStore) delete(ctx context.Context, query, kind, id string) error {
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(kind, id)
	}
	return nil
}
