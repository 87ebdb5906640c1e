// Package sqlite implements store.Store on modernc.org/sqlite.
//
// Timestamps are stored as Unix nanoseconds.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	errs "igharvest/pkg/errors"
	"igharvest/pkg/models"
	"igharvest/pkg/store"
)

//go:embed schema.sql
var Schema string

// Store is a sqlite-backed store.Store
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at dsn and applies the schema.
// ":memory:" gives a private in-memory database.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeStore, err, "open %s", dsn)
	}
	// one connection: sqlite has a single writer and :memory: is per connection
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL", Schema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, errs.Wrap(errs.ErrorTypeStore, err, "initialise %s", dsn)
		}
	}
	return &Store{db: db, now: time.Now}, nil
}

// New wraps an already open database; the schema must be applied
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Contents() store.ContentStore     { return contents{s} }
func (s *Store) Executions() store.ExecutionStore { return executions{s} }
func (s *Store) Profiles() store.ProfileStore     { return profiles{s} }

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func nanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: nanos(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errs.Wrap(errs.ErrorTypeStore, err, format, args...)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// contents

type contents struct{ s *Store }

const contentColumns = `id, profile_id, external_id, url, media_url, caption, kind, collected_at,
	published_at, thumbnail_path, media_path, image_blob, image_mime_type, likes, comments, views`

func scanContent(row scanner) (models.ContentRecord, error) {
	var (
		rec                    models.ContentRecord
		kind                   string
		collected              int64
		published              sql.NullInt64
		likes, comments, views sql.NullInt64
	)
	err := row.Scan(&rec.ID, &rec.ProfileID, &rec.ExternalID, &rec.URL, &rec.MediaURL, &rec.Caption,
		&kind, &collected, &published, &rec.ThumbnailPath, &rec.MediaPath, &rec.ImageBlob,
		&rec.ImageMIMEType, &likes, &comments, &views)
	if err != nil {
		return rec, err
	}
	rec.Kind = models.ContentKind(kind)
	rec.CollectedAt = fromNanos(collected)
	rec.PublishedAt = timePtr(published)
	rec.Likes, rec.Comments, rec.Views = intPtr(likes), intPtr(comments), intPtr(views)
	return rec, nil
}

func (c contents) ExistsByExternalID(ctx context.Context, externalID string) (bool, error) {
	var one int
	err := c.s.db.QueryRowContext(ctx, `SELECT 1 FROM contents WHERE external_id = ?`, externalID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, wrap(err, "exists %s", externalID)
}

func (c contents) FindByExternalID(ctx context.Context, externalID string) (*models.ContentRecord, error) {
	row := c.s.db.QueryRowContext(ctx, `SELECT `+contentColumns+` FROM contents WHERE external_id = ?`, externalID)
	rec, err := scanContent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, wrap(err, "find %s", externalID)
	}
	return &rec, nil
}

// upsertContent only updates when the incoming row carries the existing id;
// any other duplicate external id is a no-op
const upsertContent = `INSERT INTO contents (` + contentColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (external_id) DO UPDATE SET
	url = excluded.url,
	media_url = excluded.media_url,
	caption = excluded.caption,
	kind = excluded.kind,
	collected_at = excluded.collected_at,
	published_at = excluded.published_at,
	thumbnail_path = excluded.thumbnail_path,
	media_path = excluded.media_path,
	image_blob = excluded.image_blob,
	image_mime_type = excluded.image_mime_type,
	likes = excluded.likes,
	comments = excluded.comments,
	views = excluded.views
WHERE contents.id = excluded.id`

func (c contents) SaveAll(ctx context.Context, records []models.ContentRecord) ([]models.ContentRecord, error) {
	tx, err := c.s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap(err, "begin")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertContent)
	if err != nil {
		return nil, wrap(err, "prepare upsert")
	}
	defer stmt.Close()

	saved := make([]models.ContentRecord, 0, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CollectedAt.IsZero() {
			rec.CollectedAt = c.s.now()
		}
		res, err := stmt.ExecContext(ctx, rec.ID, rec.ProfileID, rec.ExternalID, rec.URL, rec.MediaURL,
			rec.Caption, string(rec.Kind), nanos(rec.CollectedAt), nullTime(rec.PublishedAt),
			rec.ThumbnailPath, rec.MediaPath, rec.ImageBlob, rec.ImageMIMEType,
			nullInt(rec.Likes), nullInt(rec.Comments), nullInt(rec.Views))
		if err != nil {
			return nil, wrap(err, "save %s", rec.ExternalID)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			saved = append(saved, rec)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, wrap(err, "commit")
	}
	return saved, nil
}

func (c contents) FindByProfile(ctx context.Context, profileID string) ([]models.ContentRecord, error) {
	rows, err := c.s.db.QueryContext(ctx,
		`SELECT `+contentColumns+` FROM contents WHERE profile_id = ? ORDER BY collected_at DESC`, profileID)
	if err != nil {
		return nil, wrap(err, "list contents")
	}
	defer rows.Close()

	var out []models.ContentRecord
	for rows.Next() {
		rec, err := scanContent(rows)
		if err != nil {
			return nil, wrap(err, "scan content")
		}
		out = append(out, rec)
	}
	return out, wrap(rows.Err(), "list contents")
}

// executions

type executions struct{ s *Store }

const executionColumns = `id, profile_id, username, started_at, finished_at, status, attempt_number,
	posts_found, posts_processed, posts_new, posts_updated, posts_skipped, captions_extracted,
	images_saved, error_message, user_agent, viewport, execution_time_ms, force_update`

func scanExecution(row scanner) (models.ExecutionRecord, error) {
	var (
		rec      models.ExecutionRecord
		started  int64
		finished sql.NullInt64
		status   string
	)
	err := row.Scan(&rec.ID, &rec.ProfileID, &rec.Username, &started, &finished, &status,
		&rec.AttemptNumber, &rec.PostsFound, &rec.PostsProcessed, &rec.PostsNew, &rec.PostsUpdated,
		&rec.PostsSkipped, &rec.CaptionsExtracted, &rec.ImagesSaved, &rec.ErrorMessage,
		&rec.UserAgent, &rec.Viewport, &rec.ExecutionTimeMs, &rec.ForceUpdate)
	if err != nil {
		return rec, err
	}
	rec.StartedAt = fromNanos(started)
	rec.FinishedAt = timePtr(finished)
	rec.Status = models.ExecutionStatus(status)
	return rec, nil
}

func (e executions) Save(ctx context.Context, rec *models.ExecutionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := e.s.db.ExecContext(ctx, `INSERT OR REPLACE INTO executions (`+executionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ProfileID, rec.Username, nanos(rec.StartedAt), nullTime(rec.FinishedAt),
		string(rec.Status), rec.AttemptNumber, rec.PostsFound, rec.PostsProcessed, rec.PostsNew,
		rec.PostsUpdated, rec.PostsSkipped, rec.CaptionsExtracted, rec.ImagesSaved,
		rec.ErrorMessage, rec.UserAgent, rec.Viewport, rec.ExecutionTimeMs, rec.ForceUpdate)
	return wrap(err, "save execution %s", rec.ID)
}

func (e executions) query(ctx context.Context, where string, args ...interface{}) ([]models.ExecutionRecord, error) {
	rows, err := e.s.db.QueryContext(ctx, `SELECT `+executionColumns+` FROM executions `+where, args...)
	if err != nil {
		return nil, wrap(err, "query executions")
	}
	defer rows.Close()

	var out []models.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, wrap(err, "scan execution")
		}
		out = append(out, rec)
	}
	return out, wrap(rows.Err(), "query executions")
}

func (e executions) FindLatestByProfile(ctx context.Context, profileID string) (*models.ExecutionRecord, error) {
	recs, err := e.query(ctx, `WHERE profile_id = ? ORDER BY started_at DESC LIMIT 1`, profileID)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, store.ErrNotFound
	}
	return &recs[0], nil
}

func (e executions) FindRecent(ctx context.Context, limit int) ([]models.ExecutionRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	return e.query(ctx, `ORDER BY started_at DESC LIMIT ?`, limit)
}

func (e executions) FindSuccessfulByProfile(ctx context.Context, profileID string) ([]models.ExecutionRecord, error) {
	return e.query(ctx, `WHERE profile_id = ? AND status IN (?, ?) ORDER BY started_at DESC`,
		profileID, string(models.StatusSuccess), string(models.StatusPartialSuccess))
}

func (e executions) HasRecentSuccess(ctx context.Context, profileID string, since time.Time) (bool, error) {
	var n int
	err := e.s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM executions WHERE profile_id = ? AND status IN (?, ?) AND started_at >= ?`,
		profileID, string(models.StatusSuccess), string(models.StatusPartialSuccess), nanos(since)).Scan(&n)
	if err != nil {
		return false, wrap(err, "recent success %s", profileID)
	}
	return n > 0, nil
}

// profiles

type profiles struct{ s *Store }

const profileColumns = `id, username, display_name, active, created_at, updated_at`

func scanProfile(row scanner) (models.Profile, error) {
	var (
		p                models.Profile
		created, updated int64
	)
	if err := row.Scan(&p.ID, &p.Username, &p.DisplayName, &p.Active, &created, &updated); err != nil {
		return p, err
	}
	p.CreatedAt, p.UpdatedAt = fromNanos(created), fromNanos(updated)
	return p, nil
}

func (p profiles) FindByUsername(ctx context.Context, username string) (*models.Profile, error) {
	row := p.s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE username = ?`, username)
	prof, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, wrap(err, "find profile %s", username)
	}
	return &prof, nil
}

// Save inserts a new profile or updates the one with the same username,
// keeping its id and creation time
func (p profiles) Save(ctx context.Context, prof *models.Profile) error {
	if prof.Username == "" {
		return errs.New(errs.ErrorTypeStore, "profile without username")
	}
	if existing, err := p.FindByUsername(ctx, prof.Username); err == nil {
		prof.ID = existing.ID
		prof.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	now := p.s.now()
	if prof.ID == "" {
		prof.ID = uuid.NewString()
	}
	if prof.CreatedAt.IsZero() {
		prof.CreatedAt = now
	}
	prof.UpdatedAt = now

	_, err := p.s.db.ExecContext(ctx, `INSERT INTO profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			display_name = excluded.display_name,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		prof.ID, prof.Username, prof.DisplayName, prof.Active, nanos(prof.CreatedAt), nanos(prof.UpdatedAt))
	return wrap(err, "save profile %s", prof.Username)
}

func (p profiles) List(ctx context.Context) ([]models.Profile, error) {
	rows, err := p.s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY username`)
	if err != nil {
		return nil, wrap(err, "list profiles")
	}
	defer rows.Close()

	var out []models.Profile
	for rows.Next() {
		prof, err := scanProfile(rows)
		if err != nil {
			return nil, wrap(err, "scan profile")
		}
		out = append(out, prof)
	}
	return out, wrap(rows.Err(), "list profiles")
}

var _ store.Store = (*Store)(nil)
