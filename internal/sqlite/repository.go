package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/openplans/visionstream/internal/domain"
	_ "modernc.org/sqlite"
)

// Repository implements domain.ConversationStore, domain.VisionStore and
// domain.UserStore on SQLite.
type Repository struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	external_id TEXT PRIMARY KEY,
	author_id TEXT NOT NULL,
	author_handle TEXT NOT NULL,
	author_name TEXT NOT NULL,
	text TEXT NOT NULL,
	in_reply_to TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS visions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	post_external_id TEXT NOT NULL UNIQUE,
	author_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	text TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	featured INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS replies (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	post_external_id TEXT NOT NULL UNIQUE,
	vision_id INTEGER NOT NULL REFERENCES visions(id),
	author_id TEXT NOT NULL,
	text TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS shares (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	vision_id INTEGER NOT NULL REFERENCES visions(id),
	user_id TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS vision_supporters (
	vision_id INTEGER NOT NULL REFERENCES visions(id),
	user_id TEXT NOT NULL,
	PRIMARY KEY (vision_id, user_id)
);

CREATE TABLE IF NOT EXISTS users (
	external_id TEXT PRIMARY KEY,
	handle TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	avatar_url TEXT NOT NULL DEFAULT '',
	bio TEXT NOT NULL DEFAULT '',
	visible_on_home INTEGER NOT NULL DEFAULT 0,
	refreshed_at INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC);
`

// NewRepository opens the SQLite database at dbPath, creates the schema if
// needed, and returns a Repository. The caller should call Close when done.
func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL keeps readers from blocking the single writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// UpsertPost inserts or replaces the post keyed by external id. Reports
// whether a new row was created.
func (r *Repository) UpsertPost(ctx context.Context, post *domain.Post) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE external_id = ?`, post.ExternalID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check post %s: %w", post.ExternalID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO posts (external_id, author_id, author_handle, author_name, text, in_reply_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO UPDATE SET
			author_id = excluded.author_id,
			author_handle = excluded.author_handle,
			author_name = excluded.author_name,
			text = excluded.text,
			in_reply_to = excluded.in_reply_to,
			created_at = excluded.created_at`,
		post.ExternalID,
		post.Author.ExternalID,
		post.Author.Handle,
		post.Author.Name,
		post.Text,
		post.InReplyTo,
		post.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("upsert post %s: %w", post.ExternalID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}

	return exists == 0, nil
}

// GetPostByExternalID retrieves a post, or domain.ErrNotFound.
func (r *Repository) GetPostByExternalID(ctx context.Context, externalID string) (*domain.Post, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT external_id, author_id, author_handle, author_name, text, in_reply_to, created_at
		FROM posts WHERE external_id = ?`, externalID,
	)

	post, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", externalID, err)
	}
	return post, nil
}

// DeletePostByExternalID removes a post and reports whether a row existed.
func (r *Repository) DeletePostByExternalID(ctx context.Context, externalID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM posts WHERE external_id = ?`, externalID,
	)
	if err != nil {
		return false, fmt.Errorf("delete post %s: %w", externalID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete post %s: %w", externalID, err)
	}
	return affected > 0, nil
}

// RecentPosts retrieves up to limit posts, newest first.
func (r *Repository) RecentPosts(ctx context.Context, limit int) ([]domain.Post, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT external_id, author_id, author_handle, author_name, text, in_reply_to, created_at
		FROM posts
		ORDER BY created_at DESC, external_id DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent posts: %w", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

// ListCandidates retrieves up to limit unassigned posts, newest first.
func (r *Repository) ListCandidates(ctx context.Context, limit int) ([]domain.Post, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.external_id, p.author_id, p.author_handle, p.author_name, p.text, p.in_reply_to, p.created_at
		FROM posts p
		LEFT JOIN visions v ON v.post_external_id = p.external_id
		LEFT JOIN replies rp ON rp.post_external_id = p.external_id
		WHERE v.id IS NULL AND rp.id IS NULL
		ORDER BY p.created_at DESC, p.external_id DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

// Assignment reports the conversation state of the post with the given
// external id. Unknown posts are reported as unassigned.
func (r *Repository) Assignment(ctx context.Context, externalID string) (domain.ThreadRef, error) {
	var visionID int64

	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM visions WHERE post_external_id = ?`, externalID,
	).Scan(&visionID)
	if err == nil {
		return domain.ThreadRef{Kind: domain.AssignedVision, VisionID: visionID}, nil
	}
	if err != sql.ErrNoRows {
		return domain.ThreadRef{}, fmt.Errorf("check vision for %s: %w", externalID, err)
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT vision_id FROM replies WHERE post_external_id = ?`, externalID,
	).Scan(&visionID)
	if err == nil {
		return domain.ThreadRef{Kind: domain.AssignedReply, VisionID: visionID}, nil
	}
	if err != sql.ErrNoRows {
		return domain.ThreadRef{}, fmt.Errorf("check reply for %s: %w", externalID, err)
	}

	return domain.ThreadRef{Kind: domain.Unassigned}, nil
}

// MarkAsVision promotes a post to a thread root. Idempotent for a post that
// is already a vision; fails for a post that is already a reply.
func (r *Repository) MarkAsVision(ctx context.Context, post *domain.Post) (*domain.Vision, error) {
	ref, err := r.Assignment(ctx, post.ExternalID)
	if err != nil {
		return nil, err
	}
	if ref.Kind == domain.AssignedReply {
		return nil, fmt.Errorf("post %s is already a reply", post.ExternalID)
	}

	if ref.Kind == domain.Unassigned {
		now := time.Now().UTC().UnixMilli()
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO visions (post_external_id, author_id, title, text, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (post_external_id) DO NOTHING`,
			post.ExternalID,
			post.Author.ExternalID,
			truncate(post.Text, 160),
			post.Text,
			now,
			now,
		)
		if err != nil {
			return nil, fmt.Errorf("insert vision for %s: %w", post.ExternalID, err)
		}
	}

	return r.getVisionByPost(ctx, post.ExternalID)
}

// MarkAsReply promotes a post to a reply under the given vision. Idempotent
// for a post that is already a reply; fails for a post that is already a
// vision.
func (r *Repository) MarkAsReply(ctx context.Context, post *domain.Post, visionID int64) (*domain.Reply, error) {
	ref, err := r.Assignment(ctx, post.ExternalID)
	if err != nil {
		return nil, err
	}
	if ref.Kind == domain.AssignedVision {
		return nil, fmt.Errorf("post %s is already a vision", post.ExternalID)
	}

	if ref.Kind == domain.Unassigned {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO replies (post_external_id, vision_id, author_id, text, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (post_external_id) DO NOTHING`,
			post.ExternalID,
			visionID,
			post.Author.ExternalID,
			post.Text,
			time.Now().UTC().UnixMilli(),
		)
		if err != nil {
			return nil, fmt.Errorf("insert reply for %s: %w", post.ExternalID, err)
		}
	}

	return r.getReplyByPost(ctx, post.ExternalID)
}

// GetVision retrieves a vision by id, or domain.ErrNotFound.
func (r *Repository) GetVision(ctx context.Context, id int64) (*domain.Vision, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, post_external_id, author_id, title, text, category, featured, created_at, updated_at
		FROM visions WHERE id = ?`, id,
	)

	vision, err := scanVision(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vision %d: %w", id, err)
	}
	return vision, nil
}

// AddSupporter records a user's support for a vision. Idempotent.
func (r *Repository) AddSupporter(ctx context.Context, visionID int64, userExternalID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO vision_supporters (vision_id, user_id) VALUES (?, ?)`,
		visionID, userExternalID,
	)
	if err != nil {
		return fmt.Errorf("add supporter %s to vision %d: %w", userExternalID, visionID, err)
	}
	return nil
}

// CreateShare records an external share of a vision by a user.
func (r *Repository) CreateShare(ctx context.Context, visionID int64, userExternalID string) (*domain.Share, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO shares (vision_id, user_id, created_at) VALUES (?, ?, ?)`,
		visionID, userExternalID, now.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("create share for vision %d: %w", visionID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create share for vision %d: %w", visionID, err)
	}

	return &domain.Share{
		ID:             id,
		VisionID:       visionID,
		UserExternalID: userExternalID,
		CreatedAt:      now,
	}, nil
}

// SetFeatured sets the vision's featured flag.
func (r *Repository) SetFeatured(ctx context.Context, visionID int64, featured bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE visions SET featured = ?, updated_at = ? WHERE id = ?`,
		boolToInt(featured), time.Now().UTC().UnixMilli(), visionID,
	)
	if err != nil {
		return fmt.Errorf("set featured on vision %d: %w", visionID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set featured on vision %d: %w", visionID, err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetCategory assigns a category label to a vision.
func (r *Repository) SetCategory(ctx context.Context, visionID int64, category string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE visions SET category = ?, updated_at = ? WHERE id = ?`,
		category, time.Now().UTC().UnixMilli(), visionID,
	)
	if err != nil {
		return fmt.Errorf("set category on vision %d: %w", visionID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set category on vision %d: %w", visionID, err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpsertUser inserts the user or updates its cached profile fields. The
// visible_on_home flag is operator-owned and preserved on update.
func (r *Repository) UpsertUser(ctx context.Context, user *domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (external_id, handle, name, avatar_url, bio, visible_on_home, refreshed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO UPDATE SET
			handle = excluded.handle,
			name = excluded.name,
			avatar_url = excluded.avatar_url,
			bio = excluded.bio,
			refreshed_at = excluded.refreshed_at`,
		user.ExternalID,
		user.Handle,
		user.Name,
		user.AvatarURL,
		user.Bio,
		boolToInt(user.VisibleOnHome),
		user.RefreshedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", user.ExternalID, err)
	}
	return nil
}

// ListUsers retrieves all users ordered by external id.
func (r *Repository) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT external_id, handle, name, avatar_url, bio, visible_on_home, refreshed_at
		FROM users ORDER BY external_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var (
			u         domain.User
			visible   int
			refreshed int64
		)
		err := rows.Scan(&u.ExternalID, &u.Handle, &u.Name, &u.AvatarURL, &u.Bio, &visible, &refreshed)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.VisibleOnHome = visible != 0
		u.RefreshedAt = time.UnixMilli(refreshed).UTC()
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (r *Repository) getVisionByPost(ctx context.Context, externalID string) (*domain.Vision, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, post_external_id, author_id, title, text, category, featured, created_at, updated_at
		FROM visions WHERE post_external_id = ?`, externalID,
	)

	vision, err := scanVision(row)
	if err != nil {
		return nil, fmt.Errorf("get vision for post %s: %w", externalID, err)
	}
	return vision, nil
}

func (r *Repository) getReplyByPost(ctx context.Context, externalID string) (*domain.Reply, error) {
	var (
		reply   domain.Reply
		created int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, post_external_id, vision_id, author_id, text, created_at
		FROM replies WHERE post_external_id = ?`, externalID,
	).Scan(&reply.ID, &reply.PostExternalID, &reply.VisionID, &reply.AuthorExternalID, &reply.Text, &created)
	if err != nil {
		return nil, fmt.Errorf("get reply for post %s: %w", externalID, err)
	}

	reply.CreatedAt = time.UnixMilli(created).UTC()
	return &reply, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*domain.Post, error) {
	var (
		p       domain.Post
		created int64
	)
	err := row.Scan(
		&p.ExternalID,
		&p.Author.ExternalID,
		&p.Author.Handle,
		&p.Author.Name,
		&p.Text,
		&p.InReplyTo,
		&created,
	)
	if err != nil {
		return nil, err
	}

	p.CreatedAt = time.UnixMilli(created).UTC()
	return &p, nil
}

func scanVision(row rowScanner) (*domain.Vision, error) {
	var (
		v        domain.Vision
		featured int
		created  int64
		updated  int64
	)
	err := row.Scan(
		&v.ID,
		&v.PostExternalID,
		&v.AuthorExternalID,
		&v.Title,
		&v.Text,
		&v.Category,
		&featured,
		&created,
		&updated,
	)
	if err != nil {
		return nil, err
	}

	v.Featured = featured != 0
	v.CreatedAt = time.UnixMilli(created).UTC()
	v.UpdatedAt = time.UnixMilli(updated).UTC()
	return &v, nil
}

func collectPosts(rows *sql.Rows) ([]domain.Post, error) {
	var posts []domain.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, *post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
