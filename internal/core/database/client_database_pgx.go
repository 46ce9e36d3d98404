package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/fayaebeb/mirai-mod/internal/config"
	"github.com/fayaebeb/mirai-mod/internal/core"
	"github.com/fayaebeb/mirai-mod/internal/models"
)

var _ core.DbClient = (*DatabaseClient)(nil)

type DatabaseClient struct {
	db *sql.DB
}

// DSN returns DATABASE_URL, pinned to verify-ca when SSL_CERT_PATH is set.
func DSN(cfg *config.Config) (string, error) {
	if cfg.DatabaseURL == "" {
		return "", errors.New("DATABASE_URL is empty")
	}
	if cfg.SslCertPath == "" {
		return cfg.DatabaseURL, nil
	}
	if _, err := os.Stat(cfg.SslCertPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
	}

	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", cfg.SslCertPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// NewDatabaseClient opens the pool, pings it and applies the metadata
// migrations.
func NewDatabaseClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := RunMigrations(dsn, MetadataMigrations, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DatabaseClient{db: db}, nil
}

// DB exposes the pool so the pgvector index can share it.
func (c *DatabaseClient) DB() *sql.DB { return c.db }

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (username, password_hash)
		VALUES ($1, $2)
		RETURNING id, created_at
	`
	err := c.db.QueryRowContext(ctx, q, user.Username, user.PasswordHash).Scan(&user.ID, &user.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("username %q: %w", user.Username, core.ErrConflict)
	}
	return err
}

func (c *DatabaseClient) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	const q = `
		SELECT id, username, password_hash, created_at
		FROM users WHERE lower(username) = lower($1)
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Files

const fileColumns = `id, filename, original_name, content_type, size, status, session_id, user_id, created_at`

func scanFile(row interface{ Scan(...any) error }) (*models.FileRecord, error) {
	var f models.FileRecord
	if err := row.Scan(
		&f.ID, &f.Filename, &f.OriginalName, &f.ContentType, &f.Size, &f.Status, &f.SessionID, &f.UserID, &f.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *DatabaseClient) CreateFile(ctx context.Context, rec *models.FileRecord) error {
	if rec == nil {
		return errors.New("nil file record")
	}
	const q = `
		INSERT INTO files (filename, original_name, content_type, size, status, session_id, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	return c.db.QueryRowContext(ctx, q,
		rec.Filename, rec.OriginalName, rec.ContentType, rec.Size, string(rec.Status), rec.SessionID, rec.UserID,
	).Scan(&rec.ID, &rec.CreatedAt)
}

func (c *DatabaseClient) GetFile(ctx context.Context, id int64) (*models.FileRecord, error) {
	q := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`
	f, err := scanFile(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	return f, err
}

func (c *DatabaseClient) ListFiles(ctx context.Context) ([]models.FileRecord, error) {
	q := `SELECT ` + fileColumns + ` FROM files ORDER BY created_at DESC, id DESC`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.FileRecord{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) DeleteFile(ctx context.Context, id int64) (*models.FileRecord, error) {
	q := `DELETE FROM files WHERE id = $1 RETURNING ` + fileColumns
	f, err := scanFile(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	return f, err
}

func (c *DatabaseClient) FinalizeFile(ctx context.Context, id int64, status models.FileStatus, msg *models.ChatMessage) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("status %q is not terminal", status)
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE files SET status = $2 WHERE id = $1 AND status = 'processing'`, id, string(status))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM files WHERE id = $1)`, id).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			return false, core.ErrNotFound
		}
		return false, nil
	}

	if err := insertMessage(ctx, tx, msg); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// Messages

const messageColumns = `m.id, m.content, m.is_bot, m.session_id, m.user_id, m.file_id, m.correlation_id, m.created_at`

func scanMessage(row interface{ Scan(...any) error }) (*models.ChatMessage, error) {
	var (
		m      models.ChatMessage
		fileID sql.NullInt64
		corrID sql.NullString
	)
	if err := row.Scan(&m.ID, &m.Content, &m.IsBot, &m.SessionID, &m.UserID, &fileID, &corrID, &m.CreatedAt); err != nil {
		return nil, err
	}
	if fileID.Valid {
		m.FileID = &fileID.Int64
	}
	if corrID.Valid {
		m.CorrelationID = &corrID.String
	}
	return &m, nil
}

type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertMessage(ctx context.Context, ex execer, msg *models.ChatMessage) error {
	if msg == nil {
		return errors.New("nil message")
	}
	const q = `
		INSERT INTO messages (content, is_bot, session_id, user_id, file_id, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	return ex.QueryRowContext(ctx, q,
		msg.Content, msg.IsBot, msg.SessionID, msg.UserID, msg.FileID, msg.CorrelationID,
	).Scan(&msg.ID, &msg.CreatedAt)
}

func (c *DatabaseClient) CreateMessage(ctx context.Context, msg *models.ChatMessage) error {
	return insertMessage(ctx, c.db, msg)
}

func (c *DatabaseClient) GetMessage(ctx context.Context, id int64) (*models.ChatMessage, error) {
	q := `SELECT ` + messageColumns + ` FROM messages m WHERE m.id = $1`
	m, err := scanMessage(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	return m, err
}

// visibleMessages hides outcome messages whose file has been deleted.
const visibleMessages = `
	SELECT ` + messageColumns + `
	FROM messages m
	LEFT JOIN files f ON f.id = m.file_id
	WHERE (m.file_id IS NULL OR f.id IS NOT NULL)
`

func (c *DatabaseClient) listMessages(ctx context.Context, q string, args ...any) ([]models.ChatMessage, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ChatMessage{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) ListMessages(ctx context.Context, userID int64, sessionID string) ([]models.ChatMessage, error) {
	return c.listMessages(ctx,
		visibleMessages+` AND m.user_id = $1 AND m.session_id = $2 ORDER BY m.created_at, m.id`,
		userID, sessionID)
}

func (c *DatabaseClient) ListMessagesBySession(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	return c.listMessages(ctx,
		visibleMessages+` AND m.session_id = $1 ORDER BY m.created_at, m.id`,
		sessionID)
}

func (c *DatabaseClient) DeleteMessage(ctx context.Context, id int64) (*models.ChatMessage, error) {
	q := `DELETE FROM messages m WHERE m.id = $1 RETURNING ` + messageColumns
	m, err := scanMessage(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	return m, err
}

func (c *DatabaseClient) ListSessionIDs(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT session_id FROM messages WHERE session_id <> '' ORDER BY session_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
