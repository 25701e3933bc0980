package identity

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository on top of a pgx connection pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a Repository backed by the given pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, acct *Account) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, username, password_hash) VALUES ($1, $2, $3)`,
		acct.ID, acct.Username, acct.PasswordHash,
	)
	return err
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*Account, error) {
	return r.scanOne(r.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, avatar_url, created_at, last_login_at
		 FROM users WHERE username = $1`,
		username,
	))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Account, error) {
	return r.scanOne(r.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, avatar_url, created_at, last_login_at
		 FROM users WHERE id = $1`,
		id,
	))
}

func (r *PostgresRepository) scanOne(row pgx.Row) (*Account, error) {
	var acct Account
	err := row.Scan(
		&acct.ID,
		&acct.Username,
		&acct.PasswordHash,
		&acct.AvatarURL,
		&acct.CreatedAt,
		&acct.LastLoginAt,
	)
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (r *PostgresRepository) UpdateUsername(ctx context.Context, id string, username string) error {
	return r.exec(ctx, `UPDATE users SET username = $2 WHERE id = $1`, id, username)
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	return r.exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
}

func (r *PostgresRepository) UpdateAvatar(ctx context.Context, id string, avatarURL string) error {
	return r.exec(ctx, `UPDATE users SET avatar_url = $2 WHERE id = $1`, id, avatarURL)
}

func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE users SET last_login_at = now() WHERE id = $1`, id)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, `DELETE FROM users WHERE id = $1`, id)
}

// exec runs a statement that targets a single account and maps a zero row count
// to ErrNotFound.
func (r *PostgresRepository) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
