package data

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrTokenNotFound = errors.New("reset token not found")
	ErrTokenUsed     = errors.New("reset token already used")
)

// AdminUsername is the well-known identity the Admin Command Surface treats
// as authorized for camera/user/permission mutations.
const AdminUsername = "admin"

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

type PasswordResetToken struct {
	ID        uuid.UUID
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

type UserModel struct {
	DB DBTX
}

func (m UserModel) GetByUsername(ctx context.Context, username string) (*User, error) {
	query := `SELECT id, username, password_hash, is_admin, created_at FROM users WHERE username = $1`
	var u User
	err := m.DB.QueryRowContext(ctx, query, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (m UserModel) GetByID(ctx context.Context, id int64) (*User, error) {
	query := `SELECT id, username, password_hash, is_admin, created_at FROM users WHERE id = $1`
	var u User
	err := m.DB.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (m UserModel) Create(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (username, password_hash, is_admin)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
	return m.DB.QueryRowContext(ctx, query, u.Username, u.PasswordHash, u.IsAdmin).Scan(&u.ID, &u.CreatedAt)
}

func (m UserModel) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := m.DB.ExecContext(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, id)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (m UserModel) Delete(ctx context.Context, id int64) error {
	res, err := m.DB.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (m UserModel) List(ctx context.Context) ([]*User, error) {
	query := `SELECT id, username, password_hash, is_admin, created_at FROM users ORDER BY id`
	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

// --- Password reset tokens ---

func (m UserModel) CreateResetToken(ctx context.Context, t *PasswordResetToken) error {
	query := `
		INSERT INTO password_reset_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
	return m.DB.QueryRowContext(ctx, query, t.UserID, t.TokenHash, t.ExpiresAt).Scan(&t.ID, &t.CreatedAt)
}

func (m UserModel) GetResetToken(ctx context.Context, hash string) (*PasswordResetToken, error) {
	query := `SELECT id, user_id, token_hash, expires_at, used_at FROM password_reset_tokens WHERE token_hash = $1`
	var t PasswordResetToken
	err := m.DB.QueryRowContext(ctx, query, hash).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.UsedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (m UserModel) MarkTokenUsed(ctx context.Context, id uuid.UUID) error {
	res, err := m.DB.ExecContext(ctx, `UPDATE password_reset_tokens SET used_at = NOW() WHERE id = $1 AND used_at IS NULL`, id)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrTokenUsed
	}
	return nil
}
