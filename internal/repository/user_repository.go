package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"imagevault/internal/models"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrTokenCollision    = errors.New("token collision")
)

const userColumns = `id, username, password_hash, token_hash, image_seq, created_at, updated_at`

type UserRepository struct {
	db DB
}

func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new account with its first token digest and the initial image sequence.
func (r *UserRepository) Create(ctx context.Context, username string, passwordHash, tokenHash []byte) (models.User, error) {
	const query = `
		INSERT INTO users (username, password_hash, token_hash, image_seq, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING ` + userColumns

	row := r.db.QueryRow(ctx, query, username, passwordHash, tokenHash, models.InitialImageSeq)
	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err, "users_username_key") {
			return models.User{}, ErrDuplicateUsername
		}
		if isUniqueViolation(err, "users_token_hash_key") {
			return models.User{}, ErrTokenCollision
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return r.findOne(ctx, query, username)
}

func (r *UserRepository) FindByTokenHash(ctx context.Context, tokenHash []byte) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE token_hash = $1`
	return r.findOne(ctx, query, tokenHash)
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.findOne(ctx, query, id)
}

// SetTokenHash replaces the stored token digest unconditionally.
func (r *UserRepository) SetTokenHash(ctx context.Context, id int64, tokenHash []byte) error {
	const query = `UPDATE users SET token_hash = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.db.Exec(ctx, query, id, tokenHash)
	if err != nil {
		if isUniqueViolation(err, "users_token_hash_key") {
			return ErrTokenCollision
		}
		return fmt.Errorf("update token: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) SetPasswordHash(ctx context.Context, id int64, passwordHash []byte) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.db.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ReserveImageSeq advances the counter by one in a single statement and returns
// the value it held before, which the caller owns exclusively.
func (r *UserRepository) ReserveImageSeq(ctx context.Context, id int64) (int64, error) {
	const query = `
		UPDATE users
		SET image_seq = image_seq + 1,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING image_seq - 1
	`
	var seq int64
	if err := r.db.QueryRow(ctx, query, id).Scan(&seq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("reserve image seq: %w", err)
	}
	return seq, nil
}

func (r *UserRepository) findOne(ctx context.Context, query string, arg any) (models.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.TokenHash,
		&user.ImageSeq,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}
