package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Unique constraints declared by the users migration.
const (
	usernameConstraint = "users_username_key"
	emailConstraint    = "users_email_key"

	uniqueViolation = "23505"
)

const userColumns = `id, first_name, last_name, username, email, password_hash, role,
		is_enabled, is_verified, created_at, updated_at`

// PostgresUserRepository is a PostgreSQL implementation of UserRepository.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresUserRepository creates a new PostgreSQL user repository.
func NewPostgresUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create creates a new user.
func (r *PostgresUserRepository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.FirstName,
		user.LastName,
		user.Username,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.IsEnabled,
		user.IsVerified,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return mapUniqueViolation(err)
}

// FindByID finds a user by their internal ID.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (*User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindByUsername finds a user by username.
func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

// FindByEmail finds a user by email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

// MarkVerified flags the user's email as verified.
func (r *PostgresUserRepository) MarkVerified(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE users
		SET is_verified = TRUE, updated_at = $1
		WHERE id = $2
	`

	tag, err := r.pool.Exec(ctx, query, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PostgresUserRepository) findOne(ctx context.Context, query string, arg any) (*User, error) {
	var user User
	var role string
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.IsEnabled,
		&user.IsVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	user.Role = Role(role)

	return &user, nil
}

// mapUniqueViolation turns duplicate username or email inserts into the
// matching service errors.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case usernameConstraint:
		return ErrUsernameTaken
	case emailConstraint:
		return ErrEmailTaken
	}
	return err
}

// PostgresVerificationTokenRepository is a PostgreSQL implementation of
// VerificationTokenRepository.
type PostgresVerificationTokenRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresVerificationTokenRepository creates a new PostgreSQL token repository.
func NewPostgresVerificationTokenRepository(pool *pgxpool.Pool) *PostgresVerificationTokenRepository {
	return &PostgresVerificationTokenRepository{pool: pool}
}

// Create stores a new token.
func (r *PostgresVerificationTokenRepository) Create(ctx context.Context, token *VerificationToken) error {
	query := `
		INSERT INTO email_verification_tokens (token, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.pool.Exec(ctx, query,
		token.Token,
		token.UserID,
		token.ExpiresAt,
		token.CreatedAt,
	)
	return err
}

// FindByToken finds a token by its value.
func (r *PostgresVerificationTokenRepository) FindByToken(ctx context.Context, value string) (*VerificationToken, error) {
	query := `
		SELECT token, user_id, expires_at, created_at
		FROM email_verification_tokens
		WHERE token = $1
	`

	var token VerificationToken
	err := r.pool.QueryRow(ctx, query, value).Scan(
		&token.Token,
		&token.UserID,
		&token.ExpiresAt,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidVerificationToken
		}
		return nil, err
	}

	return &token, nil
}

// Delete removes a token.
func (r *PostgresVerificationTokenRepository) Delete(ctx context.Context, value string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM email_verification_tokens WHERE token = $1`, value)
	return err
}

// DeleteForUser removes all tokens of a user.
func (r *PostgresVerificationTokenRepository) DeleteForUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM email_verification_tokens WHERE user_id = $1`, userID)
	return err
}
