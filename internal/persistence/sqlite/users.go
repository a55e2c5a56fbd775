package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/studenthub/internal/application"
)

// CreateUser stores a new account with its credentials.
func (s *Store) CreateUser(ctx context.Context, creds application.UserCredentials) (application.User, error) {
	user := creds.User
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, strings.ToLower(user.Email), user.DisplayName, creds.PasswordHash,
		formatTime(user.CreatedAt), formatTime(user.UpdatedAt))
	if err != nil {
		return application.User{}, mapError(err)
	}
	return user, nil
}

// GetUser retrieves an account by id.
func (s *Store) GetUser(ctx context.Context, id string) (application.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, created_at, updated_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserCredentialsByEmail retrieves the stored credentials for an email.
func (s *Store) GetUserCredentialsByEmail(ctx context.Context, email string) (application.UserCredentials, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, password_hash, created_at, updated_at
		 FROM users WHERE email = ?`, strings.ToLower(email))

	var (
		creds                application.UserCredentials
		createdAt, updatedAt string
	)
	err := row.Scan(&creds.User.ID, &creds.User.Email, &creds.User.DisplayName,
		&creds.PasswordHash, &createdAt, &updatedAt)
	if err != nil {
		return application.UserCredentials{}, mapError(err)
	}
	if creds.User.CreatedAt, err = parseTime(createdAt); err != nil {
		return application.UserCredentials{}, fmt.Errorf("parse created_at: %w", err)
	}
	if creds.User.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return application.UserCredentials{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return creds, nil
}

// ListUserIDs enumerates account ids for sweep iteration.
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanUser(row *sql.Row) (application.User, error) {
	var (
		user                 application.User
		createdAt, updatedAt string
	)
	err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &createdAt, &updatedAt)
	if err != nil {
		return application.User{}, mapError(err)
	}
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return application.User{}, fmt.Errorf("parse created_at: %w", err)
	}
	if user.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return application.User{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return user, nil
}

// CreateSession stores a new session keyed by token.
func (s *Store) CreateSession(ctx context.Context, session application.Session) (application.Session, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, id, user_id, expires_at, created_at, revoked_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		session.Token, session.ID, session.UserID,
		formatTime(session.ExpiresAt), formatTime(session.CreatedAt),
		formatNullableTime(session.RevokedAt))
	if err != nil {
		return application.Session{}, mapError(err)
	}
	return session, nil
}

// GetSession retrieves a session by token.
func (s *Store) GetSession(ctx context.Context, token string) (application.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT token, id, user_id, expires_at, created_at, revoked_at
		 FROM sessions WHERE token = ?`, token)

	var (
		session              application.Session
		expiresAt, createdAt string
		revokedAt            sql.NullString
	)
	err := row.Scan(&session.Token, &session.ID, &session.UserID, &expiresAt, &createdAt, &revokedAt)
	if err != nil {
		return application.Session{}, mapError(err)
	}
	if session.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return application.Session{}, fmt.Errorf("parse expires_at: %w", err)
	}
	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return application.Session{}, fmt.Errorf("parse created_at: %w", err)
	}
	if session.RevokedAt, err = parseNullableTime(revokedAt); err != nil {
		return application.Session{}, fmt.Errorf("parse revoked_at: %w", err)
	}
	return session, nil
}

// RevokeSession marks a session revoked.
func (s *Store) RevokeSession(ctx context.Context, token string, revokedAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = ? WHERE token = ?`, formatTime(revokedAt), token)
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return application.ErrNotFound
	}
	return nil
}

// DeleteExpiredSessions drops sessions past their expiry.
func (s *Store) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`, formatTime(reference))
	return mapError(err)
}
