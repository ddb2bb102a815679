package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"chatvault/internal/apperr"
	"chatvault/internal/models"
	"chatvault/internal/preferences"
)

const minPasswordLength = 6

const userColumns = `id, email, password_hash, is_anonymous, created_at`

// Register creates a regular account.
func (s *Service) Register(ctx context.Context, email, password string) (*models.User, error) {
	email, err := normalizeCredentials(email, password)
	if err != nil {
		return nil, err
	}
	if existing, err := s.userByEmail(ctx, email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, apperr.New(apperr.BadRequestAPI, "user already exists")
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	return s.insertUser(ctx, &email, hash, false)
}

// Login checks credentials and returns the matching regular user.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.userByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if user == nil || user.IsAnonymous || !checkPassword(password, user.PasswordHash) {
		return nil, apperr.New(apperr.Unauthorized, "invalid credentials")
	}
	return user, nil
}

// CreateGuest creates an anonymous user without credentials.
func (s *Service) CreateGuest(ctx context.Context) (*models.User, error) {
	return s.insertUser(ctx, nil, "", true)
}

// UpgradeGuest turns a guest into a regular account in place, so every chat
// the guest created stays owned by the same id.
func (s *Service) UpgradeGuest(ctx context.Context, userID, email, password string) (*models.User, error) {
	email, err := normalizeCredentials(email, password)
	if err != nil {
		return nil, err
	}
	user, err := s.Identity(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsAnonymous {
		return nil, apperr.New(apperr.BadRequestAPI, "account is already registered")
	}
	if existing, err := s.userByEmail(ctx, email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, apperr.New(apperr.BadRequestAPI, "user already exists")
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		s.q(`UPDATE users SET email = ?, password_hash = ?, is_anonymous = ? WHERE id = ?`),
		email, hash, false, userID,
	); err != nil {
		return nil, apperr.Database("failed to upgrade guest", err)
	}
	user.Email = &email
	user.PasswordHash = hash
	user.IsAnonymous = false
	return user, nil
}

// Identity resolves a user id to its record. Unknown ids are unauthorized.
func (s *Service) Identity(ctx context.Context, userID string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE id = ?`), userID)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.Unauthorized, "user not found")
	}
	if err != nil {
		return nil, apperr.Database("failed to load user", err)
	}
	return user, nil
}

// LoadPreferences returns the user's stored overrides, nil when none were saved.
func (s *Service) LoadPreferences(ctx context.Context, userID string) (*preferences.Overrides, error) {
	meta, err := s.metadata(ctx, userID)
	if err != nil {
		return nil, err
	}
	return preferences.Parse(meta["preferences"])
}

// SavePreferences merges update over the stored overrides, persists the
// result and returns the effective preferences. update must already be
// validated.
func (s *Service) SavePreferences(ctx context.Context, userID string, update *preferences.Overrides) (preferences.Preferences, error) {
	meta, err := s.metadata(ctx, userID)
	if err != nil {
		return preferences.Preferences{}, err
	}
	stored, err := preferences.Parse(meta["preferences"])
	if err != nil {
		return preferences.Preferences{}, err
	}
	next := preferences.Apply(stored, update)
	raw, err := json.Marshal(next)
	if err != nil {
		return preferences.Preferences{}, fmt.Errorf("encode preferences: %w", err)
	}
	meta["preferences"] = raw
	encoded, err := json.Marshal(meta)
	if err != nil {
		return preferences.Preferences{}, fmt.Errorf("encode metadata: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET metadata = ? WHERE id = ?`), string(encoded), userID); err != nil {
		return preferences.Preferences{}, apperr.Database("failed to save preferences", err)
	}
	return preferences.Merge(next), nil
}

// DeleteUser revokes the user's tokens and removes the identity. Chats must
// be removed by the caller beforehand.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	if err := s.RevokeUserTokens(ctx, userID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.q(`DELETE FROM users WHERE id = ?`), userID); err != nil {
		return apperr.Database("failed to delete user", err)
	}
	return nil
}

func (s *Service) metadata(ctx context.Context, userID string) (map[string]json.RawMessage, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, s.q(`SELECT metadata FROM users WHERE id = ?`), userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.Unauthorized, "user not found")
	}
	if err != nil {
		return nil, apperr.Database("failed to load user metadata", err)
	}
	meta := map[string]json.RawMessage{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("decode user metadata: %w", err)
		}
	}
	return meta, nil
}

func (s *Service) insertUser(ctx context.Context, email *string, hash string, anonymous bool) (*models.User, error) {
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		IsAnonymous:  anonymous,
		CreatedAt:    s.now().UTC().Truncate(time.Millisecond),
	}
	var emailArg sql.NullString
	if email != nil {
		emailArg = sql.NullString{String: *email, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		s.q(`INSERT INTO users (id, email, password_hash, is_anonymous, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`),
		user.ID, emailArg, hash, anonymous, "{}", user.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, apperr.Database("failed to create user", err)
	}
	return user, nil
}

func (s *Service) userByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE email = ?`), email)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Database("failed to get user by email", err)
	}
	return user, nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		user      models.User
		email     sql.NullString
		createdAt int64
	)
	if err := row.Scan(&user.ID, &email, &user.PasswordHash, &user.IsAnonymous, &createdAt); err != nil {
		return nil, err
	}
	if email.Valid {
		user.Email = &email.String
	}
	user.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &user, nil
}

func normalizeCredentials(email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return "", apperr.New(apperr.BadRequestAPI, "invalid email address")
	}
	if len(password) < minPasswordLength {
		return "", apperr.New(apperr.BadRequestAPI, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	return email, nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func checkPassword(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
