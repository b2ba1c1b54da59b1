// Package auth manages admin accounts and their login sessions. Users and
// sessions live in the site database; see the store migrations.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/Zachkp/stats-consult/internal/errors"
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is a signed-in user. Token is only ever returned here; the
// database keeps its SHA-256.
type Session struct {
	Token     string
	User      *User
	ExpiresAt time.Time
}

type Credentials struct {
	Email    string `form:"email" validate:"required,max=255,email"`
	Password string `form:"password" validate:"required,min=8,max=72"`
	FullName string `form:"full_name" validate:"max=100"`
}

// Authenticator is what the HTTP layer needs from this package.
type Authenticator interface {
	SignUp(ctx context.Context, c Credentials) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, token string) error
	CurrentUser(ctx context.Context, token string) (*User, error)
}

type Service struct {
	db   *sql.DB
	ttl  time.Duration
	cost int
	now  func() time.Time
}

func NewService(db *sql.DB, ttl time.Duration) *Service {
	return &Service{db: db, ttl: ttl, cost: bcrypt.DefaultCost, now: time.Now}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// dummyHash is compared against when the email is unknown so both failure
// paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)

// SignUp creates an account and signs it in.
func (s *Service) SignUp(ctx context.Context, c Credentials) (*Session, error) {
	c.Email = normalizeEmail(c.Email)
	c.FullName = strings.TrimSpace(c.FullName)
	if err := checkCredentials(c); err != nil {
		return nil, err
	}
	user, err := s.createUser(ctx, c)
	if err != nil {
		return nil, err
	}
	return s.newSession(ctx, user)
}

// EnsureUser creates the account unless the email is already registered. It
// reports whether an account was created.
func (s *Service) EnsureUser(ctx context.Context, c Credentials) (bool, error) {
	c.Email = normalizeEmail(c.Email)
	c.FullName = strings.TrimSpace(c.FullName)
	if err := checkCredentials(c); err != nil {
		return false, err
	}
	_, err := s.createUser(ctx, c)
	if errors.Is(err, errors.ErrConflict) {
		return false, nil
	}
	return err == nil, err
}

func (s *Service) createUser(ctx context.Context, c Credentials) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	id, err := ulid.New(ulid.Timestamp(s.now()), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate user id: %w", err)
	}
	user := &User{
		ID:        id.String(),
		Email:     c.Email,
		FullName:  c.FullName,
		CreatedAt: time.Unix(s.now().Unix(), 0).UTC(),
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, full_name, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(email) DO NOTHING`,
		user.ID, user.Email, user.FullName, string(hash), user.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errors.NewConflict("an account with this email already exists")
	}
	return user, nil
}

// SignIn checks the password and opens a session. Unknown emails and wrong
// passwords return the same error.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var (
		user    User
		hash    string
		created int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, password_hash, created_at
		FROM users WHERE email = ?`, normalizeEmail(email)).
		Scan(&user.ID, &user.Email, &user.FullName, &hash, &created)
	if stderrors.Is(err, sql.ErrNoRows) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, errors.NewUnauthorized()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, errors.NewUnauthorized()
	}
	user.CreatedAt = time.Unix(created, 0).UTC()
	return s.newSession(ctx, &user)
}

func (s *Service) newSession(ctx context.Context, user *User) (*Session, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}
	token := hex.EncodeToString(raw)
	now := s.now()
	sess := &Session{
		Token:     token,
		User:      user,
		ExpiresAt: time.Unix(now.Add(s.ttl).Unix(), 0).UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token_hash, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)`,
		hashToken(token), user.ID, now.Unix(), sess.ExpiresAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// SignOut ends the session. Unknown tokens are ignored.
func (s *Service) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, hashToken(token)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// CurrentUser resolves a session token. Missing, unknown and expired tokens
// are all unauthorized.
func (s *Service) CurrentUser(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, errors.NewUnauthorized()
	}
	var (
		user             User
		created, expires int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.full_name, u.created_at, s.expires_at
		FROM sessions s JOIN users u ON u.id = s.user_id
		WHERE s.token_hash = ?`, hashToken(token)).
		Scan(&user.ID, &user.Email, &user.FullName, &created, &expires)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewUnauthorized()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if s.now().Unix() >= expires {
		_ = s.SignOut(ctx, token)
		return nil, errors.NewUnauthorized()
	}
	user.CreatedAt = time.Unix(created, 0).UTC()
	return &user, nil
}

// PruneSessions deletes expired sessions and returns how many went.
func (s *Service) PruneSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	return res.RowsAffected()
}

func checkCredentials(c Credentials) error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return fmt.Errorf("failed to validate credentials: %w", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		switch fe.StructField() {
		case "Email":
			fields["email"] = "Invalid email address"
		case "Password":
			fields["password"] = "Password must be 8 to 72 characters"
		case "FullName":
			fields["full_name"] = "Name must be less than 100 characters"
		}
	}
	return errors.NewValidation(fields)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
