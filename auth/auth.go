/*
Package auth issues and verifies credentials for the permit service.

PURPOSE:
  Resolves who is calling. Passwords are bcrypt-hashed at rest; sessions
  are stateless HS256 bearer tokens carrying the user id, email, and
  role. The rest of the system never sees tokens - the API middleware
  turns them into a Principal and core operations receive explicit
  principal ids.

CAPABILITIES:
  Role admin   may register users, list teachers, review permits, and
               read stats.
  Role teacher may submit and view their own permits and entitlement.
  Both read only their own notifications.

SEE ALSO:
  - api/middleware.go: bearer-token extraction
  - store/sqlite: credential persistence
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/permitdesk/permitdesk/domain"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials covers unknown emails, wrong passwords, and
// bad or expired tokens. Deliberately indistinguishable to callers.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Principal is a verified caller identity, as resolved from a token.
type Principal struct {
	UserID string
	Email  string
	Role   domain.Role
}

func (p Principal) IsReviewer() bool { return p.Role == domain.RoleAdmin }

// Store is the credential persistence the service needs.
type Store interface {
	// GetUserByEmail returns the user and password hash, or nil user
	// without error when the email is unknown.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, string, error)

	GetUser(ctx context.Context, id string) (*domain.User, error)

	// InsertUser persists the user, their password hash, and the
	// welcome notification in one transaction.
	InsertUser(ctx context.Context, u domain.User, passwordHash string, welcome domain.Notification) error
}

// Notifier builds lifecycle notifications; see notify.Build.
type Notifier func(recipientID, title, message string) domain.Notification

// Service authenticates users and mints tokens.
type Service struct {
	store    Store
	secret   []byte
	tokenTTL time.Duration
	notify   Notifier
}

func NewService(store Store, secret string, tokenTTL time.Duration, notify Notifier) *Service {
	return &Service{
		store:    store,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		notify:   notify,
	}
}

// =============================================================================
// PASSWORDS
// =============================================================================

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// =============================================================================
// TOKENS
// =============================================================================

// IssueToken mints a signed bearer token for the user.
func (s *Service) IssueToken(u domain.User) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"user_id": u.ID,
		"email":   u.Email,
		"role":    string(u.Role),
		"iat":     now.Unix(),
		"exp":     now.Add(s.tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ParseToken verifies a raw bearer token and returns the principal.
func (s *Service) ParseToken(raw string) (Principal, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !tok.Valid {
		return Principal{}, ErrInvalidCredentials
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, ErrInvalidCredentials
	}
	userID, _ := claims["user_id"].(string)
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	if userID == "" || role == "" {
		return Principal{}, ErrInvalidCredentials
	}
	return Principal{UserID: userID, Email: email, Role: domain.Role(role)}, nil
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Login verifies the email/password pair and returns a fresh token with
// the authenticated user.
func (s *Service) Login(ctx context.Context, email, password string) (string, domain.User, error) {
	u, hash, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return "", domain.User{}, err
	}
	if u == nil || !CheckPassword(password, hash) {
		return "", domain.User{}, ErrInvalidCredentials
	}
	token, err := s.IssueToken(*u)
	if err != nil {
		return "", domain.User{}, err
	}
	return token, *u, nil
}

// NewUser is the input for Register.
type NewUser struct {
	Email        string
	Password     string
	Name         string
	Role         domain.Role
	ContractType domain.ContractType
	HireDate     time.Time
}

// Register creates a user on behalf of an administrator and leaves a
// welcome notification in the new inbox. Fails with Forbidden for
// non-admin actors and ValidationError for duplicate emails.
func (s *Service) Register(ctx context.Context, actor Principal, in NewUser) (domain.User, error) {
	if !actor.IsReviewer() {
		return domain.User{}, domain.ErrForbidden
	}
	if in.Role != domain.RoleAdmin && in.Role != domain.RoleTeacher {
		return domain.User{}, &domain.ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", in.Role)}
	}
	if in.Role == domain.RoleTeacher && !in.ContractType.Valid() {
		return domain.User{}, &domain.ValidationError{Field: "contract_type", Message: "required for teachers"}
	}

	existing, _, err := s.store.GetUserByEmail(ctx, in.Email)
	if err != nil {
		return domain.User{}, err
	}
	if existing != nil {
		return domain.User{}, &domain.ValidationError{Field: "email", Message: "already registered"}
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return domain.User{}, err
	}

	u := domain.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		Name:         in.Name,
		Role:         in.Role,
		ContractType: in.ContractType,
		HireDate:     in.HireDate,
		CreatedAt:    time.Now().UTC(),
	}
	welcome := s.notify(
		u.ID,
		"Cuenta creada",
		fmt.Sprintf("Bienvenido %s, tu cuenta ha sido creada exitosamente.", u.Name),
	)
	if err := s.store.InsertUser(ctx, u, hash, welcome); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Me resolves the principal back into the full roster record.
func (s *Service) Me(ctx context.Context, p Principal) (domain.User, error) {
	u, err := s.store.GetUser(ctx, p.UserID)
	if err != nil {
		return domain.User{}, err
	}
	if u == nil {
		return domain.User{}, domain.ErrNotFound
	}
	return *u, nil
}
