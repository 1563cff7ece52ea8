package service

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/doclane/doclane/internal/model"
	"github.com/doclane/doclane/internal/repository"
	"github.com/doclane/doclane/internal/validation"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrAccountNotApproved = errors.New("account is awaiting admin approval")
	ErrAccountInactive    = errors.New("account is deactivated")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Claims is the JWT payload. Pipeline code trusts these to be resolved
// by the middleware and never re-derives identity.
type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type AuthService struct {
	userRepository repository.UserRepository
	jwtSecret      string
	jwtExpiry      time.Duration
}

func NewAuthService(userRepository repository.UserRepository, jwtSecret string, jwtExpiry time.Duration) *AuthService {
	return &AuthService{
		userRepository: userRepository,
		jwtSecret:      jwtSecret,
		jwtExpiry:      jwtExpiry,
	}
}

func (s *AuthService) Register(email, name, password string) (*model.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := validation.ValidateName(name); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, err
	}

	_, err := s.userRepository.ByEmail(email)
	if err == nil {
		return nil, ErrEmailAlreadyExists
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         model.RoleUser,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.userRepository.Create(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (s *AuthService) Login(email, password string) (*model.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.userRepository.ByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("failed to get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, "", ErrAccountInactive
	}
	if !user.IsApproved {
		return nil, "", ErrAccountNotApproved
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// ApproveUser grants a registered account access; only approved
// accounts can log in.
func (s *AuthService) ApproveUser(id string) (*model.User, error) {
	user, err := s.userRepository.ByID(id)
	if err != nil {
		return nil, err
	}
	if user.IsApproved {
		return user, nil
	}
	user.IsApproved = true
	if err := s.userRepository.Update(user); err != nil {
		return nil, fmt.Errorf("failed to approve user: %w", err)
	}
	return user, nil
}

// SetUserActive activates or deactivates an account without touching
// its approval.
func (s *AuthService) SetUserActive(id string, active bool) (*model.User, error) {
	user, err := s.userRepository.ByID(id)
	if err != nil {
		return nil, err
	}
	user.IsActive = active
	if err := s.userRepository.Update(user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// PendingUsers lists accounts still awaiting approval, with password
// hashes stripped.
func (s *AuthService) PendingUsers() ([]*model.User, error) {
	users, err := s.userRepository.PendingApproval()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending users: %w", err)
	}
	for _, u := range users {
		u.PasswordHash = ""
	}
	return users, nil
}

// EnsureAdmin creates an approved admin account if the email is not
// registered yet. Run at process start so the approval flow always has
// an admin to drive it.
func (s *AuthService) EnsureAdmin(email, name, password string) error {
	email = strings.TrimSpace(strings.ToLower(email))

	_, err := s.userRepository.ByEmail(email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return fmt.Errorf("failed to check admin account: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         model.RoleAdmin,
		IsActive:     true,
		IsApproved:   true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.userRepository.Create(admin); err != nil {
		return fmt.Errorf("failed to create admin account: %w", err)
	}
	slog.Info("admin account bootstrapped", "email", email)
	return nil
}

// IssueToken signs a JWT carrying the user's id and role.
func (s *AuthService) IssueToken(user *model.User) (string, error) {
	now := time.Now().UTC()
	claims := &Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtExpiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses and validates a JWT, returning its claims.
func (s *AuthService) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
