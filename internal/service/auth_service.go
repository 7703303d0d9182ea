package service

import (
	"errors"
	"time"

	"github.com/dom/pickup-queue/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAdminDisabled      = errors.New("admin login is not configured")
)

const adminSubject = "admin"

// AdminAuthService checks the shared admin password and issues short-lived
// admin tokens.
type AdminAuthService struct {
	cfg *config.Config
	now func() time.Time
}

func NewAdminAuthService(cfg *config.Config) *AdminAuthService {
	return &AdminAuthService{cfg: cfg, now: time.Now}
}

type LoginResult struct {
	AccessToken string
	ExpiresAt   time.Time
}

func (s *AdminAuthService) Login(password string) (*LoginResult, error) {
	if s.cfg.AdminPasswordHash == "" {
		return nil, ErrAdminDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.AdminPasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	expiresAt := now.Add(time.Duration(s.cfg.JWTExpirationHours) * time.Hour)
	claims := jwt.MapClaims{
		"sub":  adminSubject,
		"role": "admin",
		"exp":  expiresAt.Unix(),
		"iat":  now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: signed, ExpiresAt: expiresAt}, nil
}

func (s *AdminAuthService) ValidateToken(tokenString string) (*jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if sub, _ := claims.GetSubject(); sub != adminSubject {
		return nil, errors.New("not an admin token")
	}
	return &claims, nil
}
