package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const adminRole = "admin"

// Admin is the authenticated operator of the catalog.
type Admin struct {
	Email string `json:"email"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenPair struct {
	AccessToken string `json:"access_token"`
}

// Service checks the single admin account configured for the deployment and
// issues HS256 access tokens.
type Service struct {
	email        string
	passwordHash []byte
	jwtSecret    []byte
	jwtExpiry    time.Duration
	now          func() time.Time
}

func NewService(email, passwordHash string, jwtSecret []byte, jwtExpiry time.Duration) *Service {
	return &Service{
		email:        strings.TrimSpace(email),
		passwordHash: []byte(passwordHash),
		jwtSecret:    jwtSecret,
		jwtExpiry:    jwtExpiry,
		now:          time.Now,
	}
}

// HashPassword produces the value expected in ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Service) Login(_ context.Context, input LoginInput) (*TokenPair, error) {
	// The hash is compared even for an unknown email so both failures take
	// the same time.
	emailOK := strings.EqualFold(strings.TrimSpace(input.Email), s.email)
	err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(input.Password))
	if !emailOK || err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.generateTokenPair(&Admin{Email: s.email})
}

func (s *Service) generateTokenPair(admin *Admin) (*TokenPair, error) {
	now := s.now()
	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  admin.Email,
		"role": adminRole,
		"iat":  now.Unix(),
		"exp":  now.Add(s.jwtExpiry).Unix(),
	})
	accessTokenString, err := accessToken.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	return &TokenPair{AccessToken: accessTokenString}, nil
}

func (s *Service) ValidateToken(tokenString string) (*Admin, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if role, _ := claims["role"].(string); role != adminRole {
		return nil, ErrInvalidToken
	}
	email, ok := claims["sub"].(string)
	if !ok || email == "" {
		return nil, ErrInvalidToken
	}

	return &Admin{Email: email}, nil
}
