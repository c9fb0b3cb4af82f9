package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/seqid"
	"tokopos/backend/internal/store"
)

// AuthManager issues and validates access tokens. Every token is backed by
// a persisted session record, so a token stays valid only while its session
// is active: logout revokes the session and kills the token immediately,
// before its JWT expiry.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	repo     store.Repository
}

type posClaims struct {
	jwtlib.RegisteredClaims
	Username string `json:"username"`
	Role     string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, repo store.Repository) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		repo:     repo,
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || strings.TrimSpace(req.Password) == "" {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}

	employee, err := a.repo.FindEmployeeByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.LoginResponse{}, errors.New("invalid credentials")
		}
		return domain.LoginResponse{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(employee.PasswordHash), []byte(req.Password)) != nil {
		return domain.LoginResponse{}, errors.New("invalid credentials")
	}
	if employee.Status != domain.EmployeeStatusActive {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	now := time.Now().UTC()
	date := seqid.DateStamp(now)
	value, err := a.repo.NextSequence(ctx, seqid.CategorySession, date)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	sessionID := seqid.Format(seqid.CategorySession, date, value)

	expiresAt := now.Add(a.tokenTTL)
	token, err := a.sign(employee, sessionID, now, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	err = a.repo.CreateSession(ctx, domain.Session{
		SessionID: sessionID,
		UserID:    employee.EmployeeID,
		Username:  employee.Username,
		Role:      employee.Role,
		Token:     token,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
		Status:    domain.SessionStatusActive,
	})
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		Token:     token,
		SessionID: sessionID,
		User: domain.LoginUser{
			EmployeeID: employee.EmployeeID,
			Name:       employee.Name,
			Role:       employee.Role,
		},
		ExpiresAt: expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(ctx context.Context, tokenStr string) (domain.Principal, error) {
	claims := &posClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Principal{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Principal{}, errors.New("invalid token subject")
	}

	session, err := a.repo.FindSessionByToken(ctx, tokenStr)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Principal{}, errors.New("session not found")
		}
		return domain.Principal{}, err
	}
	if session.Status != domain.SessionStatusActive {
		return domain.Principal{}, errors.New("session revoked")
	}
	if time.Now().UTC().After(session.ExpiresAt) {
		return domain.Principal{}, errors.New("session expired")
	}

	return domain.Principal{UserID: sub, Username: claims.Username, Role: claims.Role}, nil
}

func (a *AuthManager) Logout(ctx context.Context, tokenStr string) error {
	if err := a.repo.RevokeSession(ctx, tokenStr, time.Now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errors.New("session not found")
		}
		return err
	}
	return nil
}

func (a *AuthManager) Register(ctx context.Context, req domain.RegisterRequest) (domain.Employee, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))
	if req.Role == "" {
		req.Role = domain.RoleCashier
	}

	messages := make([]string, 0, 4)
	if len(req.Name) < 2 {
		messages = append(messages, "name must be at least 2 characters")
	}
	if len(req.Username) < 4 || strings.ContainsAny(req.Username, " \t\r\n") {
		messages = append(messages, "username must be at least 4 characters with no spaces")
	}
	if len(strings.TrimSpace(req.Password)) < 6 {
		messages = append(messages, "password must be at least 6 characters")
	}
	if req.Role != domain.RoleAdmin && req.Role != domain.RoleCashier {
		messages = append(messages, fmt.Sprintf("role %q is not supported", req.Role))
	}
	if len(messages) > 0 {
		return domain.Employee{}, &domain.ValidationError{Messages: messages}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Employee{}, fmt.Errorf("failed to hash password")
	}

	now := time.Now().UTC()
	date := seqid.DateStamp(now)
	value, err := a.repo.NextSequence(ctx, seqid.CategoryEmployee, date)
	if err != nil {
		return domain.Employee{}, err
	}

	created, err := a.repo.CreateEmployee(ctx, domain.Employee{
		EmployeeID:   seqid.Format(seqid.CategoryEmployee, date, value),
		Name:         req.Name,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         req.Role,
		Status:       domain.EmployeeStatusActive,
		CreatedAt:    now,
	})
	if err != nil {
		return domain.Employee{}, err
	}
	return *created, nil
}

func (a *AuthManager) sign(employee *domain.Employee, sessionID string, issuedAt time.Time, expiresAt time.Time) (string, error) {
	claims := posClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   employee.EmployeeID,
			ID:        sessionID,
			IssuedAt:  jwtlib.NewNumericDate(issuedAt),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    "tokopos",
		},
		Username: employee.Username,
		Role:     employee.Role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}
