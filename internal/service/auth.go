package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/pribylovaa/auth-service/internal/models"
	"github.com/pribylovaa/auth-service/internal/pkg/log"
	"github.com/pribylovaa/auth-service/internal/pkg/password"
	"github.com/pribylovaa/auth-service/internal/pkg/redact"
	"github.com/pribylovaa/auth-service/internal/storage"
)

// Register регистрирует нового пользователя и выдаёт пару токенов.
//
// Первый пользователь за всю жизнь системы получает роль root, все
// последующие — user. Решение принимается живым подсчётом CountUsers
// в момент вызова; транзакционной защиты нет, при гонке двух первых
// регистраций обе могут получить root (принято осознанно).
func (s *Service) Register(ctx context.Context, name, email, pass string, acceptTerms bool) (*models.User, *models.TokenPair, error) {
	const op = "service.auth.Register"

	if strings.TrimSpace(name) == "" {
		return nil, nil, fmt.Errorf("%s: %w", op, &RequiredError{Field: "name"})
	}
	if strings.TrimSpace(email) == "" {
		return nil, nil, fmt.Errorf("%s: %w", op, &RequiredError{Field: "email"})
	}
	if pass == "" {
		return nil, nil, fmt.Errorf("%s: %w", op, &RequiredError{Field: "password"})
	}
	if !acceptTerms {
		return nil, nil, fmt.Errorf("%s: %w", op, &RequiredError{Field: "accept_terms"})
	}

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if err := validatePassword(pass); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.storage.UserByEmail(ctx, normEmail)
	if err == nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	roles, err := s.rolesForNewUser(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	hashed, err := password.Hash(pass)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(name),
		Email:        normEmail,
		PasswordHash: hashed,
		Roles:        roles,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("user_registered",
		slog.String("op", op),
		slog.String("user_id", user.ID.String()),
		slog.String("email", redact.Email(user.Email)),
	)

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	pub := user.Public()

	return &pub, pair, nil
}

// Login выполняет вход по email+пароль.
// Неверный пароль, неизвестный email, неактивная или удалённая учётная
// запись неразличимы снаружи — всё схлопывается в ErrNotAuthorized.
func (s *Service) Login(ctx context.Context, email, pass string) (*models.User, *models.TokenPair, error) {
	const op = "service.auth.Login"

	if strings.TrimSpace(email) == "" {
		return nil, nil, fmt.Errorf("%s: %w", op, &RequiredError{Field: "email"})
	}
	if pass == "" {
		return nil, nil, fmt.Errorf("%s: %w", op, &RequiredError{Field: "password"})
	}

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrNotAuthorized)
	}

	user, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrNotAuthorized)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if !password.Verify(pass, user.PasswordHash) {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrNotAuthorized)
	}

	if !user.Usable() {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrNotAuthorized)
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	pub := user.Public()

	return &pub, pair, nil
}

// Refresh выпускает новый access-токен по валидному refresh-токену.
// Refresh-токен НЕ ротируется: предъявленный конверт остаётся действующим
// до собственной просрочки или явного logout, в ответе он возвращается как есть.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*models.User, *models.TokenPair, error) {
	const op = "service.auth.Refresh"

	user, record, err := s.resolveSession(ctx, refreshToken)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	access, err := s.tokens.IssueAccessToken(user.ID, now)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Debug("access_token_refreshed",
		slog.String("op", op),
		slog.String("user_id", user.ID.String()),
		slog.String("refresh_id", record.ID.String()),
	)

	pub := user.Public()

	return &pub, &models.TokenPair{
		AccessToken:     access,
		RefreshToken:    refreshToken,
		AccessExpiresAt: now.Add(s.cfg.AccessTokenTTL),
	}, nil
}

// Logout отзывает refresh-токен.
// Токен сначала проходит полный resolver: выйти по отозванному, просроченному
// или иным образом невалидному токену нельзя — logout с токеном, который
// не аутентифицировал бы своего предъявителя, завершается той же ошибкой.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	const op = "service.auth.Logout"

	_, record, err := s.resolveSession(ctx, refreshToken)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.RevokeRefreshToken(ctx, record.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if s.rcache != nil {
		if err := s.rcache.MarkRevoked(ctx, record.ID); err != nil {
			log.From(ctx).Warn("refresh_cache_revoke_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		}
	}

	log.From(ctx).Info("session_revoked",
		slog.String("op", op),
		slog.String("user_id", record.UserID.String()),
		slog.String("refresh_id", record.ID.String()),
	)

	return nil
}

// rolesForNewUser определяет роли нового пользователя по счётчику каталога.
func (s *Service) rolesForNewUser(ctx context.Context) ([]models.Role, error) {
	count, err := s.storage.CountUsers(ctx)
	if err != nil {
		return nil, err
	}

	if count == 0 {
		return []models.Role{models.RoleRoot}, nil
	}

	return []models.Role{models.RoleUser}, nil
}

// validateEmail проверяет базовый формат email и обрезает пробелы снаружи.
func validateEmail(raw string) (string, error) {
	const op = "service.auth.validateEmail"

	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return strings.ToLower(email), nil
}

// validatePassword проверяет минимальные требования к паролю.
// Политика по умолчанию: длина >= 8, хотя бы одна строчная, заглавная, цифра и спецсимвол.
func validatePassword(pw string) error {
	const op = "service.auth.validatePassword"

	if len([]rune(pw)) < 8 {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !(hasLower && hasUpper && hasDigit && hasSpecial) {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	return nil
}

// newRefreshRecord строит запись refresh-токена.
// expires_at считается от переданного now — того же чтения часов,
// от которого подписывается exp конверта.
func newRefreshRecord(userID uuid.UUID, now time.Time, ttl time.Duration) (*models.RefreshToken, error) {
	if userID == uuid.Nil {
		return nil, &RequiredError{Field: "user_id"}
	}

	if ttl <= 0 {
		return nil, &RequiredError{Field: "ttl"}
	}

	return &models.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		Revoked:   false,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// issueTokenPair выпускает новую пару access+refresh токенов.
// Оба конверта подписываются до записи в хранилище: если подпись не удалась,
// осиротевшая активная запись в БД не появляется.
func (s *Service) issueTokenPair(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	const op = "service.auth.issueTokenPair"

	lg := log.From(ctx)
	now := time.Now().UTC()

	accessToken, err := s.tokens.IssueAccessToken(user.ID, now)
	if err != nil {
		lg.Error("access_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	record, err := newRefreshRecord(user.ID, now, s.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, err := s.tokens.IssueRefreshToken(user.ID, record.ID, s.cfg.RefreshTokenTTL, now)
	if err != nil {
		lg.Error("refresh_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.SaveRefreshToken(ctx, record); err != nil {
		lg.Error("save_refresh_token_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.rcache != nil {
		if err := s.rcache.Set(ctx, record.ID, recordToEntry(record), record.ExpiresAt.Sub(now)); err != nil {
			lg.Warn("refresh_cache_set_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		}
	}

	return &models.TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		AccessExpiresAt: now.Add(s.cfg.AccessTokenTTL),
	}, nil
}
