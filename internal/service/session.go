package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/auth-service/internal/cache"
	"github.com/pribylovaa/auth-service/internal/models"
	"github.com/pribylovaa/auth-service/internal/pkg/log"
	"github.com/pribylovaa/auth-service/internal/storage"
	"github.com/pribylovaa/auth-service/internal/token"
)

// resolveSession превращает предъявленную строку refresh-токена в доверенную
// пару (пользователь, запись) либо в конкретную ошибку.
//
// Порядок проверок — контракт безопасности, шаги выполняются строго по
// очереди с обрывом на первой ошибке; дешёвые проверки, не раскрывающие
// существование аккаунта, идут раньше любых обращений к каталогу:
//  1. пустой ввод → RequiredError{refresh_token};
//  2. подпись/срок конверта → ErrInvalidToken / ErrTokenExpired;
//  3. конверт без sub или jti → ErrInvalidToken;
//  4. запись в хранилище по jti → storage.ErrNotFound;
//  5. record.Revoked → ErrTokenRevoked (до загрузки пользователя: отозванный
//     токен не провоцирует обращение к каталогу);
//  6. владелец записи должен совпадать с sub → ErrInvalidToken;
//  7. пользователь по sub → ErrUserNotFound;
//  8. неактивный/удалённый пользователь → ErrNotAuthorized (тот же
//     обобщённый отказ, что и при неверных учётных данных).
func (s *Service) resolveSession(ctx context.Context, refreshToken string) (*models.User, *models.RefreshToken, error) {
	const op = "service.session.resolveSession"

	lg := log.From(ctx)

	if strings.TrimSpace(refreshToken) == "" {
		return nil, nil, fmt.Errorf("%s: %w", op, &RequiredError{Field: "refresh_token"})
	}

	claims, err := s.tokens.Parse(refreshToken)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			lg.Warn("refresh_expired", slog.String("op", op))
			return nil, nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		lg.Warn("refresh_malformed", slog.String("op", op))
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if claims.UserID == uuid.Nil || claims.RecordID == uuid.Nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	record, err := s.refreshRecord(ctx, claims.RecordID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("refresh_record_not_found", slog.String("op", op))
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}

		lg.Error("refresh_record_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if record.Revoked {
		lg.Warn("refresh_revoked",
			slog.String("op", op),
			slog.String("refresh_id", record.ID.String()),
		)
		return nil, nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	// jti обязан указывать на запись того же пользователя, что и sub;
	// расхождение — жёсткий отказ, а не тихое игнорирование.
	if record.UserID != claims.UserID {
		lg.Warn("refresh_owner_mismatch",
			slog.String("op", op),
			slog.String("refresh_id", record.ID.String()),
		)
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	user, err := s.storage.UserByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	if !user.Usable() {
		lg.Warn("refresh_account_unusable",
			slog.String("op", op),
			slog.String("user_id", user.ID.String()),
		)
		return nil, nil, fmt.Errorf("%s: %w", op, ErrNotAuthorized)
	}

	return user, record, nil
}

// refreshRecord читает запись refresh-токена, при наличии кэша — через него.
// Кэш совещательный: любая его ошибка деградирует в чтение из БД,
// источником истины остаётся хранилище.
func (s *Service) refreshRecord(ctx context.Context, id uuid.UUID) (*models.RefreshToken, error) {
	if s.rcache != nil {
		entry, ok, err := s.rcache.Get(ctx, id)
		if err == nil && ok {
			return &models.RefreshToken{
				ID:        id,
				UserID:    entry.UserID,
				Revoked:   entry.Revoked,
				ExpiresAt: entry.ExpiresAt,
			}, nil
		}
		if err != nil {
			log.From(ctx).Warn("refresh_cache_get_failed",
				slog.String("err", err.Error()),
			)
		}
	}

	record, err := s.storage.RefreshTokenByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.rcache != nil {
		if ttl := record.ExpiresAt.Sub(time.Now().UTC()); ttl > 0 {
			if err := s.rcache.Set(ctx, record.ID, recordToEntry(record), ttl); err != nil {
				log.From(ctx).Warn("refresh_cache_set_failed",
					slog.String("err", err.Error()),
				)
			}
		}
	}

	return record, nil
}

func recordToEntry(r *models.RefreshToken) *cache.RefreshEntry {
	return &cache.RefreshEntry{
		UserID:    r.UserID,
		Revoked:   r.Revoked,
		ExpiresAt: r.ExpiresAt,
	}
}
