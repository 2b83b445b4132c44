package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/auth-service/internal/config"
	"github.com/pribylovaa/auth-service/internal/models"
	"github.com/pribylovaa/auth-service/internal/pkg/password"
	"github.com/pribylovaa/auth-service/internal/service"
	"github.com/pribylovaa/auth-service/internal/storage"
	"github.com/pribylovaa/auth-service/internal/token"
	"github.com/pribylovaa/auth-service/mocks"
)

func testAuthCfg() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:       "api-test-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		Issuer:          "auth-service",
		Audience:        []string{"api-gateway"},
	}
}

func newTestServer(t *testing.T) (*mux.Router, *mocks.MockStorage, *token.Manager) {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	st := mocks.NewMockStorage(ctrl)
	tm := token.New(testAuthCfg())
	svc := service.New(st, tm, testAuthCfg())

	r := mux.NewRouter()
	NewAuthServer(svc).RegisterRoutes(r)

	return r, st, tm
}

func doJSON(t *testing.T, r *mux.Router, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	return rec
}

func decodeAuth(t *testing.T, rec *httptest.ResponseRecorder) authPayload {
	t.Helper()

	var out authPayload
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func decodeErr(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var out map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out["error"]
}

func TestRegister_Created(t *testing.T) {
	t.Parallel()

	r, st, _ := newTestServer(t)

	st.EXPECT().UserByEmail(gomock.Any(), "new@example.com").Return(nil, storage.ErrNotFound)
	st.EXPECT().CountUsers(gomock.Any()).Return(int64(0), nil)
	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(nil)
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil)

	rec := doJSON(t, r, "/v1/auth/register", map[string]any{
		"name":         "New",
		"email":        "new@example.com",
		"password":     "Abcdef1!",
		"accept_terms": true,
	})

	require.Equal(t, http.StatusCreated, rec.Code)

	out := decodeAuth(t, rec)
	require.Equal(t, "new@example.com", out.User.Email)
	require.Equal(t, []string{"root"}, out.User.Roles)
	require.NotEmpty(t, out.AccessToken)
	require.NotEmpty(t, out.RefreshToken)
	require.Greater(t, out.AccessExpiresAt, time.Now().Unix())
}

func TestRegister_BadRequests(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestServer(t)

	cases := []struct {
		name    string
		body    map[string]any
		wantErr string
	}{
		{
			name:    "missing name",
			body:    map[string]any{"email": "u@e.com", "password": "Abcdef1!", "accept_terms": true},
			wantErr: "name is required",
		},
		{
			name:    "terms not accepted",
			body:    map[string]any{"name": "U", "email": "u@e.com", "password": "Abcdef1!"},
			wantErr: "accept_terms is required",
		},
		{
			name:    "invalid email",
			body:    map[string]any{"name": "U", "email": "nope", "password": "Abcdef1!", "accept_terms": true},
			wantErr: "invalid email format",
		},
		{
			name:    "weak password",
			body:    map[string]any{"name": "U", "email": "u@e.com", "password": "short", "accept_terms": true},
			wantErr: "password is too weak",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, r, "/v1/auth/register", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Contains(t, decodeErr(t, rec), tc.wantErr)
		})
	}
}

func TestRegister_EmailTaken_Conflict(t *testing.T) {
	t.Parallel()

	r, st, _ := newTestServer(t)

	existing := &models.User{ID: uuid.New(), Email: "dup@example.com", Active: true}
	st.EXPECT().UserByEmail(gomock.Any(), "dup@example.com").Return(existing, nil)

	rec := doJSON(t, r, "/v1/auth/register", map[string]any{
		"name":         "Dup",
		"email":        "dup@example.com",
		"password":     "Abcdef1!",
		"accept_terms": true,
	})

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "email already taken", decodeErr(t, rec))
}

func TestRegister_InvalidJSONBody(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/register", bytes.NewReader([]byte("{broken")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid json body", decodeErr(t, rec))
}

func TestLogin_OK(t *testing.T) {
	t.Parallel()

	r, st, _ := newTestServer(t)

	hash, err := password.Hash("Abcdef1!")
	require.NoError(t, err)

	now := time.Now().UTC()
	u := &models.User{
		ID:           uuid.New(),
		Name:         "User",
		Email:        "user@example.com",
		PasswordHash: hash,
		Roles:        []models.Role{models.RoleUser},
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	st.EXPECT().UserByEmail(gomock.Any(), "user@example.com").Return(u, nil)
	st.EXPECT().SaveRefreshToken(gomock.Any(), gomock.Any()).Return(nil)

	rec := doJSON(t, r, "/v1/auth/login", map[string]any{
		"email":    "user@example.com",
		"password": "Abcdef1!",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeAuth(t, rec)
	require.Equal(t, u.ID.String(), out.User.ID)
	require.NotEmpty(t, out.RefreshToken)
}

// TestLogin_Unauthorized_UniformBody — все варианты отказа входа дают
// одинаковые 401 с одинаковым телом.
func TestLogin_Unauthorized_UniformBody(t *testing.T) {
	t.Parallel()

	r, st, _ := newTestServer(t)

	hash, err := password.Hash("Abcdef1!")
	require.NoError(t, err)

	t.Run("unknown email", func(t *testing.T) {
		st.EXPECT().UserByEmail(gomock.Any(), "ghost@example.com").Return(nil, storage.ErrNotFound)
		rec := doJSON(t, r, "/v1/auth/login", map[string]any{"email": "ghost@example.com", "password": "Abcdef1!"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "not authorized", decodeErr(t, rec))
	})

	t.Run("wrong password", func(t *testing.T) {
		u := &models.User{ID: uuid.New(), Email: "real@example.com", PasswordHash: hash, Active: true}
		st.EXPECT().UserByEmail(gomock.Any(), "real@example.com").Return(u, nil)
		rec := doJSON(t, r, "/v1/auth/login", map[string]any{"email": "real@example.com", "password": "Wrong-pass9"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "not authorized", decodeErr(t, rec))
	})
}

func TestRefresh_OK_DoesNotRotate(t *testing.T) {
	t.Parallel()

	r, st, tm := newTestServer(t)

	now := time.Now().UTC()
	u := &models.User{ID: uuid.New(), Email: "u@example.com", Active: true, CreatedAt: now}
	record := &models.RefreshToken{ID: uuid.New(), UserID: u.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}

	refresh, err := tm.IssueRefreshToken(u.ID, record.ID, time.Hour, now)
	require.NoError(t, err)

	st.EXPECT().RefreshTokenByID(gomock.Any(), record.ID).Return(record, nil)
	st.EXPECT().UserByID(gomock.Any(), u.ID).Return(u, nil)

	rec := doJSON(t, r, "/v1/auth/refresh", map[string]any{"refresh_token": refresh})

	require.Equal(t, http.StatusOK, rec.Code)

	out := decodeAuth(t, rec)
	require.Equal(t, refresh, out.RefreshToken)
	require.NotEmpty(t, out.AccessToken)
}

// TestRefresh_TokenFailures — просроченный, отозванный и мусорный токены
// одинаково дают 401 "not authorized".
func TestRefresh_TokenFailures(t *testing.T) {
	t.Parallel()

	r, st, tm := newTestServer(t)

	t.Run("garbage", func(t *testing.T) {
		rec := doJSON(t, r, "/v1/auth/refresh", map[string]any{"refresh_token": "garbage"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "not authorized", decodeErr(t, rec))
	})

	t.Run("expired", func(t *testing.T) {
		past := time.Now().UTC().Add(-time.Hour)
		raw, err := tm.IssueRefreshToken(uuid.New(), uuid.New(), time.Minute, past)
		require.NoError(t, err)

		rec := doJSON(t, r, "/v1/auth/refresh", map[string]any{"refresh_token": raw})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "not authorized", decodeErr(t, rec))
	})

	t.Run("revoked", func(t *testing.T) {
		now := time.Now().UTC()
		record := &models.RefreshToken{ID: uuid.New(), UserID: uuid.New(), Revoked: true, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
		raw, err := tm.IssueRefreshToken(record.UserID, record.ID, time.Hour, now)
		require.NoError(t, err)

		st.EXPECT().RefreshTokenByID(gomock.Any(), record.ID).Return(record, nil)

		rec := doJSON(t, r, "/v1/auth/refresh", map[string]any{"refresh_token": raw})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "not authorized", decodeErr(t, rec))
	})

	t.Run("record missing", func(t *testing.T) {
		now := time.Now().UTC()
		recordID := uuid.New()
		raw, err := tm.IssueRefreshToken(uuid.New(), recordID, time.Hour, now)
		require.NoError(t, err)

		st.EXPECT().RefreshTokenByID(gomock.Any(), recordID).Return(nil, storage.ErrNotFound)

		rec := doJSON(t, r, "/v1/auth/refresh", map[string]any{"refresh_token": raw})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "not authorized", decodeErr(t, rec))
	})
}

func TestLogout_OK(t *testing.T) {
	t.Parallel()

	r, st, tm := newTestServer(t)

	now := time.Now().UTC()
	u := &models.User{ID: uuid.New(), Email: "u@example.com", Active: true}
	record := &models.RefreshToken{ID: uuid.New(), UserID: u.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}

	raw, err := tm.IssueRefreshToken(u.ID, record.ID, time.Hour, now)
	require.NoError(t, err)

	st.EXPECT().RefreshTokenByID(gomock.Any(), record.ID).Return(record, nil)
	st.EXPECT().UserByID(gomock.Any(), u.ID).Return(u, nil)
	st.EXPECT().RevokeRefreshToken(gomock.Any(), record.ID).Return(nil)

	rec := doJSON(t, r, "/v1/auth/logout", map[string]any{"refresh_token": raw})

	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]bool
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	require.True(t, out["ok"])
}

func TestLogout_EmptyToken(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestServer(t)

	rec := doJSON(t, r, "/v1/auth/logout", map[string]any{"refresh_token": ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "refresh_token is required", decodeErr(t, rec))
}

func TestStorageFailure_Returns500WithoutDetails(t *testing.T) {
	t.Parallel()

	r, st, _ := newTestServer(t)

	st.EXPECT().UserByEmail(gomock.Any(), "u@example.com").Return(nil, errors.New("pq: connection refused"))

	rec := doJSON(t, r, "/v1/auth/login", map[string]any{"email": "u@example.com", "password": "Abcdef1!"})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "internal server error", decodeErr(t, rec))
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/login", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
