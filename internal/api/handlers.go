package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/radiolink/radiolink/internal/models"
	"github.com/radiolink/radiolink/internal/storage"
	"github.com/radiolink/radiolink/pkg/crypto"
	"github.com/radiolink/radiolink/pkg/radio"
)

// ========== Auth handlers ==========

// HandleLogin handles user login
func (s *RESTServer) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if !s.auth.VerifyPassword(req.Password, user.PasswordHash) {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if !user.IsActive {
		s.respondError(w, http.StatusForbidden, "account is disabled")
		return
	}

	accessToken, refreshToken, err := s.auth.GenerateTokenPair(user)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}

	if err := s.store.UpdateUserLastLogin(r.Context(), user.ID, time.Now()); err != nil {
		log.Warn().Err(err).Str("username", user.Username).Msg("Failed to update last login")
	}

	s.respondTokens(w, accessToken, refreshToken)
}

// HandleRefresh handles token refresh
func (s *RESTServer) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	accessToken, refreshToken, err := s.auth.RefreshToken(r.Context(), req.RefreshToken, s.store.GetUser)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	s.respondTokens(w, accessToken, refreshToken)
}

func (s *RESTServer) respondTokens(w http.ResponseWriter, access, refresh string) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  access,
		"refresh_token": refresh,
		"expires_in":    int(s.config.JWT.AccessTokenTTL.Seconds()),
		"token_type":    "Bearer",
	})
}

// HandleGetCurrentUser returns the authenticated user
func (s *RESTServer) HandleGetCurrentUser(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	if claims == nil {
		s.respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	user, err := s.store.GetUser(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "user not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, user)
}

// EnsureAdminUser creates the configured admin account if it does not
// exist yet. Without a configured password a random one is generated and
// logged once.
func EnsureAdminUser(ctx context.Context, store storage.Store, username, password string) error {
	if username == "" {
		return nil
	}

	tx, err := store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.GetUserByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("lookup admin user: %w", err)
	}

	generated := password == ""
	if generated {
		if password, err = crypto.GenerateRandomString(12); err != nil {
			return fmt.Errorf("generate admin password: %w", err)
		}
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: hash,
		IsAdmin:      true,
		IsActive:     true,
	}
	if err := tx.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil
		}
		return fmt.Errorf("create admin user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit admin user: %w", err)
	}

	if generated {
		log.Warn().Str("username", username).Str("password", password).Msg("Admin user created with generated password")
	} else {
		log.Info().Str("username", username).Msg("Admin user created")
	}
	return nil
}

// ========== Misc handlers ==========

// HandleHealth health check
func (s *RESTServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":      "healthy",
		"time":        time.Now(),
		"initialized": s.radio.Initialized(),
	}
	if state, err := s.radio.PowerState(); err == nil {
		resp["state"] = state
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// HandleRoot root handler
func (s *RESTServer) HandleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": s.config.Server.Name,
		"version": s.config.Server.Version,
		"health":  "/api/v1/health",
	})
}

// respondJSON responds with JSON
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError responds with error
func (s *RESTServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondRadioError maps a radio error to an HTTP status and reports its
// numeric code and description
func (s *RESTServer) respondRadioError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("Radio operation failed")
	}

	body := map[string]interface{}{
		"error":       err.Error(),
		"code":        radio.ErrorCode(err),
		"description": radio.ErrorString(err),
	}
	if kind, ok := radio.KindOf(err); ok {
		body["kind"] = kind.String()
	}
	s.respondJSON(w, status, body)
}

func statusForError(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return http.StatusRequestTimeout
	}

	kind, ok := radio.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}

	switch kind {
	case radio.KindInvalidParameter, radio.KindConfig, radio.KindEncryption:
		return http.StatusBadRequest
	case radio.KindOversizedPacket:
		return http.StatusRequestEntityTooLarge
	case radio.KindNotFound:
		return http.StatusNotFound
	case radio.KindPowerFailure, radio.KindChannelBusy, radio.KindNotConnected:
		return http.StatusConflict
	case radio.KindRateLimited:
		return http.StatusTooManyRequests
	case radio.KindInit, radio.KindBufferFull, radio.KindNetworkFull:
		return http.StatusServiceUnavailable
	case radio.KindTimeout:
		return http.StatusGatewayTimeout
	case radio.KindNoAck, radio.KindCRC:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ========== Helper functions ==========

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}

func queryDurationMs(r *http.Request, key string, def, max time.Duration) time.Duration {
	ms, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || ms < 0 {
		return def
	}
	d := time.Duration(ms) * time.Millisecond
	if max > 0 && d > max {
		d = max
	}
	return d
}

func pagination(r *http.Request) (int, int) {
	limit := queryInt(r, "limit", 20)
	if limit <= 0 {
		limit = 20
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
