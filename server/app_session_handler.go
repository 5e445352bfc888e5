package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/jrsteele09/go-app-lock/internal/metrics"
	"github.com/jrsteele09/go-app-lock/reauth"
	"github.com/jrsteele09/go-app-lock/reauth/authclient"
	"github.com/rs/zerolog/log"
)

const maxRequestBytes = 1 << 16

// AppSessionHandler exchanges a password or MFA code for an app-scoped token.
// Failures answer with a {message} the client can show as is.
func (s *Server) AppSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appID, err := strconv.Atoi(r.PathValue("appId"))
		if err != nil || appID < 0 {
			writeJSONMessage(w, "Unknown app.", http.StatusNotFound)
			return
		}

		user, ok := userFromContext(r.Context())
		if !ok {
			writeJSONMessage(w, msgSessionEnded, http.StatusUnauthorized)
			return
		}
		if user.Blocked {
			writeJSONMessage(w, "This account is blocked.", http.StatusForbidden)
			return
		}
		if !user.CanUnlock(appID) {
			writeJSONMessage(w, "You do not have access to this app.", http.StatusForbidden)
			return
		}

		var req authclient.ExchangeRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
			writeJSONMessage(w, "Invalid request.", http.StatusBadRequest)
			return
		}

		creds := reauth.Credentials{Password: req.Password, MFACode: reauth.SanitizeMFACode(req.MFACode)}
		if err := creds.Validate(user.MFAAuth()); err != nil {
			writeJSONMessage(w, err.Error(), http.StatusBadRequest)
			return
		}

		switch creds.Mode() {
		case reauth.ModePassword:
			if !user.CheckPassword(creds.Password) {
				s.rejected(w, appID, creds.Mode(), "Incorrect password.")
				return
			}
		case reauth.ModeMFA:
			if !user.CheckMFACode(creds.MFACode) {
				s.rejected(w, appID, creds.Mode(), "Incorrect verification code.")
				return
			}
		}

		tok, err := s.issuer.Issue(user.ID, appID)
		if err != nil {
			logError(r.Method, r.URL.Path, err)
			writeJSONMessage(w, reauth.GenericMessage, http.StatusInternalServerError)
			return
		}
		metrics.TokensIssued.Inc()
		log.Info().Str("user_id", user.ID).Int("app_id", appID).Str("mode", string(creds.Mode())).Msg("issued app session token")

		writeJSON(w, authclient.ExchangeResponse{AppSessionToken: tok}, http.StatusOK)
	}
}

func (s *Server) rejected(w http.ResponseWriter, appID int, mode reauth.Mode, message string) {
	log.Warn().Int("app_id", appID).Str("mode", string(mode)).Msg("app session credentials rejected")
	writeJSONMessage(w, message, http.StatusUnauthorized)
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok", "time": s.nowTime().UTC().Format(time.RFC3339)}, http.StatusOK)
	}
}
