package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/pyoots/internal/messaging"
	"github.com/BTreeMap/pyoots/internal/models"
)

// allowMethod rejects requests whose method differs from want.
func allowMethod(w http.ResponseWriter, r *http.Request, want string) bool {
	if r.Method == want {
		return true
	}
	w.Header().Set("Allow", want)
	slog.Warn("Server: method not allowed", "method", r.Method, "path", r.URL.Path)
	writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	return false
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.APIResponse{Status: string(models.APIStatusOK)})
}

func (s *Server) surveyCompleteHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	var req models.SurveyCompleteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes)).Decode(&req); err != nil {
		slog.Warn("Server.surveyCompleteHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if _, err := s.surveys.GetUser(r.Context(), req.UserID); err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			slog.Warn("Server.surveyCompleteHandler: unknown user", "user_id", req.UserID)
			writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown user"))
			return
		}
		slog.Error("Server.surveyCompleteHandler: failed to look up user", "error", err, "user_id", req.UserID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to record survey completion"))
		return
	}

	if err := s.surveys.CompleteSurvey(r.Context(), req.UserID, s.now()); err != nil {
		slog.Error("Server.surveyCompleteHandler: failed to complete survey", "error", err, "user_id", req.UserID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to record survey completion"))
		return
	}
	slog.Info("Server.surveyCompleteHandler: survey completed", "user_id", req.UserID)
	writeJSONResponse(w, http.StatusOK, models.Recorded())
}

func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if !allowMethod(w, r, http.MethodPost) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes)
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.twilioWebhookHandler: failed to parse form", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid form body"))
		return
	}

	if s.validator != nil {
		params := make(map[string]string, len(r.PostForm))
		for k := range r.PostForm {
			params[k] = r.PostForm.Get(k)
		}
		if !s.validator.Validate(s.signedURL(r), params, r.Header.Get("X-Twilio-Signature")) {
			slog.Warn("Server.twilioWebhookHandler: signature mismatch", "remote", r.RemoteAddr)
			writeJSONResponse(w, http.StatusForbidden, models.Error("Invalid signature"))
			return
		}
	}

	from := r.PostForm.Get("From")
	body := r.PostForm.Get("Body")
	sid := r.PostForm.Get("MessageSid")
	err := s.webhook.Deliver(from, body, sid, s.now())
	switch {
	case err == nil:
	case errors.Is(err, models.ErrEmptyMessage):
		// Media-only messages carry no text for the bot.
		slog.Debug("Server.twilioWebhookHandler: ignoring message without text", "sid", sid)
	case errors.Is(err, messaging.ErrInvalidRecipient):
		slog.Warn("Server.twilioWebhookHandler: invalid sender", "from", from, "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid sender"))
		return
	default:
		slog.Error("Server.twilioWebhookHandler: failed to deliver message", "error", err, "sid", sid)
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Message not accepted"))
		return
	}
	writeTwiML(w)
}

// signedURL is the URL Twilio computed the signature over.
func (s *Server) signedURL(r *http.Request) string {
	if s.webhookURL != "" {
		return s.webhookURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
