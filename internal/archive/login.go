package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

const loginPath = "account/login"

type loginResponse struct {
	Status  *string `json:"status"`
	Message string  `json:"message"`
}

// Login primes the session cookies and submits the account credentials.
func (s *Session) Login(ctx context.Context, email, password string) error {
	if _, _, err := s.GetRaw(ctx, loginPath, nil); err != nil {
		return fmt.Errorf("prime login cookies: %w", err)
	}

	headers := http.Header{}
	headers.Set("Referer", s.URL(loginPath))

	resp, err := s.PostForm(ctx, loginPath, url.Values{
		"username":     {email},
		"password":     {password},
		"remember":     {"True"},
		"referer":      {s.URL("")},
		"login":        {"True"},
		"submit_by_js": {"True"},
	}, headers)
	if err != nil {
		return err
	}

	var lr loginResponse
	if raw, ok := resp["status"]; ok {
		var status string
		if err := json.Unmarshal(raw, &status); err == nil {
			lr.Status = &status
		}
	}
	if raw, ok := resp["message"]; ok {
		_ = json.Unmarshal(raw, &lr.Message)
	}

	if lr.Status == nil || *lr.Status != "ok" {
		status := "<missing>"
		if lr.Status != nil {
			status = *lr.Status
		}
		s.log.Error("login rejected", zap.String("status", status), zap.String("message", lr.Message))
		msg := lr.Message
		if msg == "" {
			msg = "status " + status
		}
		return &ServiceError{Action: "login", Message: msg, kind: ErrAuthentication}
	}

	s.authenticated.Store(true)
	s.log.Debug("logged in")
	return nil
}
