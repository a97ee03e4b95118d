package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// envelope is the common response shape. Some endpoints put their payload
// in data, others next to success; raw keeps the whole body for those.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

// EnvelopeError is a response that decoded but reported success=false, or
// a non-2xx status whose body carried an explanation.
type EnvelopeError struct {
	Endpoint   string
	StatusCode int
	Message    string
	Detail     string
}

func (e *EnvelopeError) Error() string {
	text := strings.TrimSpace(e.Message + " " + e.Detail)
	if text == "" {
		text = "request was not successful"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status=%d: %s", e.Endpoint, e.StatusCode, text)
	}
	return fmt.Sprintf("%s: %s", e.Endpoint, text)
}

// Text returns the server message and error detail joined.
func (e *EnvelopeError) Text() string {
	return strings.TrimSpace(e.Message + " " + e.Detail)
}

// IsEmailAlreadyInUse reports whether err is the upstream "account exists"
// rejection.
func IsEmailAlreadyInUse(err error) bool {
	var env *EnvelopeError
	if !errors.As(err, &env) {
		return false
	}
	text := strings.ToLower(env.Text())
	return strings.Contains(text, "already in use") || strings.Contains(text, "auth/email-already-in-use")
}

func parseEnvelope(body []byte) (envelope, bool) {
	var env envelope
	if len(bytes.TrimSpace(body)) == 0 {
		return env, false
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return env, false
	}
	return env, true
}

func (e envelope) failed() bool {
	return e.Success != nil && !*e.Success
}

func (e envelope) errorText() string {
	raw := bytes.TrimSpace(e.Error)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var obj struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && (obj.Code != "" || obj.Message != "") {
		return strings.TrimSpace(obj.Code + " " + obj.Message)
	}
	return string(raw)
}
