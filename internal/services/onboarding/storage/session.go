package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/louisbranch/onboarding.space/internal/services/onboarding/domain"
)

// Session is a Store bound to one session id with JSON encoding.
type Session struct {
	store Store
	id    string
}

// NewSession binds store to sessionID.
func NewSession(store Store, sessionID string) *Session {
	return &Session{store: store, id: strings.TrimSpace(sessionID)}
}

// ID returns the bound session id.
func (s *Session) ID() string {
	return s.id
}

// Load decodes key into out and reports whether it existed. A value that
// no longer decodes is treated as absent.
func (s *Session) Load(ctx context.Context, key string, out any) (bool, error) {
	if s == nil || s.store == nil {
		return false, ErrNotConfigured
	}
	raw, ok, err := s.store.Get(ctx, s.id, key)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, nil
	}
	return true, nil
}

// Save encodes value under key.
func (s *Session) Save(ctx context.Context, key string, value any) error {
	if s == nil || s.store == nil {
		return ErrNotConfigured
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.store.Set(ctx, s.id, key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Remove deletes keys.
func (s *Session) Remove(ctx context.Context, keys ...string) error {
	if s == nil || s.store == nil {
		return ErrNotConfigured
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.store.Remove(ctx, s.id, keys...); err != nil {
		return fmt.Errorf("remove %s: %w", strings.Join(keys, ","), err)
	}
	return nil
}

// ClearAfterPayment drops all wizard and payment keys.
func (s *Session) ClearAfterPayment(ctx context.Context) error {
	return s.Remove(ctx, AfterPaymentKeys...)
}

// ClearSurveyResults drops survey answers and course selections.
func (s *Session) ClearSurveyResults(ctx context.Context) error {
	return s.Remove(ctx, SurveyKeys...)
}

// CurrentStep returns the saved step, or the first step when the stored
// value is missing, negative or malformed.
func (s *Session) CurrentStep(ctx context.Context) (domain.StepID, error) {
	var step int
	ok, err := s.Load(ctx, KeyCurrentStep, &step)
	if err != nil || !ok || step < 0 {
		return domain.FirstStep, err
	}
	return domain.StepID(step), nil
}

// SaveCurrentStep persists the step index.
func (s *Session) SaveCurrentStep(ctx context.Context, step domain.StepID) error {
	return s.Save(ctx, KeyCurrentStep, int(step))
}

// draftRecord mirrors domain.UserDraft but keeps the communication opt-in
// tri-state so an absent value restores as checked.
type draftRecord struct {
	domain.UserDraft
	CommunicationViaEmail *bool `json:"communicationViaEmail,omitempty"`
}

// Draft returns the saved draft. The password is never part of it.
func (s *Session) Draft(ctx context.Context) (domain.UserDraft, error) {
	var rec draftRecord
	ok, err := s.Load(ctx, KeyUserData, &rec)
	if err != nil {
		return domain.UserDraft{}, err
	}
	draft := rec.UserDraft
	draft.Password = ""
	draft.CommunicationViaEmail = !ok || rec.CommunicationViaEmail == nil || *rec.CommunicationViaEmail
	return draft, nil
}

// SaveDraft persists draft without its password.
func (s *Session) SaveDraft(ctx context.Context, draft domain.UserDraft) error {
	draft = draft.WithoutPassword()
	communication := draft.CommunicationViaEmail
	return s.Save(ctx, KeyUserData, draftRecord{UserDraft: draft, CommunicationViaEmail: &communication})
}

// MergeDraft loads the saved draft, applies update and saves the result.
func (s *Session) MergeDraft(ctx context.Context, update func(*domain.UserDraft)) (domain.UserDraft, error) {
	draft, err := s.Draft(ctx)
	if err != nil {
		return domain.UserDraft{}, err
	}
	update(&draft)
	if err := s.SaveDraft(ctx, draft); err != nil {
		return domain.UserDraft{}, err
	}
	return draft.WithoutPassword(), nil
}

// PurgePassword rewrites a stored draft that still carries a password.
func (s *Session) PurgePassword(ctx context.Context) error {
	var raw map[string]json.RawMessage
	ok, err := s.Load(ctx, KeyUserData, &raw)
	if err != nil || !ok {
		return err
	}
	if _, has := raw[domain.FieldPassword]; !has {
		return nil
	}
	delete(raw, domain.FieldPassword)
	return s.Save(ctx, KeyUserData, raw)
}

// UserID resolves the known account id: a fresh creation response wins
// over a previously stored id.
func (s *Session) UserID(ctx context.Context) (string, error) {
	var resp domain.AccountRecord
	if ok, err := s.Load(ctx, KeyCreateUserResponse, &resp); err != nil {
		return "", err
	} else if ok && strings.TrimSpace(resp.UserID) != "" {
		return strings.TrimSpace(resp.UserID), nil
	}
	var id string
	if _, err := s.Load(ctx, KeyUserID, &id); err != nil {
		return "", err
	}
	return strings.TrimSpace(id), nil
}

// SaveAccount records a successful account creation under both keys.
func (s *Session) SaveAccount(ctx context.Context, record domain.AccountRecord) error {
	if err := s.Save(ctx, KeyCreateUserResponse, record); err != nil {
		return err
	}
	return s.Save(ctx, KeyUserID, record.UserID)
}

// Bool loads a boolean flag, false when absent.
func (s *Session) Bool(ctx context.Context, key string) (bool, error) {
	var v bool
	_, err := s.Load(ctx, key, &v)
	return v, err
}

// Strings loads a string list, empty when absent.
func (s *Session) Strings(ctx context.Context, key string) ([]string, error) {
	var v []string
	_, err := s.Load(ctx, key, &v)
	return v, err
}

// Answers loads a survey answer list, empty when absent.
func (s *Session) Answers(ctx context.Context, key string) ([]domain.SurveyAnswer, error) {
	var v []domain.SurveyAnswer
	_, err := s.Load(ctx, key, &v)
	return v, err
}
