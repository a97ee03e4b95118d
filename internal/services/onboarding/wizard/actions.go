package wizard

import (
	"context"
	"slices"

	apperrors "github.com/louisbranch/onboarding.space/internal/platform/errors"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/domain"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/validate"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/view"
	"go.uber.org/zap"
)

// FieldUpdate is one autosaved form input. Checked is set for checkboxes.
type FieldUpdate struct {
	Name    string `json:"name"`
	Value   string `json:"value,omitempty"`
	Checked *bool  `json:"checked,omitempty"`
}

// StartTrial marks the session as a trial and continues like Next.
func (c *Controller) StartTrial(ctx context.Context, snap validate.Snapshot) (validate.Result, error) {
	if err := c.store.Save(ctx, storage.KeyTrial, true); err != nil {
		return validate.Result{}, apperrors.Wrap(apperrors.KindUnknown, domain.MsgUnknown, "save trial flag", err)
	}
	return c.Next(ctx, snap)
}

// ToggleCourses replaces the course selection on the result step. Changing
// the selection leaves trial mode.
func (c *Controller) ToggleCourses(ctx context.Context, selected []string) error {
	recommended, err := c.store.Strings(ctx, storage.KeyRecommendedCourses)
	if err != nil {
		return apperrors.Wrap(apperrors.KindUnknown, domain.MsgUnknown, "load recommendation", err)
	}
	kept := make([]string, 0, len(selected))
	for _, slug := range selected {
		if slices.Contains(recommended, slug) && !slices.Contains(kept, slug) {
			kept = append(kept, slug)
		}
	}
	if err := c.store.Save(ctx, storage.KeySelectedCourses, kept); err != nil {
		return apperrors.Wrap(apperrors.KindUnknown, domain.MsgUnknown, "save selection", err)
	}
	if err := c.store.Save(ctx, storage.KeyTrial, false); err != nil {
		c.logger.Warn("reset trial flag", zap.Error(err))
	}
	c.showRecommendation(ctx, recommended, kept)
	return nil
}

// SelectProvider shows the info box for key. While the full catalog is
// still loading the box is filled on arrival.
func (c *Controller) SelectProvider(_ context.Context, key string) error {
	c.chosen = key
	if key == "" || c.sess.CatalogLoading() {
		return nil
	}
	c.showProviderInfo(key)
	return nil
}

// SaveField autosaves one input into the draft. The password is never
// stored, and the communication opt-in cannot be unchecked.
func (c *Controller) SaveField(ctx context.Context, update FieldUpdate) error {
	if update.Name == domain.FieldPassword {
		return nil
	}
	if update.Name == domain.FieldCommunicationViaEmail && update.Checked != nil && !*update.Checked {
		draft, err := c.store.MergeDraft(ctx, func(d *domain.UserDraft) { d.CommunicationViaEmail = true })
		if err != nil {
			return apperrors.Wrap(apperrors.KindUnknown, domain.MsgUnknown, "recheck communication opt-in", err)
		}
		c.showForm(ctx, draft)
		return nil
	}

	known := false
	_, err := c.store.MergeDraft(ctx, func(d *domain.UserDraft) {
		if update.Checked != nil {
			known = d.SetChecked(update.Name, *update.Checked)
			return
		}
		known = d.SetText(update.Name, update.Value)
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindUnknown, domain.MsgUnknown, "autosave "+update.Name, err)
	}
	if !known {
		return apperrors.EK(apperrors.KindInvalidInput, domain.MsgRequiredFields, "unknown field "+update.Name)
	}
	return nil
}

// RedoSurvey drops the survey results and restarts at the first survey
// step. The draft and any account survive.
func (c *Controller) RedoSurvey(ctx context.Context) error {
	if err := c.store.ClearSurveyResults(ctx); err != nil {
		return apperrors.Wrap(apperrors.KindUnknown, domain.MsgUnknown, "clear survey results", err)
	}
	return c.GoTo(ctx, domain.StepSurveyA)
}

// Restart clears the whole flow and returns to provider selection.
func (c *Controller) Restart(ctx context.Context) error {
	if err := c.store.ClearAfterPayment(ctx); err != nil {
		return apperrors.Wrap(apperrors.KindUnknown, domain.MsgUnknown, "clear session", err)
	}
	c.submitter.Reset()
	c.sess.PurgePassword()
	c.chosen = ""
	c.view.ShowForm(view.Form{NamePrefixes: c.prefixes})
	return c.GoTo(ctx, domain.FirstStep)
}

// ResumeAfterVerification continues a submission interrupted by leaving
// for the verification link. It needs a draft with an identity, otherwise
// nothing happens.
func (c *Controller) ResumeAfterVerification(ctx context.Context) error {
	draft, err := c.store.Draft(ctx)
	if err != nil {
		return apperrors.Wrap(apperrors.KindUnknown, domain.MsgUnknown, "load draft", err)
	}
	if !draft.HasIdentity() {
		c.logger.Info("resume after verification skipped, draft incomplete")
		return nil
	}
	if c.step < domain.LastStep {
		if err := c.GoTo(ctx, domain.LastStep); err != nil {
			return err
		}
	}
	return c.submitter.Submit(ctx, draft)
}

func (c *Controller) showForm(ctx context.Context, draft domain.UserDraft) {
	userID, _ := c.store.UserID(ctx)
	exists := userID != ""
	c.view.ShowForm(view.Form{
		Draft:           draft,
		NamePrefixes:    c.namePrefixes(ctx),
		AccountExists:   exists,
		FieldsLocked:    exists,
		PasswordHidden:  exists,
		RestoreConsents: true,
	})
}
