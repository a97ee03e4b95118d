package orchestrator

import (
	"context"
	"strconv"

	apperrors "github.com/louisbranch/onboarding.space/internal/platform/errors"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/checkout"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/domain"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/gateway"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage"
	"go.uber.org/zap"
)

// ensureAccount creates the account, or adopts the locally known one when
// the server reports the email as taken.
func (o *Orchestrator) ensureAccount(ctx context.Context, draft domain.UserDraft, trial bool) (string, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.CreateUser")
	defer span.End()

	existing, err := o.store.UserID(ctx)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindUnknown, domain.MsgUserCreation, "resolve user id", err)
	}
	req, err := o.buildCreateUser(ctx, draft, existing, trial)
	if err != nil {
		return "", err
	}
	if err := o.store.Save(ctx, storage.KeyCreateUserPayload, req.WithoutPassword()); err != nil {
		o.logger.Warn("save create user payload", zap.Error(err))
	}

	record, err := o.gw.CreateUser(ctx, req)
	switch {
	case err == nil:
	case gateway.IsEmailAlreadyInUse(err) && existing != "":
		o.logger.Info("email already registered, reusing local account", zap.String("user_id", existing))
		record = domain.AccountRecord{UserID: existing, Success: true}
	case gateway.IsEmailAlreadyInUse(err):
		span.RecordError(err)
		o.blocked = true
		return "", apperrors.Wrap(apperrors.KindConflict, domain.MsgUserExistsNoLocal, "email in use without local account", err)
	default:
		span.RecordError(err)
		return "", apperrors.Wrap(apperrors.KindUnavailable, domain.MsgUserCreation, "create user", err)
	}

	if err := o.store.SaveAccount(ctx, record); err != nil {
		return "", apperrors.Wrap(apperrors.KindUnknown, domain.MsgUserCreation, "save account", err)
	}
	o.sess.PurgePassword()
	if err := o.store.PurgePassword(ctx); err != nil {
		o.logger.Warn("purge stored password", zap.Error(err))
	}
	o.view.LockAccountFields()
	return record.UserID, nil
}

func (o *Orchestrator) buildCreateUser(ctx context.Context, draft domain.UserDraft, existing string, trial bool) (gateway.CreateUserRequest, error) {
	selected, err := o.store.Strings(ctx, storage.KeySelectedCourses)
	if err != nil {
		return gateway.CreateUserRequest{}, apperrors.Wrap(apperrors.KindUnknown, domain.MsgUserCreation, "load selection", err)
	}
	recommended, _ := o.store.Strings(ctx, storage.KeyRecommendedCourses)
	answers1, _ := o.store.Answers(ctx, storage.KeySurveyAnswers1)
	answers2, _ := o.store.Answers(ctx, storage.KeySurveyAnswers2)

	var providerKey string
	_, _ = o.store.Load(ctx, storage.KeySelectedHealthProvider, &providerKey)
	catalog, ok := o.sess.Catalog()
	if !ok {
		_, _ = o.store.Load(ctx, storage.KeyHealthProviders, &catalog)
	}
	provider := catalog[providerKey]

	var contra []domain.Contraindication
	_, _ = o.store.Load(ctx, storage.KeyContraindications, &contra)

	req := gateway.CreateUserRequest{
		Email:            draft.Email,
		FirstName:        draft.FirstName,
		LastName:         draft.LastName,
		DateOfBirth:      draft.DateOfBirth,
		NamePrefix:       draft.NamePrefix,
		NewsletterSignUp: draft.NewsletterSignUp,
		HasPreconditions: checkout.HasPreconditions(contra, recommended),
		IsTrial:          trial,
		HealthProvider: gateway.ProviderSnapshot{
			MaxCoursePrice:  provider.MaxCoursePrice,
			Name:            providerKey,
			NumberOfCourses: strconv.Itoa(len(recommended)),
			Takeover:        provider.Takeover,
		},
		SelectedCourses: domain.UpperSlugs(selected),
	}
	req.Onboarding.Answers.Step1 = domain.AnswerTypes(answers1)
	req.Onboarding.Answers.Step2 = domain.AnswerTypes(answers2)

	if existing == "" {
		password := draft.Password
		if password == "" {
			password = o.sess.PendingPassword()
		}
		if password == "" {
			return gateway.CreateUserRequest{}, apperrors.EK(apperrors.KindInvalidInput, domain.MsgPassword, "password required for a new account")
		}
		req.Password = password
	}
	return req, nil
}
