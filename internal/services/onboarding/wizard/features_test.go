package wizard

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/domain"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/gateway/gatewaytest"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/orchestrator"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/recommend"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/session"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/storage/memory"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/validate"
	"github.com/louisbranch/onboarding.space/internal/services/onboarding/view"
	"go.uber.org/zap"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

// scenario is one wizard session wired to the real orchestrator and a fake
// gateway.
type scenario struct {
	sess  *session.Context
	store *storage.Session
	view  *view.Recorder
	gw    *gatewaytest.Fake
	orch  *orchestrator.Orchestrator
	ctrl  *Controller
	last  validate.Result
}

func initializeScenario(sc *godog.ScenarioContext) {
	s := &scenario{}

	sc.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		if s.sess != nil {
			s.sess.Dispose()
		}
		return ctx, err
	})

	sc.Step(`^a fresh onboarding session$`, s.freshSession)
	sc.Step(`^the visitor chose the provider "([^"]*)"$`, s.choseProvider)
	sc.Step(`^the visitor answers the survey page with "([^"]*)"$`, s.answerSurvey)
	sc.Step(`^the visitor reached the sign-up step$`, s.reachedSignUp)
	sc.Step(`^the session belongs to the account "([^"]*)"$`, s.belongsToAccount)
	sc.Step(`^the visitor submits the sign-up form$`, s.submitForm)
	sc.Step(`^the visitor submits the sign-up form without an email$`, s.submitWithoutEmail)
	sc.Step(`^the visitor submits the sign-up form born exactly 18 years ago$`, s.submitBornEighteenYearsAgo)
	sc.Step(`^the visitor redoes the survey$`, s.redoSurvey)
	sc.Step(`^the payment is confirmed as "([^"]*)"$`, s.confirmPayment)
	sc.Step(`^the step is (not )?accepted$`, s.stepAccepted)
	sc.Step(`^the error "([^"]*)" is (not )?shown$`, s.errorShown)
	sc.Step(`^the wizard (?:stays|is) on step (\d+)$`, s.onStep)
	sc.Step(`^the recommended course types are "([^"]*)"$`, s.recommendedTypes)
	sc.Step(`^the recommended courses are "([^"]*)"$`, s.recommendedCourses)
	sc.Step(`^the survey results are cleared$`, s.surveyCleared)
	sc.Step(`^the draft still has the email "([^"]*)"$`, s.draftEmail)
	sc.Step(`^the account id is "([^"]*)"$`, s.accountID)
	sc.Step(`^the visitor is redirected to "([^"]*)"$`, s.redirectedTo)
	sc.Step(`^no invoice was requested$`, s.noInvoice)
	sc.Step(`^the session keys are cleared$`, s.keysCleared)
}

func (s *scenario) do(fn func(ctx context.Context) error) error {
	var out error
	if err := s.sess.Do(func() error {
		out = fn(context.Background())
		return nil
	}); err != nil {
		return err
	}
	return out
}

func (s *scenario) freshSession() error {
	s.gw = gatewaytest.New()
	s.sess = session.New("sess-feature", memory.New(), zap.NewNop())
	s.sess.Init(context.Background())
	s.store = s.sess.Store()
	s.view = view.NewRecorder()
	s.orch = orchestrator.New(s.sess, s.view, s.gw, orchestrator.Config{Now: func() time.Time { return today }})
	s.ctrl = New(s.sess, s.view, s.gw, nil, s.orch, Config{Now: func() time.Time { return today }})
	if err := s.do(s.ctrl.Start); err != nil {
		return err
	}
	return s.waitCatalog()
}

func (s *scenario) waitCatalog() error {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		loading := true
		if err := s.do(func(context.Context) error {
			loading = s.view.Model().Providers.Loading
			return nil
		}); err != nil {
			return err
		}
		if !loading {
			return nil
		}
		time.Sleep(2 * time.Millisecond)
	}
	return fmt.Errorf("provider catalog never arrived")
}

func (s *scenario) next(snap validate.Snapshot) error {
	return s.do(func(ctx context.Context) error {
		res, err := s.ctrl.Next(ctx, snap)
		s.last = res
		return err
	})
}

func (s *scenario) mustAdvance(snap validate.Snapshot) error {
	if err := s.next(snap); err != nil {
		return err
	}
	if !s.last.Valid {
		return fmt.Errorf("step rejected: %v", s.last.Errors)
	}
	return nil
}

func (s *scenario) choseProvider(key string) error {
	return s.mustAdvance(validate.Snapshot{Provider: key})
}

func (s *scenario) answerSurvey(ids string) error {
	return s.next(validate.Snapshot{Selected: strings.Split(ids, ",")})
}

func (s *scenario) reachedSignUp() error {
	for _, snap := range []validate.Snapshot{
		{Provider: "aok"},
		{Selected: []string{"a1", "a2"}},
		{Selected: []string{"b1"}},
		{Selected: []string{"STRESS", "FITNESS"}},
		{Consents: [2]bool{true, true}},
	} {
		if err := s.mustAdvance(snap); err != nil {
			return err
		}
	}
	return s.do(func(ctx context.Context) error {
		_, err := s.store.MergeDraft(ctx, func(d *domain.UserDraft) { d.Email = "erika@example.de" })
		return err
	})
}

func (s *scenario) belongsToAccount(id string) error {
	return s.do(func(ctx context.Context) error {
		return s.store.SaveAccount(ctx, domain.AccountRecord{UserID: id, Success: true})
	})
}

func (s *scenario) submitForm() error {
	return s.next(signUpSnapshot())
}

func (s *scenario) submitWithoutEmail() error {
	snap := signUpSnapshot()
	snap.Fields[domain.FieldEmail] = ""
	return s.next(snap)
}

func (s *scenario) submitBornEighteenYearsAgo() error {
	snap := signUpSnapshot()
	snap.Fields[domain.FieldDateOfBirth] = today.AddDate(-validate.MinimumAge, 0, 0).Format(validate.DateLayout)
	return s.next(snap)
}

func (s *scenario) redoSurvey() error {
	return s.do(s.ctrl.RedoSurvey)
}

func (s *scenario) confirmPayment(status string) error {
	return s.do(func(ctx context.Context) error {
		return s.orch.ConfirmPayment(ctx, orchestrator.PaymentResult{PaymentIntentID: "pi_feature", Status: domain.PaymentStatus(status)})
	})
}

func (s *scenario) stepAccepted(not string) error {
	if want := not == ""; s.last.Valid != want {
		return fmt.Errorf("valid = %v, want %v (errors %v)", s.last.Valid, want, s.last.Errors)
	}
	return nil
}

func (s *scenario) errorShown(key, not string) error {
	shown := slices.Contains(s.last.Errors, key)
	if want := not == ""; shown != want {
		return fmt.Errorf("error %q shown = %v, want %v (errors %v)", key, shown, want, s.last.Errors)
	}
	return nil
}

func (s *scenario) onStep(step int) error {
	var got domain.StepID
	if err := s.do(func(context.Context) error {
		got = s.ctrl.Step()
		return nil
	}); err != nil {
		return err
	}
	if got != domain.StepID(step) {
		return fmt.Errorf("step = %v, want %d", got, step)
	}
	return nil
}

func (s *scenario) recommendedTypes(want string) error {
	var types []string
	err := s.do(func(ctx context.Context) error {
		first, err := s.store.Answers(ctx, storage.KeySurveyAnswers1)
		if err != nil {
			return err
		}
		second, err := s.store.Answers(ctx, storage.KeySurveyAnswers2)
		if err != nil {
			return err
		}
		types = recommend.FromAnswers(first, second, s.gw.CoursesData).Types
		return nil
	})
	if err != nil {
		return err
	}
	if got := strings.Join(types, ","); got != want {
		return fmt.Errorf("types = %s, want %s", got, want)
	}
	return nil
}

func (s *scenario) recommendedCourses(want string) error {
	var got []string
	err := s.do(func(ctx context.Context) error {
		var err error
		got, err = s.store.Strings(ctx, storage.KeyRecommendedCourses)
		return err
	})
	if err != nil {
		return err
	}
	if strings.Join(got, ",") != want {
		return fmt.Errorf("courses = %v, want %s", got, want)
	}
	return nil
}

func (s *scenario) surveyCleared() error {
	return s.do(func(ctx context.Context) error {
		for _, key := range storage.SurveyKeys {
			var v any
			ok, err := s.store.Load(ctx, key, &v)
			if err != nil {
				return err
			}
			if ok {
				return fmt.Errorf("%s survived", key)
			}
		}
		return nil
	})
}

func (s *scenario) draftEmail(want string) error {
	return s.do(func(ctx context.Context) error {
		draft, err := s.store.Draft(ctx)
		if err != nil {
			return err
		}
		if draft.Email != want {
			return fmt.Errorf("email = %q, want %q", draft.Email, want)
		}
		return nil
	})
}

func (s *scenario) accountID(want string) error {
	return s.do(func(ctx context.Context) error {
		id, err := s.store.UserID(ctx)
		if err != nil {
			return err
		}
		if id != want {
			return fmt.Errorf("user id = %q, want %q", id, want)
		}
		return nil
	})
}

func (s *scenario) redirectedTo(want string) error {
	var got string
	if err := s.do(func(context.Context) error {
		got = s.view.Model().Redirect
		return nil
	}); err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("redirect = %q, want %q", got, want)
	}
	return nil
}

func (s *scenario) noInvoice() error {
	if n := s.gw.Count("PurchaseAndInvoice"); n != 0 {
		return fmt.Errorf("invoice requested %d times", n)
	}
	return nil
}

func (s *scenario) keysCleared() error {
	return s.do(func(ctx context.Context) error {
		for _, key := range storage.AfterPaymentKeys {
			var v any
			ok, err := s.store.Load(ctx, key, &v)
			if err != nil {
				return err
			}
			if ok {
				return fmt.Errorf("%s survived", key)
			}
		}
		return nil
	})
}
