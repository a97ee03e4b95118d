package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusByKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind Kind
		want int
	}{
		{KindInvalidInput, http.StatusBadRequest},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindPayment, http.StatusPaymentRequired},
		{KindUnavailable, http.StatusBadGateway},
		{KindOutOfRange, http.StatusInternalServerError},
		{KindUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(E(tt.kind, "x")); got != tt.want {
			t.Fatalf("HTTPStatus(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
	if got := HTTPStatus(nil); got != http.StatusOK {
		t.Fatalf("HTTPStatus(nil) = %d, want %d", got, http.StatusOK)
	}
	if got := HTTPStatus(stderrors.New("plain")); got != http.StatusInternalServerError {
		t.Fatalf("HTTPStatus(plain) = %d, want %d", got, http.StatusInternalServerError)
	}
}

func TestLocalizationKeySurvivesWrapping(t *testing.T) {
	t.Parallel()

	base := EK(KindPayment, " error.payment ", "card declined")
	wrapped := fmt.Errorf("confirm: %w", base)
	if got := LocalizationKey(wrapped); got != "error.payment" {
		t.Fatalf("LocalizationKey = %q, want %q", got, "error.payment")
	}
	if got := KindOf(wrapped); got != KindPayment {
		t.Fatalf("KindOf = %q, want %q", got, KindPayment)
	}
	if LocalizationKey(stderrors.New("plain")) != "" {
		t.Fatal("plain errors have no localization key")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	t.Parallel()

	cause := stderrors.New("dial tcp: refused")
	err := Wrap(KindUnavailable, "error.userCreation", "create user", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("expected cause to be reachable")
	}
	if err.Error() != "create user: dial tcp: refused" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if Wrap(KindUnavailable, "", "x", nil) != nil {
		t.Fatal("wrapping nil should yield nil")
	}
	if !Is(err, KindUnavailable) || Is(nil, KindUnavailable) {
		t.Fatal("Is mismatch")
	}
}
