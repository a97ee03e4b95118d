package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEmbeddedHasExpectedLocales(t *testing.T) {
	bundle, err := LoadEmbedded()
	if err != nil {
		t.Fatalf("load embedded catalogs: %v", err)
	}
	for _, locale := range []string{BaseLocale, "en-US"} {
		if !bundle.HasLocale(locale) {
			t.Fatalf("expected locale %s", locale)
		}
	}
	if got := len(bundle.NamespaceMessages(BaseLocale, "onboarding")); got == 0 {
		t.Fatal("expected onboarding namespace messages")
	}
}

func TestMessageFallsBackToBaseLocale(t *testing.T) {
	bundle, err := LoadEmbedded()
	if err != nil {
		t.Fatalf("load embedded catalogs: %v", err)
	}
	// en-US does not translate the invoice failure.
	got, ok := bundle.Message("en-US", "error.invoice")
	if !ok || got != "Die Rechnung konnte nicht erstellt werden" {
		t.Fatalf("Message = %q, %v", got, ok)
	}
	if _, ok := bundle.Message("en-US", "missing.key"); ok {
		t.Fatal("unexpected message for missing key")
	}
}

func TestLocalizeFormatsArguments(t *testing.T) {
	bundle, err := LoadEmbedded()
	if err != nil {
		t.Fatalf("load embedded catalogs: %v", err)
	}
	if got := bundle.Localize(BaseLocale, "verify.resendCountdown", 42); got != "Nochmals senden (42)" {
		t.Fatalf("Localize = %q", got)
	}
	if got := bundle.Localize("en-US", "summary.months", 18); got != "18 months access" {
		t.Fatalf("Localize = %q", got)
	}
	if got := bundle.Localize("en-US", "unknown.key"); got != "unknown.key" {
		t.Fatalf("Localize unknown = %q", got)
	}
}

func TestMatchAcceptLanguage(t *testing.T) {
	bundle, err := LoadEmbedded()
	if err != nil {
		t.Fatalf("load embedded catalogs: %v", err)
	}
	tests := []struct {
		header string
		want   string
	}{
		{header: "", want: BaseLocale},
		{header: "en-US,en;q=0.9", want: "en-US"},
		{header: "de", want: BaseLocale},
		{header: "ja-JP", want: BaseLocale},
	}
	for _, tt := range tests {
		if got := bundle.Match(tt.header); got != tt.want {
			t.Fatalf("Match(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestLoadFromFSRejectsDuplicateKeysAcrossNamespaces(t *testing.T) {
	tempDir := t.TempDir()
	mustWriteFile(t, filepath.Join(tempDir, "locales/de-DE/a.yaml"), `locale: "de-DE"
namespace: "a"
messages:
  "shared.key": "a"
`)
	mustWriteFile(t, filepath.Join(tempDir, "locales/de-DE/b.yaml"), `locale: "de-DE"
namespace: "b"
messages:
  "shared.key": "b"
`)

	if _, err := LoadFromFS(os.DirFS(tempDir)); err == nil {
		t.Fatal("expected duplicate key error")
	}
}

func TestLoadFromFSRequiresBaseLocale(t *testing.T) {
	tempDir := t.TempDir()
	mustWriteFile(t, filepath.Join(tempDir, "locales/en-US/a.yaml"), `locale: "en-US"
namespace: "a"
messages:
  "k": "v"
`)

	if _, err := LoadFromFS(os.DirFS(tempDir)); err == nil {
		t.Fatal("expected missing base locale error")
	}
}

func TestLoadFromFSRejectsLocaleMismatch(t *testing.T) {
	tempDir := t.TempDir()
	mustWriteFile(t, filepath.Join(tempDir, "locales/de-DE/a.yaml"), `locale: "en-US"
namespace: "a"
messages:
  "k": "v"
`)

	if _, err := LoadFromFS(os.DirFS(tempDir)); err == nil {
		t.Fatal("expected locale mismatch error")
	}
}

func mustWriteFile(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
