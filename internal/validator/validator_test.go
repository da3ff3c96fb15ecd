package validator

import (
	"errors"
	"testing"

	"github.com/appknox/ak-translator/internal/content"
	"github.com/appknox/ak-translator/internal/language"
)

var (
	spanish    = language.Language{Code: "es-419", Name: "Latin American Spanish"}
	vietnamese = language.Language{Code: "vi", Name: "Vietnamese"}
)

func newValidator() *Validator {
	return New([]language.Language{spanish, vietnamese})
}

func TestCheck_ShortText(t *testing.T) {
	v := newValidator()

	// Less than minValidationLength (20 chars)
	if err := v.Check(content.String("Start scan"), spanish); err != nil {
		t.Errorf("unexpected error for short text: %v", err)
	}
}

func TestCheck_MatchingLanguage(t *testing.T) {
	v := newValidator()

	text := "Abre la configuración para comenzar el análisis de tu aplicación."
	if err := v.Check(content.String(text), spanish); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCheck_UntranslatedText(t *testing.T) {
	v := newValidator()

	text := "Open the settings page to start scanning your application."
	err := v.Check(content.String(text), spanish)

	var mismatch *MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected MismatchError, got %v", err)
	}
	if mismatch.Detected != "en" {
		t.Errorf("detected = %q, want en", mismatch.Detected)
	}
}

func TestCheck_DocumentLeaves(t *testing.T) {
	v := newValidator()

	doc, err := content.ParseStructured(`{"title": "Bảng điều khiển", "body": "Quét ứng dụng của bạn để tìm lỗ hổng bảo mật.", "count": 3}`)
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Check(doc, vietnamese); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSample_StripsPlaceholders(t *testing.T) {
	doc, err := content.ParseStructured(`{"a": "Hola {{name}}", "b": "<b>Listo</b>", "c": "  "}`)
	if err != nil {
		t.Fatal(err)
	}
	got := sample(doc)
	if got != "Hola\nListo" {
		t.Errorf("sample = %q", got)
	}
}
