package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appknox/ak-translator/internal/agent"
	"github.com/appknox/ak-translator/internal/capability/capabilitytest"
	"github.com/appknox/ak-translator/internal/content"
	"github.com/appknox/ak-translator/internal/language"
)

const malformed = `{'title': 'Welcome', 'cta': 'Start scan',}`

// echoModel answers every prompt; translations are "<language>: <source>".
func echoModel(failFor string) capabilitytest.Handler {
	return func(prompt string, vars map[string]any) (string, error) {
		switch prompt {
		case "classify":
			return `{"content_type": "malformed_json", "is_malformed_json": true, "malformed_json_issues": ["single quotes"], "content_summary": "labels"}`, nil
		case "repair":
			return `{"fixed_json_content": {"title": "Welcome", "cta": "Start scan"}}`, nil
		case "translate":
			lang := vars["target_language"].(string)
			if lang == failFor {
				return "", errors.New("backend unavailable")
			}
			src := vars["input_query"].(string)
			if doc, err := content.ParseStructured(src); err == nil {
				texts := content.Extract(doc)
				for k, v := range texts {
					texts[k] = lang + ": " + v
				}
				return fmt.Sprintf(`{"current_translation": %s}`, content.Rebuild(doc, texts).Compact()), nil
			}
			return fmt.Sprintf(`{"current_translation": %q}`, lang+": "+src), nil
		case "review":
			return `{"decision": "APPROVE", "reasoning": "fine", "rating": 4}`, nil
		case "format":
			return fmt.Sprintf(`{"final_translation": %q, "final_translation_rating": 4}`, vars["current_translation"]), nil
		}
		return "", fmt.Errorf("unexpected prompt %s", prompt)
	}
}

func newService(t *testing.T, fake *capabilitytest.Fake, opts Options) *Service {
	t.Helper()
	set, err := language.NewSet([]string{"ja", "vi"})
	require.NoError(t, err)
	return New(fake, set, opts)
}

func TestService_TranslateString(t *testing.T) {
	fake := capabilitytest.New().Handle(echoModel(""))
	s := newService(t, fake, Options{})

	res, err := s.Translate(context.Background(), content.String("Hello"), "ja")
	require.NoError(t, err)
	assert.Equal(t, content.String("Japanese: Hello"), res.FinalTranslation)
	assert.Equal(t, 4, res.FinalRating)
	assert.False(t, res.WasStructured)
}

func TestService_CacheSkipsReclassification(t *testing.T) {
	fake := capabilitytest.New().Handle(echoModel(""))
	s := newService(t, fake, Options{})
	ctx := context.Background()

	first, err := s.Translate(ctx, content.String(malformed), "ja")
	require.NoError(t, err)
	second, err := s.Translate(ctx, content.String(malformed), "vi")
	require.NoError(t, err)

	assert.Equal(t, 1, fake.Calls("classify"))
	assert.Equal(t, 1, fake.Calls("repair"))
	assert.True(t, first.WasStructured)
	assert.True(t, second.WasStructured)
	assert.Equal(t, `{"title":"Vietnamese: Welcome","cta":"Vietnamese: Start scan"}`, second.FinalTranslation.Compact())

	assert.True(t, s.ClearCache())
	_, err = s.Translate(ctx, content.String(malformed), "ja")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.Calls("classify"))
}

func TestService_CacheEvictsOnNewInput(t *testing.T) {
	fake := capabilitytest.New().Handle(echoModel(""))
	s := newService(t, fake, Options{})
	ctx := context.Background()

	_, err := s.Prepare(ctx, content.String(malformed))
	require.NoError(t, err)
	_, err = s.Prepare(ctx, content.String(malformed+" "))
	require.NoError(t, err)
	_, err = s.Prepare(ctx, content.String(malformed))
	require.NoError(t, err)

	assert.Equal(t, 3, fake.Calls("classify"), "the slot holds only the most recent input")
}

func TestService_CacheDisabled(t *testing.T) {
	fake := capabilitytest.New().Handle(echoModel(""))
	s := newService(t, fake, Options{DisableCache: true})
	ctx := context.Background()

	for range 2 {
		_, err := s.Prepare(ctx, content.String(malformed))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, fake.Calls("classify"))
	assert.False(t, s.ClearCache())
}

func TestService_TranslateAll(t *testing.T) {
	fake := capabilitytest.New().Handle(echoModel(""))
	s := newService(t, fake, Options{})

	doc, err := content.Parse([]byte(`{"greeting": "Hello {{name}}"}`))
	require.NoError(t, err)

	results, err := s.TranslateAll(context.Background(), doc, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "ja", results[0].Language.Code)
	assert.Equal(t, "vi", results[1].Language.Code)
	assert.Equal(t, `{"greeting":"Japanese: Hello {{name}}"}`, results[0].FinalTranslation.Compact())
	assert.Equal(t, `{"greeting":"Vietnamese: Hello {{name}}"}`, results[1].FinalTranslation.Compact())
}

func TestService_TranslateAllFailsOnFirstError(t *testing.T) {
	fake := capabilitytest.New().Handle(echoModel("Vietnamese"))
	s := newService(t, fake, Options{})

	_, err := s.TranslateAll(context.Background(), content.String("Hello"), nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "vi"))
	assert.True(t, agent.IsStage(err, agent.StateTranslate))
}

func TestService_Errors(t *testing.T) {
	s := newService(t, capabilitytest.New(), Options{})
	ctx := context.Background()

	_, err := s.Translate(ctx, content.String("Hello"), "klingon")
	assert.True(t, errors.Is(err, ErrUnsupportedLanguage))

	_, err = s.Translate(ctx, content.String("   "), "ja")
	assert.True(t, errors.Is(err, ErrEmptyInput))

	_, err = s.Prepare(ctx, content.Number("42"))
	assert.Error(t, err)
}

func TestCacheKey(t *testing.T) {
	doc, err := content.Parse([]byte(`{ "a" : "b" }`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":"b"}`, CacheKey(doc))
	assert.Equal(t, `{ "a" : "b" }`, CacheKey(content.String(`{ "a" : "b" }`)))
}
