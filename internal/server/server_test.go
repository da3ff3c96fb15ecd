package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appknox/ak-translator/internal/capability/capabilitytest"
	"github.com/appknox/ak-translator/internal/content"
	"github.com/appknox/ak-translator/internal/language"
	"github.com/appknox/ak-translator/internal/metrics"
	"github.com/appknox/ak-translator/internal/orchestrator"
	"github.com/appknox/ak-translator/internal/service"
	"github.com/appknox/ak-translator/internal/ws"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// model translates by prefixing the language name; failFor makes one
// language's translate call fail.
func model(failFor string) capabilitytest.Handler {
	return func(prompt string, vars map[string]any) (string, error) {
		switch prompt {
		case "translate":
			lang := vars["target_language"].(string)
			if lang == failFor {
				return "", errors.New("backend unavailable")
			}
			src := vars["input_query"].(string)
			if doc, err := content.ParseStructured(src); err == nil {
				texts := content.Extract(doc)
				for k, v := range texts {
					texts[k] = "[" + lang + "] " + v
				}
				return fmt.Sprintf(`{"current_translation": %s}`, content.Rebuild(doc, texts).Compact()), nil
			}
			return fmt.Sprintf(`{"current_translation": %q}`, "["+lang+"] "+src), nil
		case "review":
			return `{"decision": "APPROVE", "reasoning": "ok", "rating": 4}`, nil
		case "format":
			return fmt.Sprintf(`{"final_translation": %q, "final_translation_rating": 5}`, vars["current_translation"]), nil
		}
		return "", fmt.Errorf("unexpected prompt %s", prompt)
	}
}

type fixture struct {
	server  *Server
	sockets *ws.Handler
	fake    *capabilitytest.Fake
}

func newFixture(t *testing.T, failFor string) *fixture {
	t.Helper()
	set, err := language.NewSet([]string{"ja", "vi"})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	fake := capabilitytest.New().Handle(model(failFor))
	svc := service.New(fake, set, service.Options{Metrics: m})
	registry := ws.NewRegistry(nil, m)
	sockets := ws.NewHandler(registry, orchestrator.New(svc, registry, nil, m), svc, nil, nil)

	return &fixture{
		server:  New(svc, sockets, Options{Gatherer: reg}),
		sockets: sockets,
		fake:    fake,
	}
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func TestTranslate_String(t *testing.T) {
	f := newFixture(t, "")
	w := f.do(http.MethodPost, "/translate", map[string]any{"text": "Open <b>settings</b>"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Translations map[string]struct {
			Text     string  `json:"text"`
			Accuracy float64 `json:"accuracy"`
		} `json:"translations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Translations, 2)
	assert.Equal(t, "[Japanese] Open <b>settings</b>", resp.Translations["ja"].Text)
	assert.Equal(t, 1.0, resp.Translations["ja"].Accuracy)
	assert.Contains(t, w.Body.String(), "<b>", "markup is not HTML-escaped")
}

func TestTranslate_DocumentKeepsKeyOrder(t *testing.T) {
	f := newFixture(t, "")
	body := strings.NewReader(`{"text": {"zeta": "Last", "alpha": "First"}, "languages": ["vi"]}`)
	req := httptest.NewRequest(http.MethodPost, "/translate", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `{"zeta":"[Vietnamese] Last","alpha":"[Vietnamese] First"}`)
	assert.Contains(t, w.Body.String(), `"accuracy":0.8`)
}

func TestTranslate_BadRequests(t *testing.T) {
	f := newFixture(t, "")
	tests := []struct {
		name string
		body any
	}{
		{"missing text", map[string]any{}},
		{"number text", map[string]any{"text": 3}},
		{"blank text", map[string]any{"text": "   "}},
		{"unsupported language", map[string]any{"text": "hi", "languages": []string{"fr"}}},
		{"empty language name", map[string]any{"text": "hi", "languages": []string{""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/translate", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestTranslate_FailureIsAllOrNothing(t *testing.T) {
	f := newFixture(t, "Vietnamese")
	w := f.do(http.MethodPost, "/translate", map[string]any{"text": "Hello"})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "translations")
}

func TestCacheLanguagesHealthMetrics(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(http.MethodDelete, "/cache", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cleared": false}`, w.Body.String())

	f.do(http.MethodPost, "/translate", map[string]any{"text": "Hello"})
	w = f.do(http.MethodDelete, "/cache", nil)
	assert.JSONEq(t, `{"cleared": true}`, w.Body.String())

	w = f.do(http.MethodGet, "/languages", nil)
	assert.JSONEq(t, `{"languages": [{"code": "ja", "name": "Japanese"}, {"code": "vi", "name": "Vietnamese"}]}`, w.Body.String())

	w = f.do(http.MethodGet, "/health", nil)
	assert.JSONEq(t, `{"status": "ok", "connections": 0, "clients": []}`, w.Body.String())

	w = f.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "akt_cycle_iterations")
}

func TestWebSocket_TranslateMulti(t *testing.T) {
	f := newFixture(t, "Japanese")
	srv := httptest.NewServer(f.server.Handler())
	defer srv.Close()
	defer f.sockets.Wait()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/client_1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "translate_multi", "text": "Hello", "job_id": "job_x"}))

	counts := map[orchestrator.EventType]int{}
	var completed map[string]any
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var ev map[string]any
		require.NoError(t, json.Unmarshal(data, &ev))
		typ := orchestrator.EventType(ev["type"].(string))
		counts[typ]++
		if typ == orchestrator.EventLanguageCompleted {
			completed = ev
		}
		if typ == orchestrator.EventMultiCompleted {
			break
		}
	}

	assert.Equal(t, 1, counts[orchestrator.EventMultiStarted])
	assert.Equal(t, 2, counts[orchestrator.EventLanguageStarted])
	assert.Equal(t, 1, counts[orchestrator.EventLanguageCompleted])
	assert.Equal(t, 1, counts[orchestrator.EventLanguageFailed])

	require.NotNil(t, completed)
	assert.Equal(t, "vi", completed["language"])
	result := completed["translated_text"].(map[string]any)
	assert.Equal(t, "[Vietnamese] Hello", result["final_translation"])
	assert.Equal(t, "vi", result["target_language"])
	assert.Equal(t, true, result["is_string"])

	health := f.do(http.MethodGet, "/health", nil)
	assert.JSONEq(t, `{"status": "ok", "connections": 1, "clients": ["client_1"]}`, health.Body.String())
}
