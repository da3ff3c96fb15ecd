package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"

	"github.com/appknox/ak-translator/internal/agent"
	"github.com/appknox/ak-translator/internal/chunker"
	"github.com/appknox/ak-translator/internal/content"
	"github.com/appknox/ak-translator/internal/language"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockTranslator struct {
	prepareErr  error
	runFunc     func(lang language.Language) (chunker.Result, error)
	prepareCall atomic.Int32
	runCall     atomic.Int32
}

func (m *mockTranslator) Prepare(ctx context.Context, input content.Value) (agent.Prepared, error) {
	m.prepareCall.Add(1)
	if m.prepareErr != nil {
		return agent.Prepared{}, m.prepareErr
	}
	return agent.Prepared{Input: input, Assessment: agent.Assessment{ContentType: agent.ContentString}}, nil
}

func (m *mockTranslator) Run(ctx context.Context, p agent.Prepared, lang language.Language) (chunker.Result, error) {
	m.runCall.Add(1)
	if m.runFunc != nil {
		return m.runFunc(lang)
	}
	return okResult(lang), nil
}

func okResult(lang language.Language) chunker.Result {
	return chunker.Result{Result: agent.Result{
		Language:         lang,
		Input:            content.String("Hello"),
		FinalTranslation: content.String(lang.Code + " text"),
		FinalRating:      5,
		Decision:         agent.DecisionApprove,
		Iterations:       1,
	}, Chunks: 1}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (r *recorder) Notify(ctx context.Context, clientID string, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if r.fail {
		return errors.New("client gone")
	}
	return nil
}

func (r *recorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

var langs = []language.Language{
	{Code: "ja", Name: "Japanese"},
	{Code: "es-419", Name: "Latin American Spanish"},
	{Code: "vi", Name: "Vietnamese"},
	{Code: "id", Name: "Indonesian"},
}

func job() Job {
	return Job{ID: "job_1", ClientID: "client_1", Input: content.String("Hello"), Languages: langs}
}

func TestDispatch_AllSucceed(t *testing.T) {
	tr := &mockTranslator{}
	rec := &recorder{}
	d := New(tr, rec, nil, nil)

	sum, err := d.Dispatch(context.Background(), job())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Completed != 4 || len(sum.Results) != 4 || len(sum.Failures) != 0 {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if tr.prepareCall.Load() != 1 {
		t.Errorf("input should be prepared once, got %d", tr.prepareCall.Load())
	}

	if rec.events[0].Type != EventMultiStarted || rec.events[0].TotalLanguages != 4 {
		t.Errorf("first event should announce the job, got %+v", rec.events[0])
	}
	if last := rec.events[len(rec.events)-1]; last.Type != EventMultiCompleted || last.JobID != "job_1" {
		t.Errorf("last event should close the job, got %+v", last)
	}
	if n := rec.count(EventLanguageStarted); n != 4 {
		t.Errorf("expected 4 started events, got %d", n)
	}
	if n := rec.count(EventLanguageCompleted); n != 4 {
		t.Errorf("expected 4 completed events, got %d", n)
	}

	seen := map[int]bool{}
	for _, ev := range rec.events {
		if ev.Type == EventLanguageCompleted {
			seen[ev.CompletedCount] = true
			if ev.TotalCount != 4 {
				t.Errorf("total_count = %d", ev.TotalCount)
			}
		}
	}
	for i := 1; i <= 4; i++ {
		if !seen[i] {
			t.Errorf("completed_count %d never reported", i)
		}
	}
}

func TestDispatch_FailureIsIsolated(t *testing.T) {
	tr := &mockTranslator{runFunc: func(lang language.Language) (chunker.Result, error) {
		if lang.Code == "vi" {
			return chunker.Result{}, errors.New("model timeout")
		}
		return okResult(lang), nil
	}}
	rec := &recorder{}
	d := New(tr, rec, nil, nil)

	sum, err := d.Dispatch(context.Background(), job())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Completed != 3 || len(sum.Failures) != 1 {
		t.Fatalf("expected 3 completed and 1 failed, got %+v", sum)
	}
	if sum.Failures[0].Language.Code != "vi" {
		t.Errorf("wrong failed language: %v", sum.Failures[0].Language)
	}
	if rec.count(EventLanguageCompleted)+rec.count(EventLanguageFailed) != 4 {
		t.Error("every language should settle exactly once")
	}
	for _, ev := range rec.events {
		if ev.Type == EventLanguageFailed && ev.Language != "vi" {
			t.Errorf("unexpected failure event for %s", ev.Language)
		}
	}
}

func TestDispatch_PanicBecomesFailure(t *testing.T) {
	tr := &mockTranslator{runFunc: func(lang language.Language) (chunker.Result, error) {
		if lang.Code == "ja" {
			panic("nil map")
		}
		return chunker.Result{Result: agent.Result{Language: lang}}, nil
	}}
	rec := &recorder{}
	d := New(tr, rec, nil, nil)

	sum, err := d.Dispatch(context.Background(), job())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sum.Failures) != 1 || sum.Completed != 3 {
		t.Errorf("expected the panic to fail only ja, got %+v", sum)
	}
}

func TestDispatch_PrepareFailureFailsEveryLanguage(t *testing.T) {
	tr := &mockTranslator{prepareErr: errors.New("classifier down")}
	rec := &recorder{}
	d := New(tr, rec, nil, nil)

	sum, err := d.Dispatch(context.Background(), job())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sum.Failures) != 4 || tr.runCall.Load() != 0 {
		t.Errorf("expected 4 failures and no runs, got %d failures and %d runs", len(sum.Failures), tr.runCall.Load())
	}
	if rec.count(EventMultiCompleted) != 1 {
		t.Error("job should still complete")
	}
}

func TestDispatch_NoLanguages(t *testing.T) {
	rec := &recorder{}
	d := New(&mockTranslator{}, rec, nil, nil)

	_, err := d.Dispatch(context.Background(), Job{ClientID: "c", Input: content.String("x")})
	if !errors.Is(err, ErrNoLanguages) {
		t.Fatalf("expected ErrNoLanguages, got %v", err)
	}
	if len(rec.events) != 1 || rec.events[0].Type != EventTranslationError {
		t.Errorf("expected a single translation_error, got %+v", rec.events)
	}
}

func TestDispatch_NotifierErrorsDoNotStopJob(t *testing.T) {
	rec := &recorder{fail: true}
	d := New(&mockTranslator{}, rec, nil, nil)

	sum, err := d.Dispatch(context.Background(), job())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Completed != 4 {
		t.Errorf("expected all languages to complete, got %d", sum.Completed)
	}
}

func TestDispatch_GeneratesJobID(t *testing.T) {
	var got string
	n := NotifierFunc(func(ctx context.Context, clientID string, ev Event) error {
		if ev.Type == EventMultiStarted {
			got = ev.JobID
		}
		return nil
	})
	d := New(&mockTranslator{}, n, nil, nil)

	j := job()
	j.ID = ""
	sum, err := d.Dispatch(context.Background(), j)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sum.JobID) <= len("job_") || sum.JobID[:4] != "job_" || got != sum.JobID {
		t.Errorf("unexpected job id %q (event %q)", sum.JobID, got)
	}
}

func TestEvent_CompletedWireShape(t *testing.T) {
	in := content.String("Hello")
	res := chunker.Result{Result: agent.Result{
		Language:         language.Language{Code: "ja", Name: "Japanese"},
		Input:            in,
		FinalTranslation: content.String("こんにちは"),
		FinalRating:      5,
		Decision:         agent.DecisionApprove,
		Iterations:       1,
	}}
	ev := Event{
		Type:           EventLanguageCompleted,
		JobID:          "job_1",
		Language:       "ja",
		OriginalText:   &in,
		TranslatedText: &res,
		CompletedCount: 1,
		TotalCount:     4,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != "language_translation_completed" || decoded["original_text"] != "Hello" {
		t.Errorf("unexpected envelope: %s", data)
	}
	tt, ok := decoded["translated_text"].(map[string]any)
	if !ok {
		t.Fatalf("translated_text missing: %s", data)
	}
	if tt["final_translation"] != "こんにちは" || tt["review_decision"] != "APPROVE" || tt["is_string"] != true {
		t.Errorf("unexpected result payload: %v", tt)
	}
}
