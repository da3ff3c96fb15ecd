package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/appknox/ak-translator/internal/content"
	"github.com/appknox/ak-translator/internal/language"
	"github.com/appknox/ak-translator/internal/logging"
	"github.com/appknox/ak-translator/internal/orchestrator"
)

const (
	MessageTranslateMulti = "translate_multi"
	MessagePing           = "ping"
)

// Message is a client request.
type Message struct {
	Type      string        `json:"type"`
	Text      content.Value `json:"text"`
	JobID     string        `json:"job_id,omitempty"`
	Languages []string      `json:"languages,omitempty"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, job orchestrator.Job) (orchestrator.Summary, error)
}

type Resolver interface {
	Resolve(names []string) ([]language.Language, error)
}

// Handler owns the read loop of every websocket client.
type Handler struct {
	registry   *Registry
	dispatcher Dispatcher
	languages  Resolver
	upgrader   websocket.Upgrader
	logger     *zap.Logger

	jobs sync.WaitGroup
}

// NewHandler accepts upgrades from any of origins; "*" or an empty list
// allows every origin.
func NewHandler(reg *Registry, d Dispatcher, langs Resolver, origins []string, logger *zap.Logger) *Handler {
	h := &Handler{
		registry:   reg,
		dispatcher: d,
		languages:  langs,
		logger:     logging.OrNop(logger),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(origins) == 0 || slices.Contains(origins, "*") || slices.Contains(origins, origin)
		},
	}
	return h
}

// ServeClient upgrades the request and reads messages until the client goes
// away. Jobs started by the client keep running after that; their events
// are dropped.
func (h *Handler) ServeClient(w http.ResponseWriter, r *http.Request, clientID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket", zap.String("client_id", clientID), zap.Error(err))
		return
	}
	h.registry.Connect(clientID, conn)
	defer h.registry.detach(clientID, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read failed", zap.String("client_id", clientID), zap.Error(err))
			}
			return
		}
		h.Handle(clientID, data)
	}
}

// Handle processes one raw client message.
func (h *Handler) Handle(clientID string, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.fail(clientID, "", fmt.Sprintf("invalid message: %v", err))
		return
	}

	switch msg.Type {
	case MessagePing:
		_ = h.registry.Notify(context.Background(), clientID, orchestrator.Event{Type: orchestrator.EventPong})
	case MessageTranslateMulti:
		h.startJob(clientID, msg)
	default:
		h.fail(clientID, msg.JobID, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func (h *Handler) startJob(clientID string, msg Message) {
	if text, ok := msg.Text.Text(); (ok && strings.TrimSpace(text) == "") || (!ok && !msg.Text.IsStructured()) {
		h.fail(clientID, msg.JobID, "text is required")
		return
	}
	langs, err := h.languages.Resolve(msg.Languages)
	if err != nil {
		h.fail(clientID, msg.JobID, err.Error())
		return
	}

	job := orchestrator.Job{
		ID:        msg.JobID,
		ClientID:  clientID,
		Input:     msg.Text,
		Languages: langs,
	}
	if job.ID == "" {
		job.ID = orchestrator.NewJobID()
	}

	// the job outlives the connection, so it gets its own context
	h.jobs.Add(1)
	go func() {
		defer h.jobs.Done()
		if _, err := h.dispatcher.Dispatch(context.Background(), job); err != nil {
			h.logger.Warn("translation job failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}()
}

func (h *Handler) fail(clientID, jobID, reason string) {
	_ = h.registry.Notify(context.Background(), clientID, orchestrator.Event{
		Type:  orchestrator.EventTranslationError,
		JobID: jobID,
		Error: reason,
	})
}

// Wait blocks until every job started by any client has finished.
func (h *Handler) Wait() { h.jobs.Wait() }

// Clients lists the registered client ids, sorted.
func (h *Handler) Clients() []string { return h.registry.Clients() }
