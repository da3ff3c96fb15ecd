// Package server exposes the translator over HTTP and websockets.
package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/appknox/ak-translator/internal/chunker"
	"github.com/appknox/ak-translator/internal/content"
	"github.com/appknox/ak-translator/internal/language"
	"github.com/appknox/ak-translator/internal/logging"
	"github.com/appknox/ak-translator/internal/service"
	"github.com/appknox/ak-translator/internal/ws"
)

// Translator is the subset of *service.Service the routes need.
type Translator interface {
	Languages() []language.Language
	Resolve(names []string) ([]language.Language, error)
	TranslateAll(ctx context.Context, input content.Value, langs []language.Language) ([]chunker.Result, error)
	ClearCache() bool
}

type Options struct {
	CORSOrigins []string
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

type Server struct {
	translator Translator
	sockets    *ws.Handler
	engine     *gin.Engine
	logger     *zap.Logger
}

func New(t Translator, sockets *ws.Handler, opts Options) *Server {
	s := &Server{
		translator: t,
		sockets:    sockets,
		engine:     gin.New(),
		logger:     logging.OrNop(opts.Logger),
	}

	corsCfg := cors.DefaultConfig()
	if len(opts.CORSOrigins) == 0 || slices.Contains(opts.CORSOrigins, "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = opts.CORSOrigins
	}
	corsCfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s.engine.Use(gin.Recovery(), s.requestLogger(), cors.New(corsCfg))
	s.engine.POST("/translate", s.handleTranslate)
	s.engine.GET("/ws/:client_id", s.handleWebSocket)
	s.engine.DELETE("/cache", s.handleClearCache)
	s.engine.GET("/languages", s.handleLanguages)
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is done, then shuts down, giving in-flight
// requests up to grace to finish.
func (s *Server) Run(ctx context.Context, addr string, grace time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// TranslateRequest is the body of POST /translate. Text is a string or a
// JSON document.
type TranslateRequest struct {
	Text      content.Value `json:"text"`
	Languages []string      `json:"languages" binding:"omitempty,max=64,dive,required"`
}

type TranslationItem struct {
	Text     content.Value `json:"text"`
	Accuracy float64       `json:"accuracy"`
}

type TranslateResponse struct {
	Translations map[string]TranslationItem `json:"translations"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleTranslate(c *gin.Context) {
	var req TranslateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.Text.Kind() != content.KindString && !req.Text.IsStructured() {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "text must be a string or a JSON document"})
		return
	}

	langs, err := s.translator.Resolve(req.Languages)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	results, err := s.translator.TranslateAll(c.Request.Context(), req.Text, langs)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrEmptyInput) {
			status = http.StatusBadRequest
		}
		s.logger.Warn("translation request failed", zap.Error(err))
		c.JSON(status, errorResponse{Error: err.Error()})
		return
	}

	resp := TranslateResponse{Translations: make(map[string]TranslationItem, len(results))}
	for _, r := range results {
		resp.Translations[r.Language.Code] = TranslationItem{Text: r.FinalTranslation, Accuracy: r.Accuracy()}
	}
	c.PureJSON(http.StatusOK, resp)
}

func (s *Server) handleWebSocket(c *gin.Context) {
	s.sockets.ServeClient(c.Writer, c.Request, c.Param("client_id"))
}

func (s *Server) handleClearCache(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cleared": s.translator.ClearCache()})
}

func (s *Server) handleLanguages(c *gin.Context) {
	type lang struct {
		Code string `json:"code"`
		Name string `json:"name"`
	}
	all := s.translator.Languages()
	out := make([]lang, len(all))
	for i, l := range all {
		out[i] = lang{Code: l.Code, Name: l.Name}
	}
	c.JSON(http.StatusOK, gin.H{"languages": out})
}

func (s *Server) handleHealth(c *gin.Context) {
	clients := s.sockets.Clients()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": len(clients), "clients": clients})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
