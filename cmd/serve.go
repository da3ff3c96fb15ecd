/*
Copyright © 2025 Appknox

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/appknox/ak-translator/internal/orchestrator"
	"github.com/appknox/ak-translator/internal/server"
	"github.com/appknox/ak-translator/internal/ws"
)

var shutdownGrace time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP and websocket translation API",
	Long: `Start the translation server.

Routes:
  POST   /translate          translate into every configured language
  GET    /ws/:client_id      websocket with per-language progress events
  DELETE /cache              drop the cached classification
  GET    /languages          configured target languages
  GET    /health             liveness and connected websocket clients
  GET    /metrics            Prometheus metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		if !cfg.Log.Development {
			gin.SetMode(gin.ReleaseMode)
		}

		registry := ws.NewRegistry(logger, a.metrics)
		dispatcher := orchestrator.New(a.service, registry, logger, a.metrics)
		sockets := ws.NewHandler(registry, dispatcher, a.service, cfg.Server.CORSOrigins, logger)

		srv := server.New(a.service, sockets, server.Options{
			CORSOrigins: cfg.Server.CORSOrigins,
			Gatherer:    a.registry,
			Logger:      logger,
		})
		if err := srv.Run(ctx, cfg.Server.Addr, shutdownGrace); err != nil {
			return err
		}

		// websocket jobs run on their own context; let them drain
		done := make(chan struct{})
		go func() {
			sockets.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(shutdownGrace):
			logger.Warn("translation jobs still running at exit")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default :8000)")
	serveCmd.Flags().DurationVar(&shutdownGrace, "grace", 30*time.Second, "Time allowed for in-flight work on shutdown")
	if err := v.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr")); err != nil {
		panic(err)
	}
}
