// Package httpapi exposes the shop over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/logicshop-core/server/internal/metrics"
	"github.com/logicshop-core/server/internal/shop/model"
	"github.com/logicshop-core/server/internal/shop/processor"
	logx "github.com/logicshop-core/server/pkg/logger"
)

const (
	SessionHeader   = "x-session-token"
	shutdownTimeout = 5 * time.Second
)

func init() {
	// Product ids and quantities must reach the handlers as json.Number.
	binding.EnableDecoderUseNumber = true
}

// Server is the shop HTTP server.
type Server struct {
	proc     *processor.Processor
	recorder *metrics.Recorder
	routes   model.RoutesConfig
	cfg      model.ServerConfig
	router   *gin.Engine
}

// NewServer builds the router. recorder may be nil, which disables /metrics.
func NewServer(proc *processor.Processor, recorder *metrics.Recorder, routes model.RoutesConfig, cfg model.ServerConfig) (*Server, error) {
	method := strings.ToUpper(routes.BalanceMethod)
	switch method {
	case http.MethodGet, http.MethodPost:
	default:
		return nil, fmt.Errorf("unsupported balance method %q", routes.BalanceMethod)
	}

	router := gin.New()
	s := &Server{
		proc:     proc,
		recorder: recorder,
		routes:   routes,
		cfg:      cfg,
		router:   router,
	}

	router.Use(recovery(), logx.GinMiddleware())
	if cfg.RateLimitRPS > 0 {
		router.Use(rateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}

	router.GET("/healthz", s.handleHealth)
	if cfg.MetricsEnabled && recorder != nil {
		router.GET("/metrics", gin.WrapH(recorder.Handler()))
	}

	router.POST(routes.Login, s.handleLogin)
	router.Handle(method, routes.Balance, s.requireSession(), s.handleBalance)
	// The purchase handler validates the body before authenticating.
	router.POST(routes.Purchase, s.handlePurchase)
	if routes.ProductsPublic {
		router.GET(routes.Products, s.handleProducts)
	} else {
		router.GET(routes.Products, s.requireSession(), s.handleProducts)
	}

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", addr).Str("preset", s.proc.Policy().Name).Msg("shop listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logx.Info().Msg("shutting down")
	return srv.Shutdown(shutdownCtx)
}
