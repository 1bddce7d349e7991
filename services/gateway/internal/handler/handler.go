// Package handler is the gateway's HTTP surface.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/accordsai/web4gateway/pkg/httpx"
	"github.com/accordsai/web4gateway/services/gateway/internal/chain"
	"github.com/accordsai/web4gateway/services/gateway/internal/config"
	"github.com/accordsai/web4gateway/services/gateway/internal/content"
	"github.com/accordsai/web4gateway/services/gateway/internal/metrics"
	"github.com/accordsai/web4gateway/services/gateway/internal/routes"
	"github.com/accordsai/web4gateway/services/gateway/internal/write"
)

const maxWriteBodyBytes = 5 << 20 // 5MB

var errBadRequest = errors.New("bad request")

type ContractResolver interface {
	Resolve(ctx context.Context, host string) string
}

type Deps struct {
	Config    *config.Config
	Chain     chain.Client
	Contracts ContractResolver
	Content   *content.Resolver
	Writes    *write.Dispatcher
	Routes    routes.Table
	Metrics   *metrics.Metrics
	Log       *zap.Logger
}

type Handler struct {
	cfg       *config.Config
	chain     chain.Client
	contracts ContractResolver
	content   *content.Resolver
	writes    *write.Dispatcher
	routes    routes.Table
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func New(d Deps) *Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Routes == nil {
		d.Routes = routes.Chain{}
	}
	return &Handler{
		cfg:       d.Config,
		chain:     d.Chain,
		contracts: d.Contracts,
		content:   d.Content,
		writes:    d.Writes,
		routes:    d.Routes,
		metrics:   d.Metrics,
		log:       d.Log,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { httpx.WriteText(w, 200, "ok") })
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	r.Get("/web4/contract/{contractId}/{methodName}", h.viewContract)
	r.Post("/web4/contract/{contractId}/{methodName}", h.callContract)
	r.Get("/web4/login", h.login)
	r.Get("/web4/login/complete", h.loginComplete)
	r.Get("/web4/logout", h.logout)
	r.Get("/web4/sign", h.sign)

	r.Get("/*", h.serveContent)
	r.Post("/*", h.postContent)
	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			h.metrics.HTTPRequest(r.Method, status)
			h.log.Info("request",
				zap.String("request_id", httpx.RequestID(r)),
				zap.String("method", r.Method),
				zap.String("host", r.Host),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

// writeError is the single mapping from internal failures to HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classifyError(err)
	if status >= 500 {
		h.log.Warn("request failed",
			zap.String("request_id", httpx.RequestID(r)),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	httpx.WriteError(w, r, status, code, err.Error(), nil)
}

func classifyError(err error) (int, string) {
	var fetchErr *content.FetchError
	switch {
	case errors.Is(err, write.ErrBadRequest), errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, content.ErrTooManyPreloads):
		return http.StatusBadGateway, "TOO_MANY_PRELOADS"
	case errors.Is(err, content.ErrProtocol):
		return http.StatusBadGateway, "PROTOCOL_VIOLATION"
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway, "UPSTREAM_ERROR"
	}
	if kind, ok := chain.KindOf(err); ok {
		if kind == chain.KindAccountNotFound {
			return http.StatusNotFound, "ACCOUNT_NOT_FOUND"
		}
		return http.StatusBadRequest, "CHAIN_ERROR"
	}
	return http.StatusInternalServerError, "INTERNAL"
}
