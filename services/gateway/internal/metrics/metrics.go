// Package metrics holds the gateway's prometheus collectors. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/accordsai/web4gateway/services/gateway/internal/chain"
)

type Metrics struct {
	registry *prometheus.Registry

	viewCalls          *prometheus.CounterVec
	preloadHops        prometheus.Histogram
	gatewayFetches     *prometheus.CounterVec
	subaccountFallback prometheus.Counter
	writeDispatch      *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		viewCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "web4_view_calls_total",
			Help: "Contract view calls by method and outcome.",
		}, []string{"method", "outcome"}),
		preloadHops: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "web4_preload_hops",
			Help:    "Preload hops taken before a content request resolved.",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 8},
		}),
		gatewayFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "web4_gateway_fetches_total",
			Help: "External body fetches by gateway role and status.",
		}, []string{"gateway", "status"}),
		subaccountFallback: factory.NewCounter(prometheus.CounterOpts{
			Name: "web4_subaccount_fallbacks_total",
			Help: "Requests retried against the web4. subaccount.",
		}),
		writeDispatch: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "web4_write_dispatch_total",
			Help: "Write calls by signing mode.",
		}, []string{"mode"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "web4_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ViewCall(method string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if k, ok := chain.KindOf(err); ok {
			outcome = k.String()
		}
	}
	m.viewCalls.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) PreloadHops(n int) {
	if m == nil {
		return
	}
	m.preloadHops.Observe(float64(n))
}

// GatewayFetch records one bodyUrl fetch attempt; status 0 means the request
// failed before a response arrived.
func (m *Metrics) GatewayFetch(gateway string, status int) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.gatewayFetches.WithLabelValues(gateway, label).Inc()
}

func (m *Metrics) SubaccountFallback() {
	if m == nil {
		return
	}
	m.subaccountFallback.Inc()
}

func (m *Metrics) WriteDispatch(mode string) {
	if m == nil {
		return
	}
	m.writeDispatch.WithLabelValues(mode).Inc()
}

func (m *Metrics) HTTPRequest(method string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

// InstrumentChain wraps c so every view call is counted.
func (m *Metrics) InstrumentChain(c chain.Client) chain.Client {
	if m == nil {
		return c
	}
	return &instrumentedChain{Client: c, m: m}
}

type instrumentedChain struct {
	chain.Client
	m *Metrics
}

func (c *instrumentedChain) ViewCall(ctx context.Context, contractID, methodName string, args any) (json.RawMessage, error) {
	out, err := c.Client.ViewCall(ctx, contractID, methodName, args)
	c.m.ViewCall(methodName, err)
	return out, err
}
