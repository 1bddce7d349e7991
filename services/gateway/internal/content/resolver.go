// Package content resolves GET requests through a contract's web4_get entry
// point, following preload hops and relaying external bodies.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/accordsai/web4gateway/services/gateway/internal/chain"
	"github.com/accordsai/web4gateway/services/gateway/internal/metrics"
)

const subaccountPrefix = "web4."

type Resolver struct {
	chain    chain.Client
	http     *http.Client
	gateways Gateways
	maxHops  int
	metrics  *metrics.Metrics
	log      *zap.Logger
}

type Options struct {
	HTTP     *http.Client
	Gateways Gateways
	MaxHops  int
	Metrics  *metrics.Metrics
	Log      *zap.Logger
}

func NewResolver(c chain.Client, opts Options) *Resolver {
	if opts.HTTP == nil {
		opts.HTTP = http.DefaultClient
	}
	if opts.MaxHops <= 0 {
		opts.MaxHops = 5
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Resolver{
		chain:    c,
		http:     opts.HTTP,
		gateways: opts.Gateways,
		maxHops:  opts.MaxHops,
		metrics:  opts.Metrics,
		log:      opts.Log,
	}
}

// Input is everything the hop loop needs from the incoming HTTP request.
type Input struct {
	ContractID string
	AccountID  string
	Path       string
	Query      url.Values
	// Origin is scheme://host of the incoming request; relative URLs from the
	// contract resolve against it.
	Origin string
}

// Result is a resolved HTTP response. Body may be a live upstream stream and
// must be consumed through Serve or closed.
type Result struct {
	ContractID string
	Status     int
	Header     http.Header
	Body       io.ReadCloser
}

func (res *Result) Serve(w http.ResponseWriter) error {
	if res.Body != nil {
		defer res.Body.Close()
	}
	for k, vals := range res.Header {
		w.Header()[k] = append([]string(nil), vals...)
	}
	w.WriteHeader(res.Status)
	if res.Body == nil {
		return nil
	}
	_, err := io.Copy(w, res.Body)
	return err
}

func (r *Resolver) Resolve(ctx context.Context, in Input) (*Result, error) {
	contractID := in.ContractID
	req := Request{
		AccountID: in.AccountID,
		Path:      in.Path,
		Query:     map[string][]string{},
	}
	for k, vals := range in.Query {
		req.Query[k] = append([]string(nil), vals...)
	}
	log := r.log.With(zap.String("path", in.Path))

	fellBack := false
	for hop := 0; hop < r.maxHops; {
		log.Debug("web4_get hop", zap.Int("hop", hop), zap.String("contract_id", contractID))
		raw, err := r.chain.ViewCall(ctx, contractID, MethodName, map[string]any{"request": req})
		if err != nil {
			if hop == 0 && !fellBack && chain.IsContractMissing(err) {
				fellBack = true
				contractID = subaccountPrefix + contractID
				r.metrics.SubaccountFallback()
				log.Debug("retrying on web4 subaccount", zap.String("contract_id", contractID))
				continue
			}
			return nil, err
		}

		var resp Response
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("%w: decode web4_get response: %v", ErrProtocol, err)
		}
		v, err := resp.Variant()
		if err != nil {
			return nil, err
		}

		switch v := v.(type) {
		case StatusOnly:
			r.metrics.PreloadHops(hop)
			return statusResult(contractID, v.Status), nil
		case InlineBody:
			r.metrics.PreloadHops(hop)
			return inlineResult(contractID, v), nil
		case ExternalBody:
			r.metrics.PreloadHops(hop)
			res, err := r.fetchBody(ctx, in.Origin, v)
			if err != nil {
				return nil, err
			}
			res.ContractID = contractID
			return res, nil
		case PreloadRequest:
			log.Debug("preloading", zap.Int("hop", hop), zap.Strings("urls", v.URLs))
			fetched, err := r.fetchPreloads(ctx, in.Origin, v.URLs)
			if err != nil {
				return nil, err
			}
			req.Preloads = fetched
			hop++
		}
	}
	r.metrics.PreloadHops(r.maxHops)
	return nil, ErrTooManyPreloads
}

func statusResult(contractID string, status int) *Result {
	h := http.Header{}
	h.Set("content-type", "text/plain; charset=utf-8")
	return &Result{
		ContractID: contractID,
		Status:     status,
		Header:     h,
		Body:       io.NopCloser(bytes.NewReader([]byte(http.StatusText(status)))),
	}
}

func inlineResult(contractID string, v InlineBody) *Result {
	h := http.Header{}
	ct := v.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("content-type", ct)
	if v.CacheControl != "" {
		h.Set("cache-control", v.CacheControl)
	}
	status := v.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &Result{
		ContractID: contractID,
		Status:     status,
		Header:     h,
		Body:       io.NopCloser(bytes.NewReader(v.Body)),
	}
}
