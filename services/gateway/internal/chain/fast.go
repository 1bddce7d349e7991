package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// FastClient serves view calls from a fast-near style REST endpoint and
// delegates everything that needs a node to the embedded RPCClient.
type FastClient struct {
	*RPCClient
	BaseURL string
	HTTP    *http.Client
}

func NewFastClient(baseURL string, rpc *RPCClient, timeout time.Duration) *FastClient {
	return &FastClient{
		RPCClient: rpc,
		BaseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP:      &http.Client{Timeout: timeout},
	}
}

func (c *FastClient) ViewCall(ctx context.Context, contractID, methodName string, args any) (json.RawMessage, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/account/%s/view/%s", c.BaseURL, url.PathEscape(contractID), url.PathEscape(methodName))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("content-type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newError("", strings.TrimSpace(string(raw)))
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("fast-near: %s.%s returned non-JSON result", contractID, methodName)
	}
	return json.RawMessage(raw), nil
}

var (
	_ Client = (*RPCClient)(nil)
	_ Client = (*FastClient)(nil)
)
