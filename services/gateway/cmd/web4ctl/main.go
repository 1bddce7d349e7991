package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/accordsai/web4gateway/pkg/db"
	"github.com/accordsai/web4gateway/pkg/nearkey"
	"github.com/accordsai/web4gateway/services/gateway/internal/chain"
	"github.com/accordsai/web4gateway/services/gateway/internal/config"
	"github.com/accordsai/web4gateway/services/gateway/internal/content"
	"github.com/accordsai/web4gateway/services/gateway/internal/routes"
)

const usage = "usage: web4ctl key generate | web4ctl view --contract <id> --method <name> [--args <json>] | web4ctl get --contract <id> [--path </p>] [--query k=v] [--out <path>] | web4ctl route set --contract <id|*> --path </p> --method <name> | web4ctl route list --contract <id>"

type repeatStringFlag []string

func (r *repeatStringFlag) String() string { return strings.Join(*r, ",") }
func (r *repeatStringFlag) Set(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	*r = append(*r, v)
	return nil
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout))
}

func run(ctx context.Context, args []string, out io.Writer) int {
	if len(args) < 1 {
		fail(out, "", usage)
		return 2
	}
	cfg, err := config.Load()
	if err != nil {
		fail(out, "", "config: "+err.Error())
		return 2
	}
	switch args[0] {
	case "key":
		return runKey(args[1:], out)
	case "view":
		return runView(ctx, cfg, args[1:], out)
	case "get":
		return runGet(ctx, cfg, args[1:], out)
	case "route":
		return runRoute(ctx, cfg, args[1:], out)
	default:
		fail(out, "", "unknown command")
		return 2
	}
}

func runKey(args []string, out io.Writer) int {
	if len(args) < 1 || args[0] != "generate" {
		fail(out, "", usage)
		return 2
	}
	kp, err := nearkey.Generate()
	if err != nil {
		fail(out, "", err.Error())
		return 1
	}
	pass(out, map[string]any{
		"public_key":  kp.PublicKey().String(),
		"private_key": kp.String(),
	})
	return 0
}

func newChainClient(cfg *config.Config, nodeURL, fastURL string) chain.Client {
	rpc := chain.NewRPCClient(nodeURL, cfg.AuthToken, cfg.UpstreamTimeout)
	if fastURL == "" {
		return rpc
	}
	return chain.NewFastClient(fastURL, rpc, cfg.UpstreamTimeout)
}

func runView(ctx context.Context, cfg *config.Config, args []string, out io.Writer) int {
	fs := flag.NewFlagSet("view", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	contractID := fs.String("contract", cfg.DefaultContract, "contract account id")
	method := fs.String("method", "", "view method name")
	rawArgs := fs.String("args", "{}", "json arguments")
	nodeURL := fs.String("node-url", cfg.Network.NodeURL, "rpc endpoint")
	fastURL := fs.String("fast-near-url", cfg.FastNEARURL, "fast-near endpoint")
	if err := fs.Parse(args); err != nil {
		fail(out, "", err.Error())
		return 2
	}
	if strings.TrimSpace(*contractID) == "" || strings.TrimSpace(*method) == "" {
		fail(out, *contractID, "both --contract and --method are required")
		return 2
	}
	var callArgs any
	if err := json.Unmarshal([]byte(*rawArgs), &callArgs); err != nil {
		fail(out, *contractID, "invalid --args: "+err.Error())
		return 2
	}
	res, err := newChainClient(cfg, *nodeURL, *fastURL).ViewCall(ctx, *contractID, *method, callArgs)
	if err != nil {
		failChain(out, *contractID, err)
		return 1
	}
	pass(out, map[string]any{"contract_id": *contractID, "method": *method, "result": res})
	return 0
}

// runGet resolves a page exactly as the gateway would and writes the body to
// --out.
func runGet(ctx context.Context, cfg *config.Config, args []string, out io.Writer) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	contractID := fs.String("contract", cfg.DefaultContract, "contract account id")
	path := fs.String("path", "/", "request path")
	accountID := fs.String("account", "", "account id passed to the contract")
	outPath := fs.String("out", "", "file for the response body")
	origin := fs.String("origin", "", "origin for relative urls (default https://<contract>.page)")
	nodeURL := fs.String("node-url", cfg.Network.NodeURL, "rpc endpoint")
	fastURL := fs.String("fast-near-url", cfg.FastNEARURL, "fast-near endpoint")
	var query repeatStringFlag
	fs.Var(&query, "query", "query parameter k=v (repeatable)")
	if err := fs.Parse(args); err != nil {
		fail(out, "", err.Error())
		return 2
	}
	if strings.TrimSpace(*contractID) == "" {
		fail(out, "", "--contract is required")
		return 2
	}
	q := url.Values{}
	for _, kv := range query {
		k, v, _ := strings.Cut(kv, "=")
		q.Add(k, v)
	}
	if *origin == "" {
		*origin = "https://" + *contractID + ".page"
	}

	resolver := content.NewResolver(newChainClient(cfg, *nodeURL, *fastURL), content.Options{
		HTTP:     &http.Client{Timeout: cfg.UpstreamTimeout},
		Gateways: content.Gateways{Primary: cfg.NEARFSGatewayURL, Fallback: cfg.IPFSGatewayURL},
		MaxHops:  cfg.MaxPreloadHops,
	})
	res, err := resolver.Resolve(ctx, content.Input{
		ContractID: *contractID,
		AccountID:  *accountID,
		Path:       *path,
		Query:      q,
		Origin:     *origin,
	})
	if err != nil {
		failChain(out, *contractID, err)
		return 1
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		fail(out, res.ContractID, "read body failed: "+err.Error())
		return 1
	}
	if *outPath != "" {
		if err := os.WriteFile(*outPath, body, 0o644); err != nil {
			fail(out, res.ContractID, "write body failed: "+err.Error())
			return 1
		}
	}
	pass(out, map[string]any{
		"contract_id":   res.ContractID,
		"path":          *path,
		"http_status":   res.Status,
		"content_type":  res.Header.Get("content-type"),
		"cache_control": res.Header.Get("cache-control"),
		"body_bytes":    len(body),
		"out_path":      *outPath,
	})
	return 0
}

func runRoute(ctx context.Context, cfg *config.Config, args []string, out io.Writer) int {
	if len(args) < 1 {
		fail(out, "", usage)
		return 2
	}
	fs := flag.NewFlagSet("route "+args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	contractID := fs.String("contract", "", "contract account id, * for all")
	path := fs.String("path", "", "POST path")
	method := fs.String("method", "", "write method name")
	dsn := fs.String("database-url", cfg.DatabaseURL, "postgres dsn")
	if err := fs.Parse(args[1:]); err != nil {
		fail(out, "", err.Error())
		return 2
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := db.Connect(connectCtx, *dsn)
	if err != nil {
		fail(out, *contractID, "connect database: "+err.Error())
		return 1
	}
	defer pool.Close()
	table := routes.NewPGTable(pool)

	switch args[0] {
	case "set":
		r := routes.Route{ContractID: *contractID, Path: *path, MethodName: *method}
		if err := table.Put(ctx, r); err != nil {
			fail(out, *contractID, err.Error())
			return 1
		}
		pass(out, map[string]any{"contract_id": r.ContractID, "path": r.Path, "method_name": r.MethodName})
	case "list":
		list, err := table.List(ctx, *contractID)
		if err != nil {
			fail(out, *contractID, err.Error())
			return 1
		}
		pass(out, map[string]any{"contract_id": *contractID, "routes": list})
	default:
		fail(out, "", usage)
		return 2
	}
	return 0
}

func pass(out io.Writer, fields map[string]any) {
	fields["status"] = "PASS"
	summary(out, fields)
}

func fail(out io.Writer, contractID, reason string) {
	summary(out, map[string]any{"status": "FAIL", "contract_id": contractID, "reason": reason})
}

func failChain(out io.Writer, contractID string, err error) {
	fields := map[string]any{"status": "FAIL", "contract_id": contractID, "reason": err.Error()}
	if kind, ok := chain.KindOf(err); ok {
		fields["error_kind"] = kind.String()
	}
	summary(out, fields)
}

func summary(out io.Writer, fields map[string]any) {
	fields["timestamp_utc"] = time.Now().UTC().Format(time.RFC3339)
	b, _ := json.Marshal(fields)
	fmt.Fprintln(out, string(b))
}
