// Package config reads the gateway environment once at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultIPFSGatewayURL   = "https://cloudflare-ipfs.com"
	DefaultNEARFSGatewayURL = "https://ipfs.web4.near.page"
	DefaultMaxPreloadHops   = 5
	DefaultPort             = "3000"
)

var DefaultHostingSuffixes = []string{".near.page", ".testnet.page"}

type Network struct {
	NetworkID string
	NodeURL   string
	WalletURL string
}

type Config struct {
	Env     string
	Network Network
	// AuthToken is sent as the Authorization header on RPC calls.
	AuthToken       string
	FastNEARURL     string
	DefaultContract string

	IPFSGatewayURL   string
	NEARFSGatewayURL string
	MaxPreloadHops   int
	HostingSuffixes  []string

	PostRoutes  map[string]string
	DatabaseURL string

	Port            string
	LogLevel        string
	LogFormat       string
	UpstreamTimeout time.Duration
}

func Load() (*Config, error) {
	return load(os.LookupEnv)
}

type lookupFunc func(string) (string, bool)

func load(lookup lookupFunc) (*Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}
	env := firstNonEmpty(get("NEAR_ENV"), get("NODE_ENV"), "development")
	network, err := networkFor(env)
	if err != nil {
		return nil, err
	}
	if nodeURL := get("NODE_URL"); nodeURL != "" {
		network.NodeURL = nodeURL
	}

	routes, err := ParseRoutes(get("WEB4_POST_ROUTES"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:              env,
		Network:          network,
		AuthToken:        get("NEAR_AUTH_TOKEN"),
		FastNEARURL:      strings.TrimRight(get("FAST_NEAR_URL"), "/"),
		DefaultContract:  get("CONTRACT_NAME"),
		IPFSGatewayURL:   strings.TrimRight(envDefault(lookup, "IPFS_GATEWAY_URL", DefaultIPFSGatewayURL), "/"),
		NEARFSGatewayURL: strings.TrimRight(envDefault(lookup, "NEARFS_GATEWAY_URL", DefaultNEARFSGatewayURL), "/"),
		MaxPreloadHops:   envIntDefault(get, "MAX_PRELOAD_HOPS", DefaultMaxPreloadHops),
		HostingSuffixes:  envListDefault(get, "WEB4_HOSTING_SUFFIXES", DefaultHostingSuffixes),
		PostRoutes:       routes,
		DatabaseURL:      get("DATABASE_URL"),
		Port:             firstNonEmpty(get("SERVICE_PORT"), get("PORT"), DefaultPort),
		LogLevel:         strings.ToLower(firstNonEmpty(get("LOG_LEVEL"), "info")),
		LogFormat:        strings.ToLower(firstNonEmpty(get("LOG_FORMAT"), "json")),
		UpstreamTimeout:  time.Duration(envIntDefault(get, "UPSTREAM_TIMEOUT_SECONDS", 30)) * time.Second,
	}
	if cfg.MaxPreloadHops < 1 {
		return nil, fmt.Errorf("MAX_PRELOAD_HOPS must be positive, got %d", cfg.MaxPreloadHops)
	}
	return cfg, nil
}

func networkFor(env string) (Network, error) {
	switch strings.ToLower(env) {
	case "production", "mainnet":
		return Network{NetworkID: "mainnet", NodeURL: "https://rpc.mainnet.near.org", WalletURL: "https://wallet.near.org"}, nil
	case "development", "testnet":
		return Network{NetworkID: "testnet", NodeURL: "https://rpc.testnet.near.org", WalletURL: "https://wallet.testnet.near.org"}, nil
	case "betanet":
		return Network{NetworkID: "betanet", NodeURL: "https://rpc.betanet.near.org", WalletURL: "https://wallet.betanet.near.org"}, nil
	case "local":
		return Network{NetworkID: "local", NodeURL: "http://localhost:3030", WalletURL: "http://localhost:4000/wallet"}, nil
	case "test", "ci":
		return Network{NetworkID: "shared-test", NodeURL: "https://rpc.ci-testnet.near.org"}, nil
	case "ci-betanet":
		return Network{NetworkID: "shared-test-staging", NodeURL: "https://rpc.ci-betanet.near.org"}, nil
	default:
		return Network{}, fmt.Errorf("unconfigured environment %q", env)
	}
}

// ParseRoutes reads "path=method" pairs separated by commas.
func ParseRoutes(raw string) (map[string]string, error) {
	out := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		path, method, ok := strings.Cut(part, "=")
		path, method = strings.TrimSpace(path), strings.TrimSpace(method)
		if !ok || path == "" || method == "" {
			return nil, fmt.Errorf("invalid WEB4_POST_ROUTES entry %q", part)
		}
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		out[path] = method
	}
	return out, nil
}

// envDefault returns def only when key is unset, so an explicit empty value
// disables an optional URL such as NEARFS_GATEWAY_URL.
func envDefault(lookup lookupFunc, key, def string) string {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	return strings.TrimSpace(v)
}

func envIntDefault(get func(string) string, key string, def int) int {
	v := get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envListDefault(get func(string) string, key string, def []string) []string {
	v := get(key)
	if v == "" {
		return append([]string(nil), def...)
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
