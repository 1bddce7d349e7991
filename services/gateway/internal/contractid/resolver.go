// Package contractid maps a request host onto the contract serving it.
package contractid

import (
	"context"
	"net"
	"strings"

	"go.uber.org/zap"
)

// CNAMEResolver is satisfied by *net.Resolver.
type CNAMEResolver interface {
	LookupCNAME(ctx context.Context, host string) (string, error)
}

// hostingSuffix maps a host suffix onto the account suffix that replaces it.
type hostingSuffix struct {
	host    string
	account string
}

type Resolver struct {
	suffixes []hostingSuffix
	fallback string
	dns      CNAMEResolver
	log      *zap.Logger
}

func New(suffixes []string, defaultContract string, dns CNAMEResolver, log *zap.Logger) *Resolver {
	if dns == nil {
		dns = net.DefaultResolver
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{suffixes: parseSuffixes(suffixes), fallback: defaultContract, dns: dns, log: log}
}

// parseSuffixes reads entries of the form ".near.page", ".example.org" or
// ".example.org=.near". An explicit account suffix replaces the host suffix.
// Without one, a ".page" suffix keeps its account part (".near.page" serves
// ".near") and any other suffix is stripped whole.
func parseSuffixes(entries []string) []hostingSuffix {
	out := make([]hostingSuffix, 0, len(entries))
	for _, e := range entries {
		host, account, explicit := strings.Cut(strings.ToLower(strings.TrimSpace(e)), "=")
		if host == "" {
			continue
		}
		if !explicit && strings.HasSuffix(host, ".page") {
			account = strings.TrimSuffix(host, ".page")
		}
		out = append(out, hostingSuffix{host: host, account: account})
	}
	return out
}

// Resolve never fails: hosts that match nothing get the default contract.
func (r *Resolver) Resolve(ctx context.Context, host string) string {
	hostname := stripPort(host)
	if id, ok := r.fromHost(hostname); ok {
		return id
	}
	if isLoopback(hostname) {
		return r.fallback
	}
	for _, candidate := range []string{hostname, "www." + hostname} {
		cname, err := r.dns.LookupCNAME(ctx, candidate)
		if err != nil {
			r.log.Warn("cname lookup failed", zap.String("host", candidate), zap.Error(err))
			continue
		}
		if id, ok := r.fromHost(strings.TrimSuffix(cname, ".")); ok {
			return id
		}
	}
	return r.fallback
}

// fromHost swaps a matching host suffix for its account suffix, so that
// "app.near.page" serves "app.near".
func (r *Resolver) fromHost(hostname string) (string, bool) {
	hostname = strings.ToLower(hostname)
	for _, sfx := range r.suffixes {
		name, ok := strings.CutSuffix(hostname, sfx.host)
		if !ok || name == "" {
			continue
		}
		return name + sfx.account, true
	}
	return "", false
}

func isLoopback(hostname string) bool {
	switch hostname {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.Trim(host, "[]")
}
