// Package ratelimit throttles public card lookups so share codes can't be
// enumerated. Counters live in redis when configured so every instance
// shares them, otherwise each process keeps its own per-key token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Daskott/tandem/server/logger"
)

const DEFAULT_LOOKUPS_PER_MINUTE = 30

var logg = logger.Named("ratelimit")

type Limiter interface {
	// Allow reports whether one more request for key fits in the current window
	Allow(ctx context.Context, key string) (bool, error)
	Close() error
}

// Window is the limit applied to every key
type Window struct {
	Limit  int64
	Period time.Duration
}

func PerMinute(limit int) Window {
	if limit <= 0 {
		limit = DEFAULT_LOOKUPS_PER_MINUTE
	}
	return Window{Limit: int64(limit), Period: time.Minute}
}

// TrustedProxies holds the networks whose forwarding headers are believed.
// The zero value trusts nobody, so the key is always the remote address.
type TrustedProxies struct {
	networks []*net.IPNet
}

// NewTrustedProxies parses plain IPs & CIDR ranges
func NewTrustedProxies(entries []string) (TrustedProxies, error) {
	proxies := TrustedProxies{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return TrustedProxies{}, fmt.Errorf("invalid trusted proxy %q", entry)
			}

			bits := 8 * net.IPv6len
			if ip.To4() != nil {
				ip, bits = ip.To4(), 8*net.IPv4len
			}
			proxies.networks = append(proxies.networks, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}

		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			return TrustedProxies{}, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		proxies.networks = append(proxies.networks, network)
	}

	return proxies, nil
}

func (p TrustedProxies) trusts(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}

	for _, network := range p.networks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the remote address of r. Only when that address is a trusted
// proxy are forwarding headers read: X-Forwarded-For is walked from the right,
// skipping trusted hops, then X-Real-IP is tried.
func (p TrustedProxies) ClientIP(r *http.Request) string {
	remote := remoteHost(r)
	if !p.trusts(remote) {
		return remote
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop != "" && !p.trusts(hop) {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	return remote
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
