// middleware.go - Host-Pruefung fuer lokal gebundene Server
// Enthaelt: hostGuard, newHostGuard(), originHost(), readOnlyModelRoute()

package server

import (
	"net"
	"net/http"
	"net/netip"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cnnbench/cnnbench/envconfig"
)

// hostGuard decides which Host headers a loopback-bound server answers.
// Browsers can be pointed at 127.0.0.1 through a rebound DNS name; the
// guard refuses such names unless they are configured or obviously local.
type hostGuard struct {
	names    map[string]bool
	suffixes []string
	local    []netip.Addr
}

// newHostGuard collects the accepted names from the listen address, the
// machine's hostname and the hosts named in CNNBENCH_ORIGINS. Wildcard
// origins such as https://*.lab.example accept every subdomain.
func newHostGuard() *hostGuard {
	g := &hostGuard{
		names:    map[string]bool{"": true, "localhost": true},
		suffixes: []string{".localhost", ".local", ".internal"},
	}

	if host, _, err := net.SplitHostPort(envconfig.Host()); err == nil {
		g.names[strings.ToLower(host)] = true
	}
	if hostname, err := os.Hostname(); err == nil {
		g.names[strings.ToLower(hostname)] = true
	}

	for _, origin := range envconfig.AllowedOrigins() {
		host := originHost(origin)
		switch {
		case host == "" || host == "*":
		case strings.HasPrefix(host, "*."):
			g.suffixes = append(g.suffixes, host[1:])
		default:
			g.names[host] = true
		}
	}

	if addrs, err := net.InterfaceAddrs(); err == nil {
		for _, a := range addrs {
			if p, err := netip.ParsePrefix(a.String()); err == nil {
				g.local = append(g.local, p.Addr().Unmap())
			}
		}
	}
	return g
}

// originHost returns the lower-cased host of an origin like
// "http://name:*". Ports may be wildcards, so net/url cannot parse it.
func originHost(origin string) string {
	_, rest, ok := strings.Cut(strings.TrimSpace(origin), "://")
	if !ok {
		rest = strings.TrimSpace(origin)
	}
	rest, _, _ = strings.Cut(rest, "/")
	if host, _, err := net.SplitHostPort(rest); err == nil {
		rest = host
	}
	return strings.ToLower(strings.Trim(rest, "[]"))
}

func (g *hostGuard) allowed(host string) bool {
	host = strings.ToLower(host)
	if g.names[host] {
		return true
	}
	for _, suffix := range g.suffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}

	ip, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	ip = ip.Unmap()
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}
	for _, a := range g.local {
		if a == ip {
			return true
		}
	}
	return false
}

// readOnlyModelRoute reports whether the request only reads the model
// registry, which holds nothing worth rebinding for.
func readOnlyModelRoute(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	return r.URL.Path == "/api/models" || strings.HasPrefix(r.URL.Path, "/api/models/")
}

// middleware enforces the guard while addr is a loopback address. Servers
// bound to other interfaces are left alone.
func (g *hostGuard) middleware(addr net.Addr) gin.HandlerFunc {
	guarded := false
	if addr != nil {
		if ap, err := netip.ParseAddrPort(addr.String()); err == nil {
			guarded = ap.Addr().IsLoopback()
		}
	}

	return func(c *gin.Context) {
		if !guarded || readOnlyModelRoute(c.Request) {
			c.Next()
			return
		}

		host, _, err := net.SplitHostPort(c.Request.Host)
		if err != nil {
			host = c.Request.Host
		}
		host = strings.Trim(host, "[]")

		if !g.allowed(host) {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
