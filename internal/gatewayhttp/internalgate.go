package gatewayhttp

import (
	"net"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/homepilot/control-plane/internal/httpjson"
	"github.com/homepilot/control-plane/internal/obslog"
)

// InternalGate admits metrics/stats routes only from loopback or RFC-1918
// addresses, or with the configured bearer token. Everything else is 403.
// The token is held as a bcrypt hash so the plaintext never sits in memory
// longer than startup.
type InternalGate struct {
	tokenHash       []byte
	trustedNetworks []*net.IPNet
	log             *obslog.Logger
}

// privateCIDRs are always trusted in addition to any configured networks.
var privateCIDRs = []string{
	"127.0.0.0/8",
	"::1/128",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
}

// NewInternalGate builds the gate. bearerToken may be empty (network-only
// admission); extraNetworks are CIDR strings beyond the private defaults.
func NewInternalGate(bearerToken string, extraNetworks []string, log *obslog.Logger) (*InternalGate, error) {
	g := &InternalGate{log: log}

	if bearerToken != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(bearerToken), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		g.tokenHash = hash
	}

	for _, cidr := range append(append([]string(nil), privateCIDRs...), extraNetworks...) {
		_, ipNet, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			continue
		}
		g.trustedNetworks = append(g.trustedNetworks, ipNet)
	}
	return g, nil
}

// Admit reports whether the request may reach an internal-only route.
func (g *InternalGate) Admit(r *http.Request) bool {
	if ip := net.ParseIP(ClientIP(r)); ip != nil {
		for _, n := range g.trustedNetworks {
			if n.Contains(ip) {
				return true
			}
		}
	}

	if g.tokenHash != nil {
		auth := r.Header.Get("Authorization")
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return bcrypt.CompareHashAndPassword(g.tokenHash, []byte(token)) == nil
		}
	}
	return false
}

// Protect wraps an internal-only handler with the gate.
func (g *InternalGate) Protect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.Admit(r) {
			if g.log != nil {
				g.log.LogSecurityEvent(r.Context(), "internal_route_denied", map[string]interface{}{
					"client": ClientIP(r),
					"path":   r.URL.Path,
				})
			}
			httpjson.Write(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
			return
		}
		next(w, r)
	}
}
