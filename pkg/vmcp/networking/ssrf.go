// Package networking implements the SSRF guard of specification
// section 4.3: URL-addressed backends have their hostname resolved
// and are rejected if they resolve into any private, loopback,
// link-local, or IPv6 link-local range.
package networking

import (
	"context"
	"fmt"
	"net"
	"net/url"
)

// Resolver abstracts hostname resolution so tests can supply a fixed
// mapping instead of performing real DNS lookups.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// netResolver delegates to net.DefaultResolver.
type netResolver struct{}

func (netResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	return net.DefaultResolver.LookupIPAddr(ctx, host)
}

// DefaultResolver performs real DNS resolution via the standard
// library resolver.
var DefaultResolver Resolver = netResolver{}

// Guard rejects URLs whose host resolves to a private, loopback,
// link-local (IPv4 169.254.0.0/16), or IPv6 link-local (fe80::/10)
// address. It is the sole SSRF check backends must pass before the
// Backend Manager opens a session to a URL-addressed backend.
type Guard struct {
	resolver Resolver
}

// NewGuard returns a Guard using DefaultResolver.
func NewGuard() *Guard {
	return &Guard{resolver: DefaultResolver}
}

// NewGuardWithResolver returns a Guard using a caller-supplied
// Resolver, for tests.
func NewGuardWithResolver(r Resolver) *Guard {
	return &Guard{resolver: r}
}

// Check resolves rawURL's host and returns an error if any resolved
// address falls in a disallowed range. A bare IP literal host is
// checked directly without a DNS lookup.
func (g *Guard) Check(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse backend url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("backend url %q has no host", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		return checkIP(ip)
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve backend host %q: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("backend host %q resolved to no addresses", host)
	}
	for _, addr := range addrs {
		if err := checkIP(addr.IP); err != nil {
			return err
		}
	}
	return nil
}

func checkIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("address %s is a loopback address", ip)
	case ip.IsPrivate():
		return fmt.Errorf("address %s is a private address", ip)
	case ip.IsLinkLocalUnicast():
		return fmt.Errorf("address %s is a link-local address", ip)
	case ip.IsLinkLocalMulticast():
		return fmt.Errorf("address %s is a link-local multicast address", ip)
	case ip.IsUnspecified():
		return fmt.Errorf("address %s is unspecified", ip)
	}
	return nil
}
