// Package urlguard decides whether an outbound webhook destination is safe
// to call from inside the network. It rejects loopback, private, link-local
// and cloud-metadata targets and fails closed on anything it cannot parse.
package urlguard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
	"syscall"
)

var ErrBlocked = errors.New("urlguard: destination blocked")

var blockedPrefixes = mustPrefixes(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.100.100.200/32", // alibaba metadata
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"255.255.255.255/32",
	"::/128",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

var blockedHosts = map[string]struct{}{
	"localhost":                {},
	"metadata":                 {},
	"metadata.aws":             {},
	"metadata.google.internal": {},
	"instance-data":            {},
}

// Hostname text that looks like it points into a private range, even when
// it is not a literal IP (e.g. "10.internal.example").
var blockedHostPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^127\.`),
	regexp.MustCompile(`^10\.`),
	regexp.MustCompile(`^172\.(1[6-9]|2[0-9]|3[01])\.`),
	regexp.MustCompile(`^192\.168\.`),
	regexp.MustCompile(`^169\.254\.`),
	regexp.MustCompile(`^0\.`),
	regexp.MustCompile(`\.localhost$`),
	regexp.MustCompile(`(^|\.)instance-data(\.|$)`),
}

var numericLabel = regexp.MustCompile(`^([0-9]+|0x[0-9a-f]*)$`)

// IsBlocked reports whether rawURL must not be called. It only looks at the
// URL text; see Guard.Check for the resolving variant.
func IsBlocked(rawURL string) bool {
	_, reason := inspect(rawURL)
	return reason != ""
}

// IsBlockedAddr reports whether ip falls in a range webhooks may never reach.
func IsBlockedAddr(ip netip.Addr) bool {
	if !ip.IsValid() {
		return true
	}
	ip = ip.Unmap().WithZone("")
	if ip.IsMulticast() || ip.IsUnspecified() {
		return true
	}
	for _, p := range blockedPrefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// inspect returns the normalized hostname and, if the URL is blocked, why.
func inspect(rawURL string) (string, string) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", "unparsable url"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "scheme not allowed"
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", "missing host"
	}

	if ip, err := netip.ParseAddr(host); err == nil {
		if IsBlockedAddr(ip) {
			return host, "private or reserved address"
		}
		return host, ""
	}
	if looksNumeric(host) {
		return host, "non-canonical ip literal"
	}
	if _, ok := blockedHosts[host]; ok {
		return host, "blocked hostname"
	}
	for _, re := range blockedHostPatterns {
		if re.MatchString(host) {
			return host, "blocked hostname"
		}
	}
	return host, ""
}

// looksNumeric catches decimal, octal and hex encodings such as
// "2130706433" or "0x7f.1" that resolvers may still turn into an address.
func looksNumeric(host string) bool {
	for _, label := range strings.Split(host, ".") {
		if !numericLabel.MatchString(label) {
			return false
		}
	}
	return true
}

// Resolver is satisfied by *net.Resolver.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Guard combines the literal check with DNS resolution so names that
// resolve into private ranges are rejected too.
type Guard struct {
	resolver Resolver
}

// New returns a Guard. A nil resolver limits it to the literal check.
func New(resolver Resolver) *Guard {
	return &Guard{resolver: resolver}
}

func (g *Guard) Check(ctx context.Context, rawURL string) error {
	host, reason := inspect(rawURL)
	if reason != "" {
		return fmt.Errorf("%w: %s", ErrBlocked, reason)
	}
	if g == nil || g.resolver == nil {
		return nil
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return nil
	}

	addrs, err := g.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return fmt.Errorf("%w: resolve %s: %v", ErrBlocked, host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w: %s has no addresses", ErrBlocked, host)
	}
	for _, addr := range addrs {
		if IsBlockedAddr(addr) {
			return fmt.Errorf("%w: %s resolves to %s", ErrBlocked, host, addr)
		}
	}
	return nil
}

// DialControl is a net.Dialer Control hook. It runs after resolution with
// the concrete address being dialed, so a record that changed since Check
// still cannot reach a blocked range.
func DialControl(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBlocked, err)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: dial to non-ip %q", ErrBlocked, host)
	}
	if IsBlockedAddr(ip) {
		return fmt.Errorf("%w: dial to %s", ErrBlocked, ip)
	}
	return nil
}

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		out = append(out, netip.MustParsePrefix(c))
	}
	return out
}
