// ABOUTME: Client address allow-list supporting exact IPs, CIDR prefixes and globs
// ABOUTME: An empty list accepts every address

package auth

import (
	"fmt"
	"net"
	"net/netip"
	"path"
	"strings"
)

// AddressList is a set of accepted client addresses.
type AddressList struct {
	exact    map[netip.Addr]struct{}
	prefixes []netip.Prefix
	patterns []string
}

// ParseAddressList parses allow-list entries. Each entry is one of:
//
//   - an IP address ("127.0.0.1", "::1")
//   - a CIDR prefix ("10.0.0.0/8")
//   - a glob pattern matched against the textual address ("192.168.1.*")
//   - "localhost", shorthand for both loopback addresses
func ParseAddressList(entries []string) (*AddressList, error) {
	l := &AddressList{exact: make(map[netip.Addr]struct{})}
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		switch {
		case entry == "":
			continue
		case strings.EqualFold(entry, "localhost"):
			l.exact[netip.MustParseAddr("127.0.0.1")] = struct{}{}
			l.exact[netip.IPv6Loopback()] = struct{}{}
		case strings.ContainsAny(entry, "*?["):
			if _, err := path.Match(entry, ""); err != nil {
				return nil, fmt.Errorf("invalid address pattern %q: %w", entry, err)
			}
			l.patterns = append(l.patterns, entry)
		case strings.Contains(entry, "/"):
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid address prefix %q: %w", entry, err)
			}
			l.prefixes = append(l.prefixes, prefix.Masked())
		default:
			addr, err := netip.ParseAddr(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid address %q: %w", entry, err)
			}
			l.exact[addr.Unmap()] = struct{}{}
		}
	}
	return l, nil
}

// Empty reports whether the list has no entries.
func (l *AddressList) Empty() bool {
	return l == nil || (len(l.exact) == 0 && len(l.prefixes) == 0 && len(l.patterns) == 0)
}

// Allows reports whether a client address is accepted. remoteAddr may be a
// bare IP or a host:port pair as found in http.Request.RemoteAddr.
func (l *AddressList) Allows(remoteAddr string) bool {
	if l.Empty() {
		return true
	}

	host := hostOf(remoteAddr)
	addr, err := netip.ParseAddr(host)
	if err == nil {
		addr = addr.Unmap()
		if _, ok := l.exact[addr]; ok {
			return true
		}
		for _, p := range l.prefixes {
			if p.Contains(addr) {
				return true
			}
		}
		host = addr.String()
	}

	for _, pattern := range l.patterns {
		if ok, _ := path.Match(pattern, host); ok {
			return true
		}
	}
	return false
}

// hostOf strips the port and IPv6 zone brackets from a remote address.
func hostOf(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return strings.Trim(remoteAddr, "[]")
}
