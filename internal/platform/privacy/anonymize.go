// Package privacy masks client identifiers before they reach logs.
package privacy

import "net/netip"

// IPPrefix reduces an address to its network: /24 for IPv4 and /48 for IPv6.
// Empty input yields "unknown"; unparseable input yields "invalid".
func IPPrefix(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap()

	bits := 48
	if addr.Is4() {
		bits = 24
	}
	pfx, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return pfx.String()
}
