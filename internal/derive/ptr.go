package derive

import (
	"net/netip"
	"strconv"
	"strings"
)

const (
	ipv4ReverseZone = "in-addr.arpa"
	ipv6ReverseZone = "ip6.arpa"
)

const hexDigits = "0123456789abcdef"

// ReversePTR returns the reverse lookup name for addr, without a trailing dot.
// Returns "" for an invalid address.
func ReversePTR(addr netip.Addr) string {
	if !addr.IsValid() {
		return ""
	}

	var b strings.Builder
	if addr.Is4() {
		octets := addr.As4()
		for i := len(octets) - 1; i >= 0; i-- {
			b.WriteString(strconv.Itoa(int(octets[i])))
			b.WriteByte('.')
		}
		b.WriteString(ipv4ReverseZone)
		return b.String()
	}

	bytes := addr.As16()
	for i := len(bytes) - 1; i >= 0; i-- {
		b.WriteByte(hexDigits[bytes[i]&0x0f])
		b.WriteByte('.')
		b.WriteByte(hexDigits[bytes[i]>>4])
		b.WriteByte('.')
	}
	b.WriteString(ipv6ReverseZone)
	return b.String()
}
