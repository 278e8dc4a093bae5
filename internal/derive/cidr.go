package derive

import "net/netip"

// RangeClass names the reserved block an address falls in
type RangeClass string

const (
	ClassPrivate       RangeClass = "private"
	ClassUniqueLocal   RangeClass = "unique-local"
	ClassLoopback      RangeClass = "loopback"
	ClassLinkLocal     RangeClass = "link-local"
	ClassUnspecified   RangeClass = "unspecified"
	ClassMulticast     RangeClass = "multicast"
	ClassBroadcast     RangeClass = "broadcast"
	ClassSharedCGNAT   RangeClass = "shared-address-space"
	ClassDocumentation RangeClass = "documentation"
	ClassPublic        RangeClass = "public"
)

// Edge marks addresses at the boundary of an assigned /24
type Edge string

const (
	EdgeNone      Edge = ""
	EdgeNetwork   Edge = "network"
	EdgeBroadcast Edge = "broadcast"
)

// Subnet is the outcome of the CIDR heuristic
type Subnet struct {
	// CIDR is empty unless the address sits in assignable private space
	CIDR  string
	Class RangeClass
	// Block is the reserved range that matched, empty for public space
	Block string
	Edge  Edge
}

// Assigned reports whether a CIDR was derived
func (s Subnet) Assigned() bool {
	return s.CIDR != ""
}

// Flagged reports whether the address sits in a special-purpose range
func (s Subnet) Flagged() bool {
	return s.Class != ClassPrivate && s.Class != ClassUniqueLocal && s.Class != ClassPublic
}

type rangeRule struct {
	block netip.Prefix
	class RangeClass
	// bits is the conventional prefix length to assign, 0 to flag only
	bits int
}

// rangeTable is checked in order; narrower blocks precede the ranges containing them
var rangeTable = []rangeRule{
	{netip.MustParsePrefix("0.0.0.0/32"), ClassUnspecified, 0},
	{netip.MustParsePrefix("255.255.255.255/32"), ClassBroadcast, 0},
	{netip.MustParsePrefix("127.0.0.0/8"), ClassLoopback, 0},
	{netip.MustParsePrefix("169.254.0.0/16"), ClassLinkLocal, 0},
	{netip.MustParsePrefix("224.0.0.0/4"), ClassMulticast, 0},
	{netip.MustParsePrefix("100.64.0.0/10"), ClassSharedCGNAT, 0},
	{netip.MustParsePrefix("192.0.2.0/24"), ClassDocumentation, 0},
	{netip.MustParsePrefix("198.51.100.0/24"), ClassDocumentation, 0},
	{netip.MustParsePrefix("203.0.113.0/24"), ClassDocumentation, 0},
	{netip.MustParsePrefix("10.0.0.0/8"), ClassPrivate, 8},
	{netip.MustParsePrefix("172.16.0.0/12"), ClassPrivate, 16},
	{netip.MustParsePrefix("192.168.0.0/16"), ClassPrivate, 24},

	{netip.MustParsePrefix("::/128"), ClassUnspecified, 0},
	{netip.MustParsePrefix("::1/128"), ClassLoopback, 0},
	{netip.MustParsePrefix("fe80::/10"), ClassLinkLocal, 0},
	{netip.MustParsePrefix("ff00::/8"), ClassMulticast, 0},
	{netip.MustParsePrefix("2001:db8::/32"), ClassDocumentation, 0},
	{netip.MustParsePrefix("fc00::/7"), ClassUniqueLocal, 64},
}

// SubnetCIDR applies the reserved-range lookup table to addr.
// IPv4-mapped IPv6 addresses are classified as their IPv4 form.
func SubnetCIDR(addr netip.Addr) Subnet {
	addr = addr.WithZone("").Unmap()
	if !addr.IsValid() {
		return Subnet{}
	}

	for _, r := range rangeTable {
		if !r.block.Contains(addr) {
			continue
		}
		s := Subnet{Class: r.class, Block: r.block.String()}
		if r.bits == 0 {
			return s
		}

		prefix, err := addr.Prefix(r.bits)
		if err != nil {
			return s
		}
		s.CIDR = prefix.String()

		if r.bits == 24 && addr.Is4() {
			switch addr.As4()[3] {
			case 0:
				s.Edge = EdgeNetwork
			case 255:
				s.Edge = EdgeBroadcast
			}
		}
		return s
	}

	return Subnet{Class: ClassPublic}
}
