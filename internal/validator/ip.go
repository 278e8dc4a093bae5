package validator

import (
	"net/netip"
	"strconv"
	"strings"
)

// IP is a validated address in canonical text form
type IP struct {
	Addr      netip.Addr
	Canonical string
	Version   int
	// Zone is the IPv6 scope identifier that was stripped before canonicalization
	Zone string
}

// ParseIP validates a dotted-quad IPv4 or colon-form IPv6 address.
//
// Leading zeros in an IPv4 octet are rejected, never read as octal. An IPv6
// zone suffix ("%eth0") is stripped and returned in IP.Zone.
func ParseIP(raw string) (IP, error) {
	s := Clean(raw)
	if s == "" {
		return IP{}, newError(ReasonMissing, "no address given")
	}

	if strings.Contains(s, ":") {
		return parseIPv6(s)
	}

	if strings.Contains(s, "%") {
		return IP{}, newError(ReasonMalformed, "zone identifier is only valid on IPv6 addresses")
	}

	addr, err := parseIPv4(s)
	if err != nil {
		return IP{}, err
	}
	return IP{Addr: addr, Canonical: addr.String(), Version: 4}, nil
}

func parseIPv4(s string) (netip.Addr, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return netip.Addr{}, newError(ReasonWrongArity, "expected 4 octets, got %d", len(parts))
	}

	var octets [4]byte
	for i, p := range parts {
		switch {
		case p == "":
			return netip.Addr{}, newError(ReasonMalformed, "octet %d is empty", i+1)
		case p[0] == '-' || p[0] == '+':
			if len(p) > 1 && allDigits(p[1:]) && p[0] == '-' {
				return netip.Addr{}, newError(ReasonOutOfRange, "octet %q is negative", p)
			}
			return netip.Addr{}, newError(ReasonMalformed, "octet %q is not a decimal number", p)
		case !allDigits(p):
			return netip.Addr{}, newError(ReasonMalformed, "octet %q is not a decimal number", p)
		case len(p) > 1 && p[0] == '0':
			return netip.Addr{}, newError(ReasonMalformed, "octet %q has a leading zero", p)
		case len(p) > 3:
			return netip.Addr{}, newError(ReasonOutOfRange, "octet %q exceeds 255", p)
		}

		v, err := strconv.Atoi(p)
		if err != nil {
			return netip.Addr{}, newError(ReasonMalformed, "octet %q: %v", p, err)
		}
		if v > 255 {
			return netip.Addr{}, newError(ReasonOutOfRange, "octet %q exceeds 255", p)
		}
		octets[i] = byte(v)
	}

	return netip.AddrFrom4(octets), nil
}

func parseIPv6(s string) (IP, error) {
	addrPart, zone, hasZone := strings.Cut(s, "%")
	if hasZone && zone == "" {
		return IP{}, newError(ReasonMalformed, "empty zone identifier")
	}
	if strings.Count(addrPart, "::") > 1 {
		return IP{}, newError(ReasonMalformed, "more than one '::'")
	}

	var groups []string
	head, tail, compressed := strings.Cut(addrPart, "::")
	if compressed {
		if head != "" {
			groups = append(groups, strings.Split(head, ":")...)
		}
		if tail != "" {
			groups = append(groups, strings.Split(tail, ":")...)
		}
	} else {
		groups = strings.Split(addrPart, ":")
	}

	want := 8
	for i, g := range groups {
		if i == len(groups)-1 && strings.Contains(g, ".") {
			// Embedded IPv4 tail occupies two groups
			if _, err := parseIPv4(g); err != nil {
				return IP{}, err
			}
			want = 7
			continue
		}
		switch {
		case g == "":
			return IP{}, newError(ReasonMalformed, "empty group at position %d", i+1)
		case !isHex(g):
			return IP{}, newError(ReasonMalformed, "group %q is not hexadecimal", g)
		case len(g) > 4:
			return IP{}, newError(ReasonOutOfRange, "group %q is longer than 4 hex digits", g)
		}
	}

	if compressed && len(groups) >= want {
		return IP{}, newError(ReasonWrongArity, "%d groups leave nothing for '::' to expand", len(groups))
	}
	if !compressed && len(groups) != want {
		return IP{}, newError(ReasonWrongArity, "expected %d groups, got %d", want, len(groups))
	}

	addr, err := netip.ParseAddr(addrPart)
	if err != nil {
		return IP{}, newError(ReasonMalformed, "%v", err)
	}

	return IP{Addr: addr, Canonical: addr.String(), Version: 6, Zone: zone}, nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') && !(c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}
