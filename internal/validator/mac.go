package validator

import "strings"

// ParseMAC validates a 6-octet MAC address and returns it in lowercase colon form.
//
// Accepted: "aa:bb:cc:dd:ee:ff", "AA-BB-CC-DD-EE-FF" and the dotted
// "aabb.ccdd.eeff" form. Every octet must be exactly two hex digits.
func ParseMAC(raw string) (string, error) {
	s := strings.ToLower(Clean(raw))
	if s == "" {
		return "", newError(ReasonMissing, "no MAC address given")
	}

	var octets []string
	hasColon := strings.Contains(s, ":")
	hasHyphen := strings.Contains(s, "-")

	switch {
	case hasColon && hasHyphen:
		return "", newError(ReasonMalformed, "mixed ':' and '-' delimiters")
	case hasColon:
		octets = strings.Split(s, ":")
	case hasHyphen:
		octets = strings.Split(s, "-")
	case strings.Contains(s, "."):
		groups := strings.Split(s, ".")
		if len(groups) != 3 {
			return "", newError(ReasonWrongArity, "dotted form needs 3 groups, got %d", len(groups))
		}
		for _, g := range groups {
			if len(g) != 4 || !isHex(g) {
				return "", newError(ReasonMalformed, "group %q is not 4 hex digits", g)
			}
			octets = append(octets, g[:2], g[2:])
		}
	default:
		return "", newError(ReasonMalformed, "no ':', '-' or '.' delimiter")
	}

	if len(octets) != 6 {
		return "", newError(ReasonWrongArity, "expected 6 octets, got %d", len(octets))
	}
	for _, o := range octets {
		if len(o) != 2 || !isHex(o) {
			return "", newError(ReasonMalformed, "octet %q is not 2 hex digits", o)
		}
	}

	return strings.Join(octets, ":"), nil
}
