package validator

import (
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

const (
	// MaxLabelLength is the longest permitted DNS label
	MaxLabelLength = 63
	// MaxFQDNLength is the longest permitted fully qualified name, without the root dot
	MaxFQDNLength = 253
)

var (
	labelRE      = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	separatorsRE = regexp.MustCompile(`[\s_]+`)
	illegalRE    = regexp.MustCompile(`[^a-z0-9.-]`)
	hyphenRunRE  = regexp.MustCompile(`-{2,}`)
)

// Hostname is a validated host name.
// When the input carried dots and validated as an FQDN, Name holds the
// first label and FQDN the full name.
type Hostname struct {
	Name          string
	FQDN          string
	LooksLikeFQDN bool
}

// ParseHostname validates a single-label host name.
// Input is lowercased and a trailing dot is dropped.
func ParseHostname(raw string) (Hostname, error) {
	s := strings.TrimSuffix(strings.ToLower(Clean(raw)), ".")
	if s == "" {
		return Hostname{}, newError(ReasonMissing, "no hostname given")
	}

	if strings.Contains(s, ".") {
		fqdn, err := ParseFQDN(s)
		if err != nil {
			return Hostname{}, err
		}
		return Hostname{Name: FirstLabel(fqdn), FQDN: fqdn, LooksLikeFQDN: true}, nil
	}

	if err := checkLabel(s); err != nil {
		err.Suggestion = SuggestName(s)
		return Hostname{}, err
	}
	return Hostname{Name: s}, nil
}

// ParseFQDN validates a fully qualified domain name of two or more labels
func ParseFQDN(raw string) (string, error) {
	s := strings.TrimSuffix(strings.ToLower(Clean(raw)), ".")
	if s == "" {
		return "", newError(ReasonMissing, "no fqdn given")
	}
	if len(s) > MaxFQDNLength {
		return "", newError(ReasonOutOfRange, "name is %d characters, max %d", len(s), MaxFQDNLength)
	}

	labels := strings.Split(s, ".")
	if len(labels) < 2 {
		return "", newError(ReasonWrongArity, "not fully qualified, needs at least two labels")
	}
	for _, l := range labels {
		if err := checkLabel(l); err != nil {
			err.Suggestion = SuggestName(s)
			return "", err
		}
	}

	// An all-numeric final label means an address, not a name
	if allDigits(labels[len(labels)-1]) {
		return "", newError(ReasonMalformed, "top-level label %q is numeric", labels[len(labels)-1])
	}
	return s, nil
}

// FirstLabel returns the leftmost label of a dotted name
func FirstLabel(name string) string {
	first, _, _ := strings.Cut(name, ".")
	return first
}

// FQDNConsistent reports whether fqdn is rooted at hostname
func FQDNConsistent(hostname, fqdn string) bool {
	if hostname == "" || fqdn == "" {
		return false
	}
	return strings.HasPrefix(fqdn, hostname+".")
}

func checkLabel(l string) *Error {
	switch {
	case l == "":
		return newError(ReasonMalformed, "empty label")
	case len(l) > MaxLabelLength:
		return newError(ReasonOutOfRange, "label %q is %d characters, max %d", clipLabel(l), len(l), MaxLabelLength)
	case !labelRE.MatchString(l):
		return newError(ReasonMalformed, "label %q must be [a-z0-9-] without a leading or trailing hyphen", l)
	}
	return nil
}

// SuggestName proposes a valid form of an invalid name, or "" when no
// safe rewrite exists. Non-ASCII names are offered in punycode.
func SuggestName(name string) string {
	name = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
	if name == "" {
		return ""
	}

	if !isASCII(name) {
		if ascii, err := idna.Lookup.ToASCII(name); err == nil && validLabels(ascii) {
			return ascii
		}
	}

	s := separatorsRE.ReplaceAllString(name, "-")
	s = illegalRE.ReplaceAllString(s, "-")
	s = hyphenRunRE.ReplaceAllString(s, "-")

	labels := strings.Split(s, ".")
	kept := labels[:0]
	for _, l := range labels {
		l = strings.Trim(l, "-")
		if len(l) > MaxLabelLength {
			l = strings.TrimRight(l[:MaxLabelLength], "-")
		}
		if l != "" {
			kept = append(kept, l)
		}
	}
	s = strings.Join(kept, ".")

	if s == name || !validLabels(s) {
		return ""
	}
	return s
}

func validLabels(name string) bool {
	if name == "" || len(name) > MaxFQDNLength {
		return false
	}
	for _, l := range strings.Split(name, ".") {
		if checkLabel(l) != nil {
			return false
		}
	}
	return true
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func clipLabel(l string) string {
	if len(l) <= 20 {
		return l
	}
	return l[:20] + "..."
}
