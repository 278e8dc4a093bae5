package validator

import (
	"regexp"
	"sort"
	"strings"
)

const emailPattern = `[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`

var (
	// EmailRE finds a conservative email address anywhere in free text
	EmailRE     = regexp.MustCompile(`(?i)\b` + emailPattern + `\b`)
	emailFullRE = regexp.MustCompile(`(?i)^` + emailPattern + `$`)
)

// teamAliases maps every accepted team spelling to its canonical name
var teamAliases = map[string]string{
	"ops":        "ops",
	"operations": "ops",
	"sec":        "sec",
	"security":   "sec",
	"infosec":    "sec",
	"platform":   "platform",
	"plat":       "platform",
	"facilities": "facilities",
	"facility":   "facilities",
	"it":         "it",
	"netops":     "netops",
	"devops":     "devops",
	"sre":        "sre",
	"dba":        "dba",
}

// TeamTokenRE matches any team alias as a whole word, longest first
var TeamTokenRE = regexp.MustCompile(`(?i)\b(` + strings.Join(teamTokensByLength(), "|") + `)\b`)

// ParseEmail validates a complete email address and lowercases it
func ParseEmail(raw string) (string, error) {
	s := Clean(raw)
	if s == "" {
		return "", newError(ReasonMissing, "no email given")
	}
	if !emailFullRE.MatchString(s) {
		return "", newError(ReasonMalformed, "%q is not a plain address", s)
	}

	local, domain, _ := strings.Cut(s, "@")
	switch {
	case strings.HasPrefix(local, ".") || strings.HasSuffix(local, "."):
		return "", newError(ReasonMalformed, "local part %q starts or ends with a dot", local)
	case strings.Contains(s, ".."):
		return "", newError(ReasonMalformed, "consecutive dots in %q", s)
	case strings.HasPrefix(domain, "-") || strings.HasPrefix(domain, "."):
		return "", newError(ReasonMalformed, "domain %q is not valid", domain)
	}
	return strings.ToLower(s), nil
}

// CanonicalTeam maps a team alias to its canonical name
func CanonicalTeam(token string) (string, bool) {
	t, ok := teamAliases[strings.ToLower(strings.TrimSpace(token))]
	return t, ok
}

// ParseTeam validates that raw names a known team
func ParseTeam(raw string) (string, error) {
	s := Clean(raw)
	if s == "" {
		return "", newError(ReasonMissing, "no team given")
	}
	t, ok := CanonicalTeam(s)
	if !ok {
		return "", newError(ReasonNotAllowed, "%q is not a known team", s)
	}
	return t, nil
}

// Teams returns the canonical team names in sorted order
func Teams() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range teamAliases {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func teamTokensByLength() []string {
	tokens := make([]string, 0, len(teamAliases))
	for k := range teamAliases {
		tokens = append(tokens, regexp.QuoteMeta(k))
	}
	sort.Slice(tokens, func(i, j int) bool {
		if len(tokens[i]) != len(tokens[j]) {
			return len(tokens[i]) > len(tokens[j])
		}
		return tokens[i] < tokens[j]
	})
	return tokens
}
