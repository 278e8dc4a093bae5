package derive

import (
	"regexp"
	"strings"
	"unicode"

	"invnorm/internal/validator"
)

var (
	parenRE      = regexp.MustCompile(`\(([^)]*)\)`)
	punctRE      = regexp.MustCompile(`[/,|;<>\[\]{}()]+`)
	loneHyphenRE = regexp.MustCompile(`(^|\s)-+(\s|$)`)
	localSplitRE = regexp.MustCompile(`[._-]+`)
)

// fillerWords carry no owner identity once team tokens are gone
var fillerWords = map[string]struct{}{
	"team":       {},
	"dept":       {},
	"department": {},
	"group":      {},
	"grp":        {},
}

// Partial is the evidence one rule pulled out of owner text
type Partial struct {
	Email string
	Teams []string
}

// OwnerRule extracts one kind of evidence and returns the text it did not consume
type OwnerRule struct {
	Name  string
	Apply func(text string) (Partial, string)
}

// OwnerRules run in order over the owner text
var OwnerRules = []OwnerRule{
	{Name: "email", Apply: ExtractEmail},
	{Name: "paren_team", Apply: ExtractParenTeam},
	{Name: "team_tokens", Apply: ExtractTeamTokens},
	{Name: "cleanup", Apply: CleanupSeparators},
}

// Owner is the combined result of the owner rules
type Owner struct {
	Name  string
	Email string
	// Team is set only when exactly one distinct team was found
	Team string
	// Teams lists each distinct canonical team in the order seen
	Teams         []string
	Conflict      bool
	NameFromEmail bool
	TeamFromEmail bool
	// Steps names the rules that consumed text
	Steps []string
}

// ExtractOwner splits free-form owner text into name, email and team.
// A team is never produced unless its token appears in the input.
func ExtractOwner(raw string) Owner {
	var o Owner
	text := validator.CollapseSpace(validator.Clean(raw))
	if text == "" {
		return o
	}

	for _, rule := range OwnerRules {
		p, rest := rule.Apply(text)
		if p.Email != "" && o.Email == "" {
			o.Email = p.Email
		}
		for _, t := range p.Teams {
			o.addTeam(t)
		}
		if rest != text || p.Email != "" || len(p.Teams) > 0 {
			o.Steps = append(o.Steps, "owner_"+rule.Name)
		}
		text = rest
	}
	o.Name = text

	if o.Email != "" {
		local, _, _ := strings.Cut(o.Email, "@")
		local, _, _ = strings.Cut(local, "+")
		if team, ok := validator.CanonicalTeam(local); ok {
			if len(o.Teams) == 0 {
				o.addTeam(team)
				o.TeamFromEmail = true
				o.Steps = append(o.Steps, "owner_team_from_email")
			}
		} else if o.Name == "" {
			o.Name = NameFromLocalPart(local)
			o.NameFromEmail = o.Name != ""
			if o.NameFromEmail {
				o.Steps = append(o.Steps, "owner_name_from_email")
			}
		}
	}

	switch len(o.Teams) {
	case 0:
	case 1:
		o.Team = o.Teams[0]
	default:
		o.Conflict = true
	}
	return o
}

func (o *Owner) addTeam(team string) {
	for _, t := range o.Teams {
		if t == team {
			return
		}
	}
	o.Teams = append(o.Teams, team)
}

// ExtractEmail takes the first valid address and removes every address-shaped token
func ExtractEmail(text string) (Partial, string) {
	var p Partial
	matches := validator.EmailRE.FindAllString(text, -1)
	if len(matches) == 0 {
		return p, text
	}
	for _, m := range matches {
		if email, err := validator.ParseEmail(m); err == nil {
			p.Email = email
			break
		}
	}
	rest := validator.EmailRE.ReplaceAllString(text, " ")
	return p, validator.CollapseSpace(rest)
}

// ExtractParenTeam takes teams written in parentheses, e.g. "Jane (Ops)"
func ExtractParenTeam(text string) (Partial, string) {
	var p Partial
	rest := parenRE.ReplaceAllStringFunc(text, func(m string) string {
		inner := parenRE.FindStringSubmatch(m)[1]
		if team, ok := validator.CanonicalTeam(dropFiller(inner)); ok {
			p.Teams = append(p.Teams, team)
			return " "
		}
		return m
	})
	return p, validator.CollapseSpace(rest)
}

// ExtractTeamTokens removes every whole-word team alias
func ExtractTeamTokens(text string) (Partial, string) {
	var p Partial
	for _, tok := range validator.TeamTokenRE.FindAllString(text, -1) {
		if team, ok := validator.CanonicalTeam(tok); ok {
			p.Teams = append(p.Teams, team)
		}
	}
	if len(p.Teams) == 0 {
		return p, text
	}
	rest := validator.TeamTokenRE.ReplaceAllString(text, " ")
	return p, validator.CollapseSpace(rest)
}

// CleanupSeparators strips brackets, list separators, stray hyphens and filler words
func CleanupSeparators(text string) (Partial, string) {
	s := punctRE.ReplaceAllString(text, " ")
	s = loneHyphenRE.ReplaceAllString(s, " ")
	s = loneHyphenRE.ReplaceAllString(s, " ")
	s = dropFiller(s)
	s = strings.Trim(s, " -.:")
	return Partial{}, s
}

// NameFromLocalPart turns "jane.doe" into "Jane Doe".
// Tokens that are not purely alphabetic are dropped.
func NameFromLocalPart(local string) string {
	var words []string
	for _, tok := range localSplitRE.Split(local, -1) {
		if tok == "" || !isLetters(tok) {
			continue
		}
		words = append(words, titleCase(tok))
	}
	return strings.Join(words, " ")
}

func dropFiller(s string) string {
	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if _, ok := fillerWords[strings.ToLower(f)]; ok {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

func isLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func titleCase(s string) string {
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
