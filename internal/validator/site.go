package validator

// ParseSite trims the site label and collapses internal whitespace
func ParseSite(raw string) (string, error) {
	s := CollapseSpace(Clean(raw))
	if s == "" {
		return "", newError(ReasonMissing, "no site given")
	}
	return s, nil
}
