package validator

import "strings"

// placeholders are spreadsheet artifacts that mean "no value"
var placeholders = map[string]struct{}{
	"":     {},
	"nan":  {},
	"null": {},
	"none": {},
	"n/a":  {},
}

// Clean trims s and maps placeholder text to the empty string
func Clean(s string) string {
	s = strings.TrimSpace(s)
	if _, ok := placeholders[strings.ToLower(s)]; ok {
		return ""
	}
	return s
}

// CollapseSpace trims s and folds every run of whitespace into one space
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
