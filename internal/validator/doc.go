// Package validator implements the per-field parsers for raw inventory text.
//
// Every validator is a pure function: it takes the raw operator-entered string
// and returns either a canonical value or an *Error carrying a Reason. Callers
// turn errors into anomalies; nothing here logs or allocates shared state.
//
// The policy is conservative throughout. Ambiguous input is rejected rather than
// reinterpreted: IPv4 octets with leading zeros are never read as octal, MAC
// addresses must have exactly six two-digit octets, and host labels are never
// silently rewritten.
package validator
