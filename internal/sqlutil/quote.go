// Package sqlutil provides SQL utility functions for cdcpipe.
package sqlutil

import (
	"regexp"
	"strings"
)

// QuoteIdentifier quotes a Snowflake identifier with double quotes.
// It escapes any existing double quotes by doubling them.
// Quoted identifiers are case-sensitive, so callers pass names exactly as
// the warehouse reports them (usually upper case).
// Example: "PATIENTS_STREAM" -> "\"PATIENTS_STREAM\""
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// validIdentifierRegex matches unquoted Snowflake identifiers: letters,
// digits, underscores and dollar signs, starting with a letter or underscore.
var validIdentifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// IsValidIdentifier checks if a name is a plain Snowflake identifier.
// Anything that would need quoting to be legal is rejected.
func IsValidIdentifier(name string) bool {
	return validIdentifierRegex.MatchString(name)
}

// NormalizeIdentifier returns the name Snowflake resolves an unquoted
// identifier to. Configured names go through it before they are quoted,
// since a quoted name is matched case-sensitively.
// Example: NormalizeIdentifier("clinical_cdc_wh") -> "CLINICAL_CDC_WH"
func NormalizeIdentifier(name string) string {
	return strings.ToUpper(name)
}

// QuoteIdentifierSafe quotes an identifier after validating it.
// Returns an error if the identifier contains invalid characters.
// Use this for names read back from warehouse metadata.
func QuoteIdentifierSafe(name string) (string, error) {
	if !IsValidIdentifier(name) {
		return "", &InvalidIdentifierError{Name: name}
	}
	return QuoteIdentifier(name), nil
}

// QualifiedName quotes each part and joins them with dots.
// Example: QualifiedName("RAW_DATA", "S") -> "\"RAW_DATA\".\"S\""
func QualifiedName(parts ...string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = QuoteIdentifier(p)
	}
	return strings.Join(quoted, ".")
}

// QualifiedNameSafe is QualifiedName with every part validated first.
func QualifiedNameSafe(parts ...string) (string, error) {
	for _, p := range parts {
		if !IsValidIdentifier(p) {
			return "", &InvalidIdentifierError{Name: p}
		}
	}
	return QualifiedName(parts...), nil
}

// InvalidIdentifierError is returned when an identifier contains invalid characters.
type InvalidIdentifierError struct {
	Name string
}

func (e *InvalidIdentifierError) Error() string {
	return "invalid identifier: " + e.Name + " (must contain only letters, digits, underscores and dollar signs)"
}
