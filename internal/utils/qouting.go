package utils

import (
	"fmt"
	"strings"
)

// QuoteIdentifier quotes an identifier for interpolation into DDL statements
// that cannot take it as a bind parameter (BACKUP/RESTORE targets and the
// like). Handles escaping of the quote character itself within the name.
func QuoteIdentifier(name, dialect string) string {
	switch strings.ToLower(dialect) {
	case "sqlserver":
		// Square brackets; a closing bracket inside the name doubles.
		return fmt.Sprintf("[%s]", strings.ReplaceAll(name, "]", "]]"))
	case "postgres", "sqlite":
		return fmt.Sprintf("\"%s\"", strings.ReplaceAll(name, "\"", "\"\""))
	default:
		// Fallback for unknown dialects: double quotes (ANSI SQL standard).
		return fmt.Sprintf("\"%s\"", strings.ReplaceAll(name, "\"", "\"\""))
	}
}
