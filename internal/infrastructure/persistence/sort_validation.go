package persistence

import (
	"strings"
)

// ValidateSortOrder normalizes a caller-supplied sort direction to ASC or
// DESC. Anything unrecognized falls back to DESC, the journal's natural
// most-recent-first order.
func ValidateSortOrder(orderDir string) string {
	if strings.EqualFold(strings.TrimSpace(orderDir), "ASC") {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField checks a caller-supplied column name against an
// allowlist before it is interpolated into an ORDER BY clause. Unknown or
// empty input returns defaultField.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" || !allowedFields[trimmed] {
		return defaultField
	}
	return trimmed
}
