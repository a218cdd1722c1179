package mysql

import "strings"

const defaultDocumentName = "predictions"

// stringOrDefault returns def when the input is empty/whitespace
func stringOrDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
