package agent

import "strings"

// containsFold reports whether text contains substr, ignoring case.
func containsFold(text, substr string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(substr))
}
