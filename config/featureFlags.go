package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// UseStockApplyFor gates approval per document type during incremental
// rollout. A gated-off type refuses to approve (it can still be rejected);
// approval always carries its stock mutation with it.
//
// Set via env:
// - STOCK_APPLY_DOCS="COUNT,TRANSFER,WRITEOFF,REPRICING" (case-insensitive)
//
// An empty/unset variable enables approval for ALL document types (the
// default, fully rolled-out behavior).
func UseStockApplyFor(doc string) bool {
	doc = strings.ToUpper(strings.TrimSpace(doc))
	if doc == "" {
		return false
	}
	raw := os.Getenv("STOCK_APPLY_DOCS")
	if strings.TrimSpace(raw) == "" {
		return true
	}
	for _, part := range strings.Split(raw, ",") {
		if strings.ToUpper(strings.TrimSpace(part)) == doc {
			return true
		}
	}
	return false
}

// AutosaveDebounce is the coalescing window for document item autosaves.
//
// Set via env:
// - AUTOSAVE_DEBOUNCE_MS (default 300)
func AutosaveDebounce() time.Duration {
	v := strings.TrimSpace(os.Getenv("AUTOSAVE_DEBOUNCE_MS"))
	if v == "" {
		return 300 * time.Millisecond
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return 300 * time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}
