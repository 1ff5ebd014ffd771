package process

import (
	"regexp"
	"strconv"
	"strings"
)

var wardPattern = regexp.MustCompile(`WARD\s*(\d+)`)

// wardFromAddress pulls a ward number out of a free-text address containing
// a "WARD <digits>" token. Best-effort: returns nil when nothing matches.
func wardFromAddress(address string) *int64 {
	if address == "" {
		return nil
	}
	m := wardPattern.FindStringSubmatch(strings.ToUpper(address))
	if m == nil {
		return nil
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// neighborhoodFromAddress pulls a neighborhood number from the second
// comma-delimited segment of an address. Best-effort: non-numeric segments
// yield nil.
func neighborhoodFromAddress(address string) *int64 {
	if address == "" || !strings.Contains(address, ",") {
		return nil
	}
	parts := strings.Split(address, ",")
	if len(parts) < 2 {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

var (
	streetKeywords = []string{"STREET", "AVE", "BLVD", "DR"}
	alleyKeywords  = []string{"ALLEY", "LANE"}
)

// classifyAddressType buckets an address into Street, Alley or Address by
// keyword match. Empty addresses stay unclassified.
func classifyAddressType(address string) *string {
	if address == "" {
		return nil
	}
	upper := strings.ToUpper(address)
	kind := "Address"
	if containsAny(upper, streetKeywords) {
		kind = "Street"
	} else if containsAny(upper, alleyKeywords) {
		kind = "Alley"
	}
	return &kind
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
