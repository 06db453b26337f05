package activity

import (
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes the identity and load of an activity set. Equal sets
// give equal fingerprints regardless of order.
func Fingerprint(unified []Unified) string {
	lines := make([]string, 0, len(unified))
	for _, a := range unified {
		lines = append(lines, a.Source+"|"+a.ID+"|"+
			strconv.FormatInt(a.StartTime.Unix(), 10)+"|"+
			strconv.FormatInt(int64(a.Duration.Seconds()), 10)+"|"+
			strconv.FormatFloat(a.TSS, 'f', 3, 64))
	}
	sort.Strings(lines)

	h := xxhash.New()
	for _, l := range lines {
		_, _ = h.WriteString(l)
		_, _ = h.WriteString("\n")
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
