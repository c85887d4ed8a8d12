package parser

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// contentHash returns the hex-encoded fingerprint for content, the same
// xxhash used by the persistent hash cache so a ParsedFile's Hash field and
// the incremental-selection cache agree on what "unchanged" means.
func contentHash(content []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(content))
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	return strings.Count(string(content), "\n") + 1
}
