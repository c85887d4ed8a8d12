package parser

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
	"sync"

	"github.com/graphcode-dev/graphcode-server/internal/types"
)

var (
	testRegexOnce sync.Once
	testRegexes   map[string]*regexp.Regexp
)

func loadTestRegexes() {
	testRegexOnce.Do(func() {
		testRegexes = map[string]*regexp.Regexp{
			"go":     regexp.MustCompile(`^\s*func\s+(Test\w*|Benchmark\w*)\s*\(`),
			"python": regexp.MustCompile(`^\s*def\s+(test_\w*)\s*\(`),
			"c-like": regexp.MustCompile(`^\s*(?:it|test|describe)\s*\(\s*['"\x60]([^'"\x60]+)['"\x60]`),
		}
	})
}

// extractTestSuites heuristically finds test declarations by extension:
// Go's Test*/Benchmark* function convention, Python's test_ prefix
// convention, and JS/TS's describe/it/test call convention. It is
// intentionally coarse — false negatives fall back to an empty TestSuites
// list rather than mis-extracting unrelated code.
func extractTestSuites(ext string, content []byte) []types.ParsedTestSuite {
	loadTestRegexes()
	family := fallbackFamily(ext)
	re := testRegexes[family]
	if re == nil {
		return nil
	}

	var suites []types.ParsedTestSuite
	scanner := bufio.NewScanner(bytes.NewReader(content))
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		suites = append(suites, types.ParsedTestSuite{
			Name:      strings.TrimSpace(m[1]),
			Type:      testType(ext, m[1]),
			StartLine: lineNum,
			EndLine:   lineNum,
		})
	}
	return suites
}

func testType(ext, name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "e2e") || strings.Contains(lower, "end_to_end"):
		return "e2e"
	case strings.Contains(lower, "integration"):
		return "integration"
	case strings.HasPrefix(lower, "benchmark"):
		return "unit"
	default:
		return "unit"
	}
}
