package publicsuffix

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Clean reads a public suffix list as published at
// https://publicsuffix.org/list/public_suffix_list.dat and returns its rule
// lines: comment lines (starting with "//" after whitespace) and blank lines are
// removed, remaining lines are trimmed.
//
// If icannOnly is set, only rules from the "ICANN DOMAINS" section are returned,
// leaving out the "PRIVATE DOMAINS" such as github.io.
func Clean(r io.Reader, icannOnly bool) ([]string, error) {
	var lines []string
	var icannDomains bool
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "// ===BEGIN ICANN DOMAINS===") {
			icannDomains = true
			continue
		} else if strings.HasPrefix(line, "// ===END ICANN DOMAINS===") {
			icannDomains = false
			continue
		} else if line == "" || strings.HasPrefix(line, "//") || icannOnly && !icannDomains {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading public suffix list: %w", err)
	}
	return lines, nil
}
