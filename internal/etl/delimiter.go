package etl

import "strings"

var delimiters = []rune{',', ';', '\t', '|'}

// DetectDelimiter picks the delimiter that appears most consistently across
// the first non-empty lines of content. Comma wins when nothing matches.
func DetectDelimiter(content string) rune {
	if len(content) > 4096 {
		content = content[:4096]
	}

	sample := make([]string, 0, 5)
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			sample = append(sample, trimmed)
			if len(sample) == 5 {
				break
			}
		}
	}
	if len(sample) == 0 {
		return ','
	}

	best, bestScore := ',', 0.0
	for _, delim := range delimiters {
		counts := make([]float64, len(sample))
		sum := 0.0
		for i, line := range sample {
			counts[i] = float64(strings.Count(line, string(delim)))
			sum += counts[i]
		}
		avg := sum / float64(len(sample))
		if avg == 0 {
			continue
		}

		variance := 0.0
		for _, c := range counts {
			variance += (c - avg) * (c - avg)
		}
		variance /= float64(len(sample))

		// Many separators per line, the same number on every line.
		if score := avg / (1 + variance); score > bestScore {
			best, bestScore = delim, score
		}
	}
	return best
}
