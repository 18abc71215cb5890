package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// FormatReport renders result as the plain text validation report.
func FormatReport(result *ValidationResult, generatedAt time.Time) string {
	var b strings.Builder
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(&b, "Link Validation Report")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Generated: %s\n\n", generatedAt.UTC().Format(time.RFC3339))

	fmt.Fprintln(&b, "Summary")
	fmt.Fprintln(&b, strings.Repeat("-", 60))
	fmt.Fprintf(&b, "Files scanned:           %d\n", result.FilesChecked)
	if result.FilesSkipped > 0 {
		fmt.Fprintf(&b, "Files skipped:           %d\n", result.FilesSkipped)
	}
	fmt.Fprintf(&b, "Internal links checked:  %d\n", result.InternalChecked)
	fmt.Fprintf(&b, "External links checked:  %d\n", result.ExternalChecked)
	fmt.Fprintf(&b, "Broken internal links:   %d\n", len(result.BrokenInternal))
	fmt.Fprintf(&b, "Broken external links:   %d\n", len(result.BrokenExternal))
	if result.Strict {
		fmt.Fprintln(&b, "Mode:                    strict")
	}

	status := "PASSED"
	if !result.Passed {
		status = "FAILED"
	}
	fmt.Fprintf(&b, "\nBuild status: %s\n", status)

	writeSection(&b, "Broken Internal Links (CRITICAL)", result.BrokenInternal)
	writeSection(&b, "Broken External Links (WARNING)", result.BrokenExternal)
	return b.String()
}

func writeSection(b *strings.Builder, title string, links []BrokenLink) {
	if len(links) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s\n%s\n", title, strings.Repeat("-", 60))
	for _, l := range links {
		fmt.Fprintf(b, "  %s -> %s", l.Source, l.Link)
		if l.Error != "" {
			fmt.Fprintf(b, " (%s)", l.Error)
		}
		fmt.Fprintln(b)
	}
}
