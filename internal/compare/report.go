package compare

import (
	"fmt"
	"strings"
)

type Severity int

const (
	SeverityNegligible Severity = iota
	SeverityMinor
	SeveritySubstantial
	SeverityMajor
)

// Fixed breakpoints on the difference percentage. Results below
// minorBreakpoint are negligible; each value is inclusive for the bucket it
// opens.
const (
	minorBreakpoint       = 1.0
	substantialBreakpoint = 5.0
	majorBreakpoint       = 20.0
)

func ClassifySeverity(diffPercentage float64) Severity {
	switch {
	case diffPercentage >= majorBreakpoint:
		return SeverityMajor
	case diffPercentage >= substantialBreakpoint:
		return SeveritySubstantial
	case diffPercentage >= minorBreakpoint:
		return SeverityMinor
	default:
		return SeverityNegligible
	}
}

func (s Severity) String() string {
	switch s {
	case SeverityMinor:
		return "minor"
	case SeveritySubstantial:
		return "substantial"
	case SeverityMajor:
		return "major"
	default:
		return "negligible"
	}
}

var severityHeadlines = map[Severity]string{
	SeverityNegligible:  "Negligible difference: the images are nearly identical.",
	SeverityMinor:       "Minor difference detected.",
	SeveritySubstantial: "Substantial difference detected.",
	SeverityMajor:       "Major difference detected.",
}

// Fixed hint tables keyed by severity bucket. These are canned heuristics,
// not derived from the pixel data beyond the percentage.
var likelyCauses = map[Severity][]string{
	SeverityNegligible: {
		"rendering noise",
		"compression artifacts",
		"color profile variance",
	},
	SeverityMinor: {
		"element positioning shifts",
		"font rendering differences",
		"color or opacity changes",
	},
	SeveritySubstantial: {
		"element positioning shifts",
		"font rendering differences",
		"color or opacity changes",
		"content updates within the existing layout",
	},
	SeverityMajor: {
		"structural layout change",
		"content change",
		"added or removed elements",
	},
}

// DescribeDifference renders a Markdown report for a result. It performs no
// I/O and is deterministic: the timestamp is copied from the result, never
// regenerated.
func DescribeDifference(result *Result) string {
	severity := ClassifySeverity(result.DiffPercentage)

	var b strings.Builder
	b.WriteString("# Image Comparison Report\n\n")
	fmt.Fprintf(&b, "%s\n\n", severityHeadlines[severity])

	b.WriteString("## Statistics\n\n")
	fmt.Fprintf(&b, "- Total pixels: %d\n", result.TotalPixels)
	fmt.Fprintf(&b, "- Differing pixels: %d\n", result.DifferingPixels)
	fmt.Fprintf(&b, "- Difference: %.2f%%\n", result.DiffPercentage)
	fmt.Fprintf(&b, "- Threshold: %.1f%%\n", result.Metadata.Threshold*100)
	fmt.Fprintf(&b, "- Compared at: %s\n\n", result.Metadata.ComparedAt)

	b.WriteString("## Image Sizes\n\n")
	fmt.Fprintf(&b, "- Image 1: %dx%d\n", result.Metadata.BaselineSize.Width, result.Metadata.BaselineSize.Height)
	fmt.Fprintf(&b, "- Image 2: %dx%d\n\n", result.Metadata.TargetSize.Width, result.Metadata.TargetSize.Height)

	fmt.Fprintf(&b, "## Likely Causes (%s)\n\n", severity)
	for _, cause := range likelyCauses[severity] {
		fmt.Fprintf(&b, "- %s\n", cause)
	}

	return b.String()
}
