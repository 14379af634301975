package classify

import "strings"

// Label is the closed classification vocabulary. The first three values come
// from the model; the rest are sentinels recorded for non-answers.
type Label string

const (
	// LabelPositive marks media that matched the acceptance criteria.
	LabelPositive Label = "positive"
	// LabelNegative marks media that clearly did not match.
	LabelNegative Label = "negative"
	// LabelAmbiguous marks media the model could not decide on.
	LabelAmbiguous Label = "ambiguous"

	// LabelUnparseable marks a model response containing none of the known
	// vocabulary. Treated like ambiguous downstream, but recorded
	// distinctly so prompt regressions are visible.
	LabelUnparseable Label = "unparseable"
	// LabelFiltered marks a content-filtered or empty model response.
	LabelFiltered Label = "filtered"
	// LabelError marks an item whose classification failed outright.
	LabelError Label = "error"
	// LabelDuplicate marks an item skipped because its identity was
	// already selected or processed.
	LabelDuplicate Label = "duplicate"
)

// ParseLabel maps raw model text to the closed vocabulary by
// case-insensitive substring matching. A "negative" match wins over a
// simultaneous "positive" match: when the model hedges both ways the
// conservative reading keeps the item out of the accepted set.
func ParseLabel(text string) Label {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, string(LabelNegative)):
		return LabelNegative
	case strings.Contains(lower, string(LabelPositive)):
		return LabelPositive
	case strings.Contains(lower, string(LabelAmbiguous)):
		return LabelAmbiguous
	default:
		return LabelUnparseable
	}
}

// Accepted reports whether a label admits the item to category assignment.
func (l Label) Accepted() bool {
	return l == LabelPositive
}
