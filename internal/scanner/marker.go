package scanner

import "regexp"

// markerRe matches !{msg}; msg stops at the first closing brace.
var markerRe = regexp.MustCompile(`!\{([^}]+)\}`)

// Marker is one !{...} occurrence. Start and End are byte offsets of the
// whole marker within the searched text.
type Marker struct {
	Start, End int
	Message    string
}

// FindMarkers returns the non-overlapping markers in text, left to right.
// Empty markers (!{}) are not matches.
func FindMarkers(text string) []Marker {
	idx := markerRe.FindAllStringSubmatchIndex(text, -1)
	if len(idx) == 0 {
		return nil
	}
	out := make([]Marker, 0, len(idx))
	for _, m := range idx {
		out = append(out, Marker{Start: m[0], End: m[1], Message: text[m[2]:m[3]]})
	}
	return out
}
