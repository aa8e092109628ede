package search

import "strings"

// SortArgument is one key of the stable sort order.
type SortArgument struct {
	nameURL    string
	column     string
	descending bool
}

// parseSortArgument splits the optional leading '-' from a sort name.
func parseSortArgument(raw string) SortArgument {
	if strings.HasPrefix(raw, "-") {
		return SortArgument{nameURL: raw[1:], descending: true}
	}
	return SortArgument{nameURL: raw}
}

func (s SortArgument) linkString() string {
	if s.descending {
		return "-" + s.nameURL
	}
	return s.nameURL
}
