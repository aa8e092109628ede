package search

import (
	"fmt"
	"net/url"
	"strings"
)

type LinkType int

const (
	LinkSelf LinkType = iota
	LinkPrev
	LinkNext
)

// LinkQuery renders the canonical query string for one bundle link: the
// matched search arguments in parse order, then the sort argument, then the
// paging window for the requested link.
func (a *Arguments) LinkQuery(link LinkType) string {
	parts := make([]string, 0, len(a.args)+2)
	for i := range a.args {
		parts = append(parts, a.args[i].link())
	}
	if sort := a.sortLink(); sort != "" {
		parts = append(parts, sort)
	}
	offset := a.paging.Offset()
	switch link {
	case LinkPrev:
		offset = a.paging.previousOffset()
	case LinkNext:
		offset = a.paging.nextOffset()
	}
	parts = append(parts, fmt.Sprintf("%s=%d&%s=%d", CountKey, a.paging.Count(), OffsetKey, offset))
	return strings.Join(parts, "&")
}

// Links assembles the self link and, where the page window allows, the prev
// and next links for a bundle with the given total match count.
func (a *Arguments) Links(base string, total int) map[LinkType]string {
	links := map[LinkType]string{
		LinkSelf: base + "?" + a.LinkQuery(LinkSelf),
	}
	if a.paging.HasPrevious() {
		links[LinkPrev] = base + "?" + a.LinkQuery(LinkPrev)
	}
	if a.paging.HasNext(total) {
		links[LinkNext] = base + "?" + a.LinkQuery(LinkNext)
	}
	return links
}

func (arg *Argument) link() string {
	value := url.QueryEscape(arg.linkValue())
	if arg.typ == Date {
		// dates always carry an explicit prefix in rendered links
		return arg.originalName + "=" + string(arg.prefix) + value
	}
	return arg.originalName + "=" + value
}

func (a *Arguments) sortLink() string {
	if len(a.sorts) == 0 {
		return ""
	}
	parts := make([]string, 0, len(a.sorts))
	for _, s := range a.sorts {
		parts = append(parts, s.linkString())
	}
	return SortKey + "=" + url.QueryEscape(strings.Join(parts, ","))
}
