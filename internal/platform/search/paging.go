package search

import (
	"fmt"
	"strconv"
)

// Reserved parameter names recognized by the compiler.
const (
	SortKey   = "_sort"
	CountKey  = "_count"
	OffsetKey = "__offset"
)

const (
	// DefaultCount is the page size when _count is absent.
	DefaultCount = 50
	// MaxCount caps the page size a caller may request.
	MaxCount = 100
)

// Paging is the validated (count, offset) page window.
type Paging struct {
	count  int
	offset int
	set    bool
}

func defaultPaging() Paging {
	return Paging{count: DefaultCount}
}

func (p *Paging) setCount(raw string) error {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%w: _count %q is not a number", ErrInvalidArgument, raw)
	}
	if n < 0 {
		return fmt.Errorf("%w: _count must not be negative", ErrInvalidArgument)
	}
	if n > MaxCount {
		n = MaxCount
	}
	p.count = n
	p.set = true
	return nil
}

func (p *Paging) setOffset(raw string) error {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%w: __offset %q is not a number", ErrInvalidArgument, raw)
	}
	if n < 0 {
		return fmt.Errorf("%w: __offset must not be negative", ErrInvalidArgument)
	}
	p.offset = n
	p.set = true
	return nil
}

// Count returns the page size.
func (p Paging) Count() int { return p.count }

// Offset returns the page start.
func (p Paging) Offset() int { return p.offset }

// IsSet reports whether the caller supplied an explicit count or offset.
func (p Paging) IsSet() bool { return p.set }

// HasPrevious reports whether a previous page exists.
func (p Paging) HasPrevious() bool { return p.offset > 0 }

// HasNext reports whether a next page exists given the total match count.
func (p Paging) HasNext(total int) bool { return p.offset+p.count < total }

func (p Paging) previousOffset() int {
	if p.offset < p.count {
		return 0
	}
	return p.offset - p.count
}

func (p Paging) nextOffset() int { return p.offset + p.count }
