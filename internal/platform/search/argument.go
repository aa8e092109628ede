package search

import (
	"fmt"
	"strings"

	"github.com/erx/erx/internal/platform/crypto"
)

// Argument is one compiled search predicate: a recognized parameter together
// with its parsed values. Multiple values for one argument OR together.
type Argument struct {
	prefix       Prefix
	column       string
	originalName string
	typ          Type

	// exactly one of these is populated, matching typ
	periods         []*Period // nil element: match NULL
	strings         []string
	hashed          []crypto.HashedID
	statuses        []int16
	prescriptionIDs []int64

	// raw value texts, kept for canonical link rendering
	originals []string
}

// Prefix returns the comparison prefix (always eq for non-date types).
func (a *Argument) Prefix() Prefix { return a.prefix }

// Name returns the URL-facing parameter name.
func (a *Argument) Name() string { return a.originalName }

func (a *Argument) valuesCount() int {
	switch a.typ {
	case Date:
		return len(a.periods)
	case String:
		return len(a.strings)
	case HashedIdentity:
		return len(a.hashed)
	case TaskStatus:
		return len(a.statuses)
	case PrescriptionID:
		return len(a.prescriptionIDs)
	}
	panic(fmt.Sprintf("search: unhandled argument type %d", a.typ))
}

// appendSQL renders the argument as a parameterized SQL fragment, appending
// bind values to args. idx is the next free positional parameter index; the
// updated index is returned.
func (a *Argument) appendSQL(sb *strings.Builder, args *[]any, idx int) int {
	if a.valuesCount() > 1 {
		sb.WriteByte('(')
		defer sb.WriteByte(')')
	}

	switch a.typ {
	case Date:
		return a.appendDateSQL(sb, args, idx)
	case String:
		for i, v := range a.strings {
			if i > 0 {
				sb.WriteString(" OR ")
			}
			fmt.Fprintf(sb, "(%s = $%d)", a.column, idx)
			*args = append(*args, v)
			idx++
		}
		return idx
	case HashedIdentity:
		for i, v := range a.hashed {
			if i > 0 {
				sb.WriteString(" OR ")
			}
			fmt.Fprintf(sb, "(%s = $%d)", a.column, idx)
			*args = append(*args, []byte(v))
			idx++
		}
		return idx
	case TaskStatus:
		for i, v := range a.statuses {
			if i > 0 {
				sb.WriteString(" OR ")
			}
			fmt.Fprintf(sb, "(%s = $%d)", a.column, idx)
			*args = append(*args, v)
			idx++
		}
		return idx
	case PrescriptionID:
		for i, v := range a.prescriptionIDs {
			if i > 0 {
				sb.WriteString(" OR ")
			}
			fmt.Fprintf(sb, "(%s = $%d)", a.column, idx)
			*args = append(*args, v)
			idx++
		}
		return idx
	}
	panic(fmt.Sprintf("search: unhandled argument type %d", a.typ))
}

// Date semantics over half-open periods [B, E), target value T:
//
//	eq    B <= T < E
//	ne    T < B or T >= E
//	gt,sa T >= E
//	ge    T >= B
//	lt,eb T < B
//	le    T < E
func (a *Argument) appendDateSQL(sb *strings.Builder, args *[]any, idx int) int {
	for i, p := range a.periods {
		if i > 0 {
			sb.WriteString(" OR ")
		}
		switch a.prefix {
		case PrefixEQ:
			if p == nil {
				fmt.Fprintf(sb, "(%s IS NULL)", a.column)
				continue
			}
			fmt.Fprintf(sb, "(($%d <= %s) AND (%s < $%d))", idx, a.column, a.column, idx+1)
			*args = append(*args, p.Begin, p.End)
			idx += 2
		case PrefixNE:
			if p == nil {
				fmt.Fprintf(sb, "(%s IS NOT NULL)", a.column)
				continue
			}
			fmt.Fprintf(sb, "((%s < $%d) OR (%s >= $%d))", a.column, idx, a.column, idx+1)
			*args = append(*args, p.Begin, p.End)
			idx += 2
		case PrefixGT, PrefixSA:
			fmt.Fprintf(sb, "(%s >= $%d)", a.column, idx)
			*args = append(*args, p.End)
			idx++
		case PrefixGE:
			fmt.Fprintf(sb, "(%s >= $%d)", a.column, idx)
			*args = append(*args, p.Begin)
			idx++
		case PrefixLT, PrefixEB:
			fmt.Fprintf(sb, "(%s < $%d)", a.column, idx)
			*args = append(*args, p.Begin)
			idx++
		case PrefixLE:
			fmt.Fprintf(sb, "(%s < $%d)", a.column, idx)
			*args = append(*args, p.End)
			idx++
		default:
			panic(fmt.Sprintf("search: unhandled prefix %q", a.prefix))
		}
	}
	return idx
}

// linkValue renders the canonical value list for self/prev/next links.
func (a *Argument) linkValue() string {
	return strings.Join(a.originals, ",")
}
