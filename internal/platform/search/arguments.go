package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/erx/erx/internal/domain/prescription"
)

// QueryPair is one raw name=value query argument. Order is preserved so that
// rendered links reproduce the caller's argument order within each group.
type QueryPair struct {
	Name  string
	Value string
}

// ParseQuery splits a raw query string into ordered pairs.
func ParseQuery(rawQuery string) ([]QueryPair, error) {
	if rawQuery == "" {
		return nil, nil
	}
	var pairs []QueryPair
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		n, err := url.QueryUnescape(name)
		if err != nil {
			return nil, fmt.Errorf("%w: bad escaping in %q", ErrInvalidArgument, part)
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("%w: bad escaping in %q", ErrInvalidArgument, part)
		}
		pairs = append(pairs, QueryPair{Name: n, Value: v})
	}
	return pairs, nil
}

// Arguments is a compiled set of search, sort and paging arguments for one
// endpoint. Create it with the endpoint's supported parameters, Parse the
// query, then render SQL and bundle links from it.
type Arguments struct {
	supported []Parameter
	args      []Argument
	sorts     []SortArgument
	paging    Paging
}

func New(params ...Parameter) *Arguments {
	return &Arguments{supported: params, paging: defaultPaging()}
}

// Parse extracts search, sort and paging arguments from the ordered query
// pairs. Unknown parameter names and unparsable values for recognized names
// are dropped; malformed paging values fail with ErrInvalidArgument.
func (a *Arguments) Parse(ctx context.Context, pairs []QueryPair, hasher IdentityHasher) error {
	for _, pair := range pairs {
		if pair.Name == "" {
			return fmt.Errorf("%w: empty argument name", ErrInvalidArgument)
		}
		if pair.Name[0] == '_' {
			switch pair.Name {
			case SortKey:
				a.addSorts(pair.Value)
			case CountKey:
				if err := a.paging.setCount(pair.Value); err != nil {
					return err
				}
			case OffsetKey:
				if err := a.paging.setOffset(pair.Value); err != nil {
					return err
				}
			}
			// other reserved names are not ours to interpret
			continue
		}
		if err := a.addSearchArgument(ctx, pair.Name, pair.Value, hasher); err != nil {
			return err
		}
	}
	return nil
}

func (a *Arguments) parameter(name string) *Parameter {
	for i := range a.supported {
		if a.supported[i].Name == name {
			return &a.supported[i]
		}
	}
	return nil
}

func (a *Arguments) addSearchArgument(ctx context.Context, name, rawValues string, hasher IdentityHasher) error {
	param := a.parameter(name)
	if param == nil {
		// unsupported parameter names are ignored
		return nil
	}

	prefix, values := splitPrefixFromValue(rawValues, param.Type)
	arg := Argument{
		prefix:       prefix,
		column:       param.Column,
		originalName: name,
		typ:          param.Type,
	}

	for _, raw := range strings.Split(values, ",") {
		if raw == "" {
			continue
		}
		switch param.Type {
		case Date:
			if raw == "NULL" {
				if prefix != PrefixEQ && prefix != PrefixNE {
					continue // NULL is only meaningful for (in)equality
				}
				arg.periods = append(arg.periods, nil)
				arg.originals = append(arg.originals, raw)
				continue
			}
			period, err := parsePeriod(raw)
			if err != nil {
				continue // lenient: drop unparsable values
			}
			p := period
			arg.periods = append(arg.periods, &p)
			arg.originals = append(arg.originals, raw)
		case String:
			arg.strings = append(arg.strings, raw)
			arg.originals = append(arg.originals, raw)
		case HashedIdentity:
			hashed, err := hasher.HashIdentity(ctx, raw)
			if err != nil {
				return fmt.Errorf("search argument %s: %w", name, err)
			}
			arg.hashed = append(arg.hashed, hashed)
			arg.originals = append(arg.originals, raw)
		case TaskStatus:
			status, ok := param.Statuses[raw]
			if !ok {
				continue // lenient: drop unknown status names
			}
			arg.statuses = append(arg.statuses, status)
			arg.originals = append(arg.originals, raw)
		case PrescriptionID:
			id, err := prescription.Parse(raw)
			if err != nil {
				continue // lenient: drop malformed ids
			}
			arg.prescriptionIDs = append(arg.prescriptionIDs, id.DatabaseID())
			arg.originals = append(arg.originals, raw)
		default:
			panic(fmt.Sprintf("search: unhandled parameter type %d", param.Type))
		}
	}

	if arg.valuesCount() > 0 {
		a.args = append(a.args, arg)
	}
	return nil
}

func (a *Arguments) addSorts(raw string) {
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sort := parseSortArgument(part)
		param := a.parameter(sort.nameURL)
		if param == nil {
			continue // unknown sort names are dropped
		}
		sort.column = param.Column
		a.sorts = append(a.sorts, sort)
	}
}

// Argument returns the compiled argument for a URL name, if present.
func (a *Arguments) Argument(name string) (*Argument, bool) {
	for i := range a.args {
		if a.args[i].originalName == name {
			return &a.args[i], true
		}
	}
	return nil, false
}

// Paging returns the validated page window.
func (a *Arguments) Paging() Paging { return a.paging }

// CompileCount appends the WHERE predicates to a count query that already
// ends in a WHERE clause, returning the SQL and the complete bind list.
func (a *Arguments) CompileCount(base string, baseArgs []any) (string, []any) {
	sb := strings.Builder{}
	sb.WriteString(base)
	args := append([]any(nil), baseArgs...)
	a.appendWhere(&sb, &args)
	return sb.String(), args
}

// Compile appends the WHERE predicates, the ORDER BY clause and the paging
// window to a query that already ends in a WHERE clause. defaultOrder is used
// when no sort argument was given (it must be a complete "col ASC" list).
func (a *Arguments) Compile(base string, baseArgs []any, defaultOrder string) (string, []any) {
	sb := strings.Builder{}
	sb.WriteString(base)
	args := append([]any(nil), baseArgs...)
	a.appendWhere(&sb, &args)

	sb.WriteString(" ORDER BY ")
	sb.WriteString(a.orderBy(defaultOrder))

	idx := len(args) + 1
	fmt.Fprintf(&sb, " LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, a.paging.Count(), a.paging.Offset())

	return sb.String(), args
}

func (a *Arguments) appendWhere(sb *strings.Builder, args *[]any) {
	idx := len(*args) + 1
	for i := range a.args {
		sb.WriteString(" AND ")
		idx = a.args[i].appendSQL(sb, args, idx)
	}
}

func (a *Arguments) orderBy(defaultOrder string) string {
	if len(a.sorts) == 0 {
		return defaultOrder
	}
	parts := make([]string, 0, len(a.sorts))
	for _, s := range a.sorts {
		dir := " ASC"
		if s.descending {
			dir = " DESC"
		}
		parts = append(parts, s.column+dir)
	}
	return strings.Join(parts, ", ")
}
