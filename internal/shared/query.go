package shared

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/voyager-crm/voyager/internal/platform/httpx"
)

// Listing defaults shared by every list endpoint.
const (
	DefaultPerPage = 20
	MaxPerPage     = 200
)

// ListQuery carries the Prisma-style list parameters the frontend serialises into the URL:
// page, perPage, where (JSON object) and orderBy (JSON object or array of objects).
type ListQuery struct {
	Page    int
	PerPage int
	Where   map[string]any
	OrderBy []OrderField
}

// OrderField is one orderBy entry.
type OrderField struct {
	Field string
	Desc  bool
}

// Columns maps API field names to SQL column expressions. Only mapped fields are filterable or sortable.
type Columns map[string]string

// ParseListQuery reads list parameters from the URL query string.
func ParseListQuery(values url.Values) (ListQuery, error) {
	q := ListQuery{Page: 1, PerPage: DefaultPerPage}
	if raw := values.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return q, fmt.Errorf("%w: page must be a positive integer", httpx.ErrValidation)
		}
		q.Page = page
	}
	if raw := values.Get("perPage"); raw != "" {
		perPage, err := strconv.Atoi(raw)
		if err != nil || perPage < 1 {
			return q, fmt.Errorf("%w: perPage must be a positive integer", httpx.ErrValidation)
		}
		q.PerPage = min(perPage, MaxPerPage)
	}
	if raw := values.Get("where"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &q.Where); err != nil {
			return q, fmt.Errorf("%w: where must be a JSON object", httpx.ErrValidation)
		}
	}
	if raw := values.Get("orderBy"); raw != "" {
		order, err := parseOrderBy(raw)
		if err != nil {
			return q, err
		}
		q.OrderBy = order
	}
	return q, nil
}

func parseOrderBy(raw string) ([]OrderField, error) {
	var entries []map[string]string
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &entries); err != nil {
			return nil, fmt.Errorf("%w: orderBy must be a JSON object or array", httpx.ErrValidation)
		}
	} else {
		var single map[string]string
		if err := json.Unmarshal([]byte(trimmed), &single); err != nil {
			return nil, fmt.Errorf("%w: orderBy must be a JSON object or array", httpx.ErrValidation)
		}
		entries = append(entries, single)
	}
	var fields []OrderField
	for _, entry := range entries {
		keys := make([]string, 0, len(entry))
		for k := range entry {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, field := range keys {
			dir := strings.ToLower(entry[field])
			if dir != "asc" && dir != "desc" {
				return nil, fmt.Errorf("%w: orderBy direction for %s must be asc or desc", httpx.ErrValidation, field)
			}
			fields = append(fields, OrderField{Field: field, Desc: dir == "desc"})
		}
	}
	return fields, nil
}

// Limit returns the SQL LIMIT.
func (q ListQuery) Limit() int {
	if q.PerPage <= 0 {
		return DefaultPerPage
	}
	return q.PerPage
}

// Offset returns the SQL OFFSET.
func (q ListQuery) Offset() int {
	if q.Page <= 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit()
}

// Filter translates Where into SQL conditions using positional args starting at $argStart.
// Supported operators: equality, null, {"in":[..]}, {"not":v}, {"gt"|"gte"|"lt"|"lte":v}, {"contains":"s"}.
func (q ListQuery) Filter(cols Columns, argStart int) ([]string, []any, error) {
	fields := make([]string, 0, len(q.Where))
	for field := range q.Where {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var conds []string
	var args []any
	pos := argStart
	next := func(v any) string {
		args = append(args, v)
		p := fmt.Sprintf("$%d", pos)
		pos++
		return p
	}
	for _, field := range fields {
		col, ok := cols[field]
		if !ok {
			return nil, nil, fmt.Errorf("%w: cannot filter on %q", httpx.ErrValidation, field)
		}
		value := q.Where[field]
		ops, isOps := value.(map[string]any)
		if !isOps {
			if value == nil {
				conds = append(conds, col+" IS NULL")
				continue
			}
			conds = append(conds, col+" = "+next(value))
			continue
		}
		opNames := make([]string, 0, len(ops))
		for op := range ops {
			opNames = append(opNames, op)
		}
		sort.Strings(opNames)
		for _, op := range opNames {
			v := ops[op]
			switch op {
			case "equals":
				conds = append(conds, col+" = "+next(v))
			case "not":
				if v == nil {
					conds = append(conds, col+" IS NOT NULL")
				} else {
					conds = append(conds, col+" <> "+next(v))
				}
			case "in":
				list, ok := v.([]any)
				if !ok {
					return nil, nil, fmt.Errorf("%w: %s.in must be an array", httpx.ErrValidation, field)
				}
				conds = append(conds, col+"::text = ANY("+next(stringify(list))+")")
			case "gt":
				conds = append(conds, col+" > "+next(v))
			case "gte":
				conds = append(conds, col+" >= "+next(v))
			case "lt":
				conds = append(conds, col+" < "+next(v))
			case "lte":
				conds = append(conds, col+" <= "+next(v))
			case "contains":
				s, ok := v.(string)
				if !ok {
					return nil, nil, fmt.Errorf("%w: %s.contains must be a string", httpx.ErrValidation, field)
				}
				conds = append(conds, col+" ILIKE "+next("%"+s+"%"))
			default:
				return nil, nil, fmt.Errorf("%w: unsupported operator %q on %s", httpx.ErrValidation, op, field)
			}
		}
	}
	return conds, args, nil
}

// OrderClause renders ORDER BY using whitelisted columns, falling back when no order was requested.
func (q ListQuery) OrderClause(cols Columns, fallback string) (string, error) {
	if len(q.OrderBy) == 0 {
		return "ORDER BY " + fallback, nil
	}
	parts := make([]string, 0, len(q.OrderBy))
	for _, of := range q.OrderBy {
		col, ok := cols[of.Field]
		if !ok {
			return "", fmt.Errorf("%w: cannot order by %q", httpx.ErrValidation, of.Field)
		}
		dir := "ASC"
		if of.Desc {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
	}
	return "ORDER BY " + strings.Join(parts, ", "), nil
}

func stringify(list []any) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		switch t := v.(type) {
		case string:
			out = append(out, t)
		case float64:
			out = append(out, strconv.FormatFloat(t, 'f', -1, 64))
		default:
			out = append(out, fmt.Sprint(t))
		}
	}
	return out
}

// WhereSQL joins conditions into a WHERE clause, or returns an empty string.
func WhereSQL(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conds, " AND ")
}
