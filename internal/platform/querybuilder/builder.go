package querybuilder

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Condition is one predicate of a WHERE clause. Conditions are ANDed.
type Condition struct {
	column string
	value  any
}

func Eq(column string, value any) Condition {
	return Condition{column: column, value: value}
}

type SelectBuilder struct {
	columns []string
	table   string
	where   []Condition
	orderBy []string
}

func Select(columns ...string) *SelectBuilder {
	return &SelectBuilder{columns: append([]string(nil), columns...)}
}

func (b *SelectBuilder) From(table string) *SelectBuilder {
	b.table = table
	return b
}

func (b *SelectBuilder) Where(conditions ...Condition) *SelectBuilder {
	b.where = append(b.where, conditions...)
	return b
}

func (b *SelectBuilder) OrderBy(parts ...string) *SelectBuilder {
	b.orderBy = append(b.orderBy, parts...)
	return b
}

// ToSQL renders the statement with postgres $n placeholders.
func (b *SelectBuilder) ToSQL() (string, []any, error) {
	if len(b.columns) == 0 {
		return "", nil, errors.New("select columns are required")
	}
	if strings.TrimSpace(b.table) == "" {
		return "", nil, errors.New("select table is required")
	}

	var sql strings.Builder
	sql.WriteString("SELECT " + strings.Join(b.columns, ", ") + " FROM " + b.table)

	args := make([]any, 0, len(b.where))
	for i, c := range b.where {
		if i == 0 {
			sql.WriteString(" WHERE ")
		} else {
			sql.WriteString(" AND ")
		}
		args = append(args, c.value)
		sql.WriteString(c.column + " = " + placeholder(len(args)))
	}
	if len(b.orderBy) > 0 {
		sql.WriteString(" ORDER BY " + strings.Join(b.orderBy, ", "))
	}
	return sql.String(), args, nil
}

// insert renders a single-row INSERT; suffix is appended verbatim, e.g. an
// ON CONFLICT clause.
func insert(table string, columns []string, values []any, suffix string) (string, []any, error) {
	if strings.TrimSpace(table) == "" {
		return "", nil, errors.New("insert table is required")
	}
	if len(columns) == 0 || len(columns) != len(values) {
		return "", nil, errors.Newf("insert has %d columns and %d values", len(columns), len(values))
	}

	marks := make([]string, len(values))
	for i := range values {
		marks[i] = placeholder(i + 1)
	}
	sql := "INSERT INTO " + table + " (" + strings.Join(columns, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
	if suffix = strings.TrimSpace(suffix); suffix != "" {
		sql += " " + suffix
	}
	return sql, values, nil
}

func placeholder(i int) string {
	return "$" + strconv.Itoa(i)
}
