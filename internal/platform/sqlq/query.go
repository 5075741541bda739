// Package sqlq builds parameterized SELECT statements over a fixed table and
// column list. Column names only ever come from declared maps, never from
// caller input; values are always bound as $n arguments.
package sqlq

import (
	"fmt"
	"strings"
)

// Op is a comparison supported in WHERE fragments.
type Op int

const (
	OpEq       Op = iota // column = $n
	OpGTE                // column >= $n
	OpLTE                // column <= $n
	OpContains           // case-sensitive substring: strpos(column, $n) > 0
)

// Columns maps an external parameter name to a database column.
type Columns map[string]string

// Query accumulates WHERE fragments and their arguments.
type Query struct {
	table   string
	cols    string
	where   []string
	args    []interface{}
	orderBy string
}

func New(table, cols string) *Query {
	return &Query{table: table, cols: cols}
}

// Where adds "param op $n" when param is declared in columns. Undeclared
// parameters are ignored and false is returned.
func (q *Query) Where(columns Columns, param string, op Op, value interface{}) bool {
	col, ok := columns[param]
	if !ok {
		return false
	}
	q.args = append(q.args, value)
	n := len(q.args)
	switch op {
	case OpEq:
		q.where = append(q.where, fmt.Sprintf("%s = $%d", col, n))
	case OpGTE:
		q.where = append(q.where, fmt.Sprintf("%s >= $%d", col, n))
	case OpLTE:
		q.where = append(q.where, fmt.Sprintf("%s <= $%d", col, n))
	case OpContains:
		q.where = append(q.where, fmt.Sprintf("strpos(%s, $%d) > 0", col, n))
	default:
		panic(fmt.Sprintf("sqlq: unknown op %d", op))
	}
	return true
}

// Sort orders by the declared column for param, then by each tie-breaker
// column ascending. An undeclared param falls back to defaultOrder.
func (q *Query) Sort(columns Columns, param string, desc bool, defaultOrder string, tieBreakers ...string) {
	col, ok := columns[param]
	if !ok {
		q.orderBy = defaultOrder
		return
	}
	dir := " ASC"
	if desc {
		dir = " DESC"
	}
	parts := []string{col + dir}
	for _, tb := range tieBreakers {
		if tb != col {
			parts = append(parts, tb+" ASC")
		}
	}
	q.orderBy = strings.Join(parts, ", ")
}

func (q *Query) whereSQL() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

func (q *Query) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", q.table, q.whereSQL())
}

func (q *Query) CountArgs() []interface{} {
	return q.args
}

// DataSQL appends ORDER BY and LIMIT/OFFSET placeholders after the filter
// arguments.
func (q *Query) DataSQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s%s", q.cols, q.table, q.whereSQL())
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	n := len(q.args)
	return sql + fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2)
}

func (q *Query) DataArgs(limit, offset int) []interface{} {
	out := make([]interface{}, len(q.args), len(q.args)+2)
	copy(out, q.args)
	return append(out, limit, offset)
}
