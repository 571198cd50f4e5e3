package diffstatus

import (
	"fmt"
	"strings"
)

// Columns names the SQL expressions Classify's inputs map to.
type Columns struct {
	BaseID      string
	CompareID   string
	Score       string
	CompareName string
}

// SQLExpr renders Classify as a SQLite CASE expression yielding the status
// string.
func SQLExpr(cols Columns) string {
	return renderCase(cols, func(s Status) string { return quote(string(s)) })
}

// SQLRankExpr renders Rank(Classify(...)) as a SQLite CASE expression, for
// ORDER BY clauses.
func SQLRankExpr(cols Columns) string {
	return renderCase(cols, func(s Status) string { return fmt.Sprintf("%d", Rank(s)) })
}

func renderCase(cols Columns, value func(Status) string) string {
	var b strings.Builder
	b.WriteString("CASE")
	fmt.Fprintf(&b, " WHEN %s IS NULL THEN %s", cols.CompareID, value(Removed))
	fmt.Fprintf(&b, " WHEN %s IS NULL AND (%s) THEN %s", cols.BaseID, failureMatchSQL(cols.CompareName), value(Failure))
	fmt.Fprintf(&b, " WHEN %s IS NULL THEN %s", cols.BaseID, value(Added))
	fmt.Fprintf(&b, " WHEN %s IS NOT NULL AND %s > 0 THEN %s", cols.Score, cols.Score, value(Changed))
	fmt.Fprintf(&b, " ELSE %s END", value(Unchanged))
	return b.String()
}

func failureMatchSQL(nameCol string) string {
	clauses := make([]string, 0, len(markerOrder))
	for _, runner := range markerOrder {
		clauses = append(clauses, fmt.Sprintf("instr(COALESCE(%s, ''), %s) > 0", nameCol, quote(failureMarkers[runner])))
	}
	return strings.Join(clauses, " OR ")
}

func quote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
