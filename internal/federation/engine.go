package federation

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyprcat/gateway/internal/events"
)

// SourceError reports the failure of one backing source; the HTTP surface
// maps it to 502 with the failed endpoint in the body.
type SourceError struct {
	Endpoint string
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("federation: source %s failed: %v", e.Endpoint, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// ResultSet is the merged output of a federated query.
type ResultSet struct {
	Items          []Row    `json:"items"`
	TotalResults   int      `json:"totalResults"`
	QueryLanguage  string   `json:"queryLanguage"`
	ExecutionTime  string   `json:"executionTime"`
	Sources        []string `json:"sources"`
	WasGeneratedBy string   `json:"wasGeneratedBy"`
}

// Engine parses, plans, dispatches, and merges federated queries.
type Engine struct {
	planner *Planner
	log     *zap.Logger
	bus     events.Emitter

	// exec runs one source; overridable in tests to simulate failures.
	exec func(ctx context.Context, src Source, q *Query) ([]Row, error)
}

// NewEngine creates the engine over the simulated sources. bus may be nil.
func NewEngine(log *zap.Logger, bus events.Emitter) *Engine {
	e := &Engine{planner: NewPlanner(), log: log, bus: bus}
	e.exec = e.execDataset
	return e
}

// Execute runs the full pipeline. Source dispatches run in parallel under
// the caller's deadline. Per-source ordering is preserved and sources are
// concatenated in plan order; when ORDER BY names a field each source
// sorts its own rows, and the merger does not re-sort across sources —
// cross-source ordering is implementation-defined.
func (e *Engine) Execute(ctx context.Context, text string) (*ResultSet, error) {
	started := time.Now()
	q, err := Parse(text)
	if err != nil {
		return nil, err
	}
	plan := e.planner.Plan(q)

	type outcome struct {
		idx  int
		rows []Row
		err  error
	}
	results := make(chan outcome, len(plan))
	for i, src := range plan {
		go func(i int, src Source) {
			rows, err := e.exec(ctx, src, q)
			results <- outcome{idx: i, rows: rows, err: err}
		}(i, src)
	}

	collected := make([][]Row, len(plan))
	for range plan {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case out := <-results:
			if out.err != nil {
				return nil, &SourceError{Endpoint: plan[out.idx].Endpoint, Err: out.err}
			}
			collected[out.idx] = out.rows
		}
	}

	var items []Row
	for _, rows := range collected {
		items = append(items, rows...)
	}
	if len(items) > q.Limit {
		items = items[:q.Limit]
	}
	if items == nil {
		items = []Row{}
	}

	sources := make([]string, len(plan))
	for i, src := range plan {
		sources[i] = src.Endpoint
	}
	rs := &ResultSet{
		Items:          items,
		TotalResults:   len(items),
		QueryLanguage:  "hyprcat-sql-subset",
		ExecutionTime:  fmt.Sprintf("%dms", time.Since(started).Milliseconds()),
		Sources:        sources,
		WasGeneratedBy: "urn:uuid:" + uuid.NewString(),
	}
	e.log.Debug("federated query executed",
		zap.Int("sources", len(plan)),
		zap.Int("rows", len(items)))
	if e.bus != nil {
		e.bus.Emit(events.TypeQueryExecuted, "/operations/query", rs.WasGeneratedBy, map[string]any{
			"rows": len(items), "sources": sources,
		})
	}
	return rs, nil
}

// execDataset runs one source against its simulated dataset: filter,
// sort, project, trim, and stamp each row with its origin.
func (e *Engine) execDataset(ctx context.Context, src Source, q *Query) ([]Row, error) {
	started := time.Now()
	data, ok := datasets[src.Dataset]
	if !ok {
		return nil, fmt.Errorf("no dataset bound to %s", src.Dataset)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []Row
	for _, row := range data {
		if matchesAll(row, q.Where) {
			rows = append(rows, row)
		}
	}
	if q.OrderBy != "" {
		sortRows(rows, q.OrderBy, q.OrderDesc)
	}
	if len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}

	elapsed := fmt.Sprintf("%dms", time.Since(started).Milliseconds())
	out := make([]Row, len(rows))
	for i, row := range rows {
		projected := project(row, q.Select)
		projected["provenance"] = map[string]any{
			"sourceNode":    src.Endpoint,
			"executionTime": elapsed,
		}
		out[i] = projected
	}
	return out, nil
}

func matchesAll(row Row, preds []Predicate) bool {
	for _, p := range preds {
		if !matches(row, p) {
			return false
		}
	}
	return true
}

// matches coerces both sides to numbers when both parse; otherwise it
// compares as strings. LIKE is a case-insensitive substring match with %
// as wildcard.
func matches(row Row, p Predicate) bool {
	actual, ok := row[p.Field]
	if !ok {
		return false
	}
	if p.Op == "LIKE" {
		pattern, _ := p.Value.(string)
		return likeMatch(toString(actual), pattern)
	}

	af, aNum := toNumber(actual)
	bf, bNum := toNumber(p.Value)
	if aNum && bNum {
		switch p.Op {
		case "=":
			return af == bf
		case "!=":
			return af != bf
		case ">":
			return af > bf
		case ">=":
			return af >= bf
		case "<":
			return af < bf
		case "<=":
			return af <= bf
		}
		return false
	}

	as, bs := toString(actual), toString(p.Value)
	switch p.Op {
	case "=":
		return as == bs
	case "!=":
		return as != bs
	case ">":
		return as > bs
	case ">=":
		return as >= bs
	case "<":
		return as < bs
	case "<=":
		return as <= bs
	}
	return false
}

func likeMatch(value, pattern string) bool {
	if !strings.Contains(pattern, "%") {
		return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
	}
	parts := strings.Split(pattern, "%")
	escaped := make([]string, len(parts))
	for i, part := range parts {
		escaped[i] = regexp.QuoteMeta(part)
	}
	re, err := regexp.Compile("(?i)^" + strings.Join(escaped, ".*") + "$")
	if err != nil {
		return false
	}
	return re.MatchString(value)
}

func sortRows(rows []Row, field string, desc bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i][field], rows[j][field]
		af, aNum := toNumber(a)
		bf, bNum := toNumber(b)
		var less bool
		if aNum && bNum {
			less = af < bf
		} else {
			less = toString(a) < toString(b)
		}
		if desc {
			return !less
		}
		return less
	})
}

func project(row Row, fields []string) Row {
	out := make(Row, len(row))
	if len(fields) == 0 {
		for k, v := range row {
			out[k] = v
		}
		return out
	}
	for _, f := range fields {
		if v, ok := row[f]; ok {
			out[f] = v
		}
	}
	return out
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
