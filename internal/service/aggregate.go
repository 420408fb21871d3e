package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/shopspring/decimal"

	"insight-gateway/internal/database/index"
	"insight-gateway/internal/database/metadata"
	"insight-gateway/internal/model"
	"insight-gateway/internal/repository"
	"insight-gateway/internal/utils"
)

const (
	// scanCheckInterval is how many rows are evaluated between cancellation checks
	scanCheckInterval = 4096
	// maxAggregateRowIDs caps the supporting row ids attached to a result
	maxAggregateRowIDs = 1000
	// averageScale is the number of decimal places an average is rounded to
	averageScale = 4
	// NullGroup is the group key of rows whose group_by column is null
	NullGroup = "(null)"
)

// Filter operators
const (
	opEq  = "eq"
	opNe  = "ne"
	opLt  = "lt"
	opLte = "lte"
	opGt  = "gt"
	opGte = "gte"
	opIn  = "in"
)

var filterOps = map[string]bool{opEq: true, opNe: true, opLt: true, opLte: true, opGt: true, opGte: true, opIn: true}

// predicate is one normalized filter condition. Values holds the canonical
// rendering used for the cache key, operands the typed values compared.
type predicate struct {
	Column   string   `json:"column"`
	Op       string   `json:"op"`
	Values   []string `json:"values"`
	Null     bool     `json:"null,omitempty"`
	operands []any
	col      *metadata.ColumnSchema
}

// aggregatePlan is the canonical form of an AggregateSpec
type aggregatePlan struct {
	Op           model.AggregateOp `json:"op"`
	Table        model.TableKind   `json:"table"`
	Column       string            `json:"column,omitempty"`
	Weight       string            `json:"weight,omitempty"`
	GroupBy      string            `json:"group_by,omitempty"`
	Predicates   []predicate       `json:"filter,omitempty"`
	MaxCost      int               `json:"max_cost"`
	RequireIndex bool              `json:"require_index,omitempty"`

	schema *metadata.TableSchema
}

// Aggregate computes count, sum or average over the rows matching the
// filter, optionally grouped. Equality and membership predicates on indexed
// columns narrow the candidates by bitmap intersection; without one the
// table is scanned, subject to the cost ceiling.
func (s *RetrievalService) Aggregate(ctx context.Context, spec model.AggregateSpec) (*model.AggregateResult, error) {
	plan, err := s.planAggregate(spec)
	if err != nil {
		return nil, err
	}

	return run(ctx, s, model.OpAggregate, plan, func(ctx context.Context, snap *repository.Snapshot) (*model.AggregateResult, error) {
		return s.evaluate(ctx, snap, plan)
	})
}

func (s *RetrievalService) planAggregate(spec model.AggregateSpec) (*aggregatePlan, error) {
	op, ok := model.ParseAggregateOp(string(spec.Op))
	if !ok {
		return nil, utils.NewInvalidQueryError(fmt.Sprintf("unknown aggregate %q, expected count, sum or average", spec.Op))
	}
	kind, ok := model.ParseTableKind(string(spec.Table))
	if !ok {
		return nil, utils.NewInvalidQueryError(fmt.Sprintf("unknown table %q", spec.Table))
	}
	schema, ok := s.catalog.Table(kind)
	if !ok {
		return nil, utils.NewInvalidQueryError(fmt.Sprintf("no schema for table %s", kind))
	}

	plan := &aggregatePlan{
		Op:           op,
		Table:        kind,
		Column:       strings.TrimSpace(spec.Column),
		Weight:       strings.TrimSpace(spec.Weight),
		GroupBy:      strings.TrimSpace(spec.GroupBy),
		MaxCost:      spec.MaxCost,
		RequireIndex: spec.RequireIndex,
		schema:       schema,
	}
	if plan.MaxCost <= 0 {
		plan.MaxCost = s.opts.MaxScanRows
	}

	if plan.Column != "" {
		col, ok := schema.Column(plan.Column)
		if !ok {
			return nil, utils.NewInvalidQueryError(fmt.Sprintf("unknown column %s.%s", kind, plan.Column))
		}
		if op != model.AggregateCount && !col.Type.IsNumeric() {
			return nil, utils.NewInvalidQueryError(fmt.Sprintf("cannot %s %s column %s", op, col.Type, col.Name))
		}
	} else if op != model.AggregateCount {
		return nil, utils.NewInvalidQueryError(fmt.Sprintf("%s requires a column", op))
	}

	if plan.Weight != "" {
		if op == model.AggregateCount || plan.Column == "" {
			return nil, utils.NewInvalidQueryError("weight applies to sum and average of a column")
		}
		col, ok := schema.Column(plan.Weight)
		if !ok {
			return nil, utils.NewInvalidQueryError(fmt.Sprintf("unknown weight column %s.%s", kind, plan.Weight))
		}
		if !col.Type.IsNumeric() {
			return nil, utils.NewInvalidQueryError(fmt.Sprintf("cannot weight by %s column %s", col.Type, col.Name))
		}
	}

	if plan.GroupBy != "" {
		if _, ok := schema.Column(plan.GroupBy); !ok {
			return nil, utils.NewInvalidQueryError(fmt.Sprintf("unknown group_by column %s.%s", kind, plan.GroupBy))
		}
	}

	columns := make([]string, 0, len(spec.Filter))
	for name := range spec.Filter {
		columns = append(columns, name)
	}
	sort.Strings(columns)

	for _, name := range columns {
		col, ok := schema.Column(strings.TrimSpace(name))
		if !ok {
			return nil, utils.NewInvalidQueryError(fmt.Sprintf("unknown filter column %s.%s", kind, name))
		}
		preds, err := parseFilter(col, spec.Filter[name])
		if err != nil {
			return nil, utils.NewInvalidQueryError(err.Error())
		}
		plan.Predicates = append(plan.Predicates, preds...)
	}
	return plan, nil
}

// parseFilter turns a scalar (equality) or operator map into predicates,
// ordered by operator.
func parseFilter(col *metadata.ColumnSchema, raw any) ([]predicate, error) {
	ops, isMap := raw.(map[string]any)
	if !isMap {
		p, err := newPredicate(col, opEq, raw)
		if err != nil {
			return nil, err
		}
		return []predicate{p}, nil
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("filter on %s has no operator", col.Name)
	}

	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)

	preds := make([]predicate, 0, len(names))
	for _, name := range names {
		op := strings.ToLower(strings.TrimSpace(name))
		if !filterOps[op] {
			return nil, fmt.Errorf("unknown filter operator %q on %s", name, col.Name)
		}
		p, err := newPredicate(col, op, ops[name])
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

func newPredicate(col *metadata.ColumnSchema, op string, raw any) (predicate, error) {
	p := predicate{Column: col.Name, Op: op, col: col}

	var literals []any
	if op == opIn {
		list, ok := raw.([]any)
		if !ok {
			if strs, isStrs := raw.([]string); isStrs {
				for _, v := range strs {
					list = append(list, v)
				}
			} else {
				return p, fmt.Errorf("operator in on %s needs a list", col.Name)
			}
		}
		if len(list) == 0 {
			return p, fmt.Errorf("operator in on %s needs at least one value", col.Name)
		}
		literals = list
	} else {
		if _, nested := raw.([]any); nested {
			return p, fmt.Errorf("operator %s on %s needs a single value", op, col.Name)
		}
		literals = []any{raw}
	}

	for _, lit := range literals {
		v, err := metadata.CoerceLiteral(lit, col)
		if err != nil {
			return p, err
		}
		if v == nil {
			if op != opEq && op != opNe && op != opIn {
				return p, fmt.Errorf("operator %s on %s cannot compare with null", op, col.Name)
			}
			p.Null = true
			continue
		}
		if s, ok := v.(string); ok {
			v = comparableString(col, s)
		}
		p.operands = append(p.operands, v)
		p.Values = append(p.Values, model.FormatValue(v))
	}
	sortPredicateValues(&p)
	return p, nil
}

// sortPredicateValues orders the operands of an in predicate so that
// permutations of the same list share a cache key
func sortPredicateValues(p *predicate) {
	if p.Op != opIn || len(p.Values) < 2 {
		return
	}
	idx := make([]int, len(p.Values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return p.Values[idx[a]] < p.Values[idx[b]] })
	values := make([]string, 0, len(idx))
	operands := make([]any, 0, len(idx))
	for i, j := range idx {
		if i > 0 && p.Values[j] == values[len(values)-1] {
			continue
		}
		values = append(values, p.Values[j])
		operands = append(operands, p.operands[j])
	}
	p.Values, p.operands = values, operands
}

func comparableString(col *metadata.ColumnSchema, s string) string {
	if col.Identifier {
		return index.IdentifierKey(s)
	}
	return index.NormalizeKey(s)
}

type accumulator struct {
	rows  int64
	count int64
	sum   decimal.Decimal
}

func (s *RetrievalService) evaluate(ctx context.Context, snap *repository.Snapshot, plan *aggregatePlan) (*model.AggregateResult, error) {
	table := snap.Table(plan.Table)
	if table == nil {
		return nil, fmt.Errorf("table %s missing from generation %d", plan.Table, snap.Generation)
	}

	cost := model.QueryCost{Strategy: "index"}
	var candidates *roaring.Bitmap
	residual := make([]predicate, 0, len(plan.Predicates))

	for _, p := range plan.Predicates {
		bm, name, ok := indexedCandidates(snap.Indexes, plan.Table, p)
		if !ok {
			residual = append(residual, p)
			continue
		}
		if candidates == nil {
			candidates = bm
		} else {
			candidates = roaring.And(candidates, bm)
		}
		cost.IndexesUsed = append(cost.IndexesUsed, name)
	}

	if candidates == nil {
		if plan.RequireIndex {
			return nil, utils.NewQueryTooExpensiveError(fmt.Sprintf(
				"no indexed predicate on %s and require_index is set", plan.Table))
		}
		cost.Strategy = "full_scan"
		cost.FullScan = true
		cost.RowsExamined = table.Len()
	} else {
		cost.RowsExamined = int(candidates.GetCardinality())
	}
	if cost.RowsExamined > plan.MaxCost {
		return nil, utils.NewQueryTooExpensiveError(fmt.Sprintf(
			"query would examine %d rows of %s, ceiling is %d", cost.RowsExamined, plan.Table, plan.MaxCost))
	}

	groups := make(map[string]*accumulator)
	total := &accumulator{sum: decimal.Zero}
	rowIDs := make([]int, 0)
	matched := 0

	visit := func(rowID int) {
		row := table.Rows[rowID]
		for i := range residual {
			if !residual[i].matches(row[residual[i].Column]) {
				return
			}
		}
		matched++
		if len(rowIDs) <= maxAggregateRowIDs {
			rowIDs = append(rowIDs, rowID)
		}

		acc := total
		if plan.GroupBy != "" {
			key := NullGroup
			if v := row[plan.GroupBy]; v != nil {
				key = model.FormatValue(v)
			}
			acc = groups[key]
			if acc == nil {
				acc = &accumulator{sum: decimal.Zero}
				groups[key] = acc
			}
		}
		acc.add(row, plan.Column, plan.Weight)
	}

	if candidates == nil {
		for rowID := range table.Rows {
			if rowID%scanCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			visit(rowID)
		}
	} else {
		it := candidates.Iterator()
		for n := 0; it.HasNext(); n++ {
			if n%scanCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			visit(int(it.Next()))
		}
	}

	res := &model.AggregateResult{
		ResultMeta:  meta(model.OpAggregate, snap),
		Spec:        plan.spec(),
		MatchedRows: matched,
		Cost:        cost,
	}
	if len(rowIDs) <= maxAggregateRowIDs {
		res.RowIDs = rowIDs
	}
	if plan.GroupBy == "" {
		res.Value = total.result(plan.Op, plan.Column)
	} else {
		res.Groups = make(map[string]any, len(groups))
		for key, acc := range groups {
			res.Groups[key] = acc.result(plan.Op, plan.Column)
		}
	}
	return res, nil
}

// indexedCandidates answers an eq or in predicate from an exact index
func indexedCandidates(set *index.Set, table model.TableKind, p predicate) (*roaring.Bitmap, string, bool) {
	if (p.Op != opEq && p.Op != opIn) || p.Null {
		return nil, "", false
	}
	ix, ok := set.ForColumn(table, p.Column)
	if !ok {
		return nil, "", false
	}
	postings := make([]*roaring.Bitmap, 0, len(p.Values))
	for _, v := range p.Values {
		if bm := ix.Posting(ix.Key(v)); bm != nil {
			postings = append(postings, bm)
		}
	}
	return roaring.FastOr(postings...), ix.Name, true
}

func (a *accumulator) add(row model.Row, column, weight string) {
	a.rows++
	if column == "" {
		return
	}
	v := row[column]
	if v == nil {
		return
	}
	var w decimal.Decimal
	if weight != "" {
		var ok bool
		if w, ok = numeric(row[weight]); !ok {
			return
		}
	}
	a.count++
	if n, ok := numeric(v); ok {
		if weight != "" {
			n = n.Mul(w)
		}
		a.sum = a.sum.Add(n)
	}
}

// numeric converts a stored integer or decimal cell, false for null
func numeric(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case int64:
		return decimal.NewFromInt(n), true
	case decimal.Decimal:
		return n, true
	}
	return decimal.Zero, false
}

// result finalizes an accumulator: count is int64, sum a decimal, average a
// decimal rounded to averageScale places or nil when nothing was averaged.
// COUNT(column) counts non-null values.
func (a *accumulator) result(op model.AggregateOp, column string) any {
	switch op {
	case model.AggregateSum:
		return a.sum
	case model.AggregateAverage:
		if a.count == 0 {
			return nil
		}
		return a.sum.Div(decimal.NewFromInt(a.count)).Round(averageScale)
	default:
		if column != "" {
			return a.count
		}
		return a.rows
	}
}

// matches evaluates the predicate against a stored value. Null only
// satisfies eq/in null and fails every other comparison; ne null matches
// every non-null value.
func (p *predicate) matches(value any) bool {
	if value == nil {
		switch p.Op {
		case opEq, opIn:
			return p.Null
		default:
			return false
		}
	}
	if s, ok := value.(string); ok {
		value = comparableString(p.col, s)
	}

	switch p.Op {
	case opEq, opIn:
		for _, operand := range p.operands {
			if c, ok := compareValues(value, operand); ok && c == 0 {
				return true
			}
		}
		return false
	case opNe:
		for _, operand := range p.operands {
			if c, ok := compareValues(value, operand); ok && c == 0 {
				return false
			}
		}
		return true
	}

	if len(p.operands) == 0 {
		return false
	}
	c, ok := compareValues(value, p.operands[0])
	if !ok {
		return false
	}
	switch p.Op {
	case opLt:
		return c < 0
	case opLte:
		return c <= 0
	case opGt:
		return c > 0
	case opGte:
		return c >= 0
	}
	return false
}

// compareValues orders two values of the same column type
func compareValues(a, b any) (int, bool) {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case int64:
		switch y := b.(type) {
		case int64:
			switch {
			case x < y:
				return -1, true
			case x > y:
				return 1, true
			}
			return 0, true
		case decimal.Decimal:
			return decimal.NewFromInt(x).Cmp(y), true
		}
	case decimal.Decimal:
		switch y := b.(type) {
		case decimal.Decimal:
			return x.Cmp(y), true
		case int64:
			return x.Cmp(decimal.NewFromInt(y)), true
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), true
		}
	}
	return 0, false
}

// spec renders the plan back as the spec it answers
func (p *aggregatePlan) spec() model.AggregateSpec {
	spec := model.AggregateSpec{
		Op:           p.Op,
		Table:        p.Table,
		Column:       p.Column,
		Weight:       p.Weight,
		GroupBy:      p.GroupBy,
		MaxCost:      p.MaxCost,
		RequireIndex: p.RequireIndex,
	}
	if len(p.Predicates) == 0 {
		return spec
	}
	spec.Filter = make(map[string]any)
	for _, pred := range p.Predicates {
		ops, _ := spec.Filter[pred.Column].(map[string]any)
		if ops == nil {
			ops = make(map[string]any)
			spec.Filter[pred.Column] = ops
		}
		var operand any
		switch {
		case pred.Op == opIn:
			list := make([]any, 0, len(pred.Values)+1)
			for _, v := range pred.Values {
				list = append(list, v)
			}
			if pred.Null {
				list = append(list, nil)
			}
			operand = list
		case pred.Null:
			operand = nil
		default:
			operand = pred.Values[0]
		}
		ops[pred.Op] = operand
	}
	return spec
}
