package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"insight-gateway/internal/database/index"
	"insight-gateway/internal/logging"
	"insight-gateway/internal/model"
	"insight-gateway/internal/utils"
)

// DefaultTolerance is the absolute difference accepted between numbers
const DefaultTolerance = 0.005

// QueryExecutor runs structured queries against the published generation
type QueryExecutor interface {
	Execute(ctx context.Context, q model.Query) (model.Result, error)
	Generation() uint64
}

// FactVerifier re-derives claims from the data before they reach a user
type FactVerifier struct {
	engine    QueryExecutor
	tolerance decimal.Decimal
	logger    *slog.Logger
	metrics   *MetricsCollector
}

// NewFactVerifier creates a verifier. A negative tolerance falls back to
// DefaultTolerance.
func NewFactVerifier(engine QueryExecutor, tolerance float64, logger *slog.Logger, metrics *MetricsCollector) *FactVerifier {
	if tolerance < 0 {
		tolerance = DefaultTolerance
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &FactVerifier{
		engine:    engine,
		tolerance: decimal.NewFromFloat(tolerance),
		logger:    logger,
		metrics:   metrics,
	}
}

// Verify accepts the claim only if re-running its query reproduces the
// claimed value. When supporting is non-nil it must come from the current
// generation and carry the same value. A mismatch returns false together
// with an UNSUPPORTED_CLAIM error; query failures are returned unchanged.
func (v *FactVerifier) Verify(ctx context.Context, claim model.Claim, supporting model.Result) (bool, error) {
	verdict, err := v.verify(ctx, claim, supporting)
	if err != nil {
		return false, err
	}
	return verdict.Verified, nil
}

// VerifyAll returns one verdict per claim. Errors are reported in the verdict
// rather than aborting the batch.
func (v *FactVerifier) VerifyAll(ctx context.Context, claims []model.Claim) []model.Verdict {
	verdicts := make([]model.Verdict, 0, len(claims))
	for _, claim := range claims {
		verdict, err := v.verify(ctx, claim, nil)
		if err != nil {
			verdict.Verified = false
			verdict.Error = err.Error()
		}
		verdicts = append(verdicts, verdict)
	}
	return verdicts
}

func (v *FactVerifier) verify(ctx context.Context, claim model.Claim, supporting model.Result) (model.Verdict, error) {
	verdict := model.Verdict{
		Statement:  claim.Statement,
		Expected:   claim.Value,
		Generation: v.engine.Generation(),
	}

	result, err := v.engine.Execute(ctx, claim.Query)
	if err != nil {
		return verdict, err
	}
	verdict.Generation = result.Meta().Generation
	verdict.Fuzzy = isFuzzy(result)

	observed, err := extractField(result, claim.Field, claim.Group)
	if err != nil {
		v.record(false)
		return verdict, err
	}
	verdict.Observed = observed

	if !v.matches(claim.Value, observed) {
		v.record(false)
		v.logger.Info("claim not supported",
			"statement", claim.Statement,
			"expected", claim.Value,
			"observed", model.FormatValue(observed),
			"generation", verdict.Generation)
		return verdict, utils.NewUnsupportedClaimError(fmt.Sprintf(
			"%s: expected %v, observed %s at generation %d",
			claimLabel(claim), claim.Value, model.FormatValue(observed), verdict.Generation))
	}

	if supporting != nil {
		if err := v.checkSupporting(claim, supporting, observed, verdict.Generation); err != nil {
			v.record(false)
			return verdict, err
		}
	}

	verdict.Verified = true
	v.record(true)
	return verdict, nil
}

func (v *FactVerifier) checkSupporting(claim model.Claim, supporting model.Result, observed any, generation uint64) error {
	if got := supporting.Meta().Generation; got != generation {
		return utils.NewUnsupportedClaimError(fmt.Sprintf(
			"%s: supporting result is from generation %d, current is %d", claimLabel(claim), got, generation))
	}
	value, err := extractField(supporting, claim.Field, claim.Group)
	if err != nil {
		return err
	}
	if !v.matches(observed, value) {
		return utils.NewUnsupportedClaimError(fmt.Sprintf(
			"%s: supporting result yields %s, current data yields %s",
			claimLabel(claim), model.FormatValue(value), model.FormatValue(observed)))
	}
	return nil
}

func (v *FactVerifier) record(verified bool) {
	v.metrics.RecordClaim(verified)
}

// matches compares numbers within the tolerance and everything else by
// normalized text.
func (v *FactVerifier) matches(expected, observed any) bool {
	if expected == nil || observed == nil {
		return expected == nil && observed == nil
	}
	if ed, ok := toDecimal(expected); ok {
		if od, ok := toDecimal(observed); ok {
			return ed.Sub(od).Abs().LessThanOrEqual(v.tolerance)
		}
	}
	return index.NormalizeKey(formatClaimValue(expected)) == index.NormalizeKey(model.FormatValue(observed))
}

func claimLabel(claim model.Claim) string {
	if claim.Statement != "" {
		return strconv.Quote(claim.Statement)
	}
	return claim.Query.Operation
}

func isFuzzy(r model.Result) bool {
	switch v := r.(type) {
	case *model.LookupResult:
		return v.Fuzzy
	case *model.CustomerOrdersResult:
		return v.Fuzzy
	}
	return false
}

// extractField reads the claimed figure out of a result. An empty field
// means the primary value of the result.
func extractField(r model.Result, field, group string) (any, error) {
	field = strings.ToLower(strings.TrimSpace(field))
	if field == "" {
		field = model.ClaimFieldValue
		if group != "" {
			field = model.ClaimFieldGroup
		}
	}
	unsupported := func() error {
		return utils.NewInvalidQueryError(fmt.Sprintf("field %q is not available on %s results", field, r.Meta().Operation))
	}

	if strings.HasPrefix(field, model.ClaimFieldRowCount+".") {
		return rowField(r, field)
	}

	switch v := r.(type) {
	case *model.AggregateResult:
		switch field {
		case model.ClaimFieldValue:
			if v.Groups != nil {
				return nil, utils.NewInvalidQueryError("grouped aggregate needs a group")
			}
			return v.Value, nil
		case model.ClaimFieldGroup:
			if v.Groups == nil {
				return nil, utils.NewInvalidQueryError("aggregate is not grouped")
			}
			value, ok := v.Groups[group]
			if !ok {
				return nil, utils.NewUnsupportedClaimError(fmt.Sprintf("group %q has no rows", group))
			}
			return value, nil
		case model.ClaimFieldMatchedRows:
			return int64(v.MatchedRows), nil
		}
	case *model.PageResult:
		switch field {
		case model.ClaimFieldTotalCount, model.ClaimFieldValue:
			return int64(v.TotalCount), nil
		case model.ClaimFieldTotalPages:
			return int64(v.TotalPages), nil
		case model.ClaimFieldRowCount:
			return int64(len(v.Rows)), nil
		}
	case *model.LookupResult:
		switch field {
		case model.ClaimFieldValue, model.ClaimFieldRowCount:
			return int64(len(v.Rows)), nil
		}
	case *model.RowsResult:
		switch field {
		case model.ClaimFieldValue, model.ClaimFieldRowCount:
			return int64(len(v.Rows)), nil
		}
	case *model.CustomerOrdersResult:
		switch field {
		case model.ClaimFieldCustomers:
			return int64(len(v.Customers)), nil
		case model.ClaimFieldValue, model.ClaimFieldOrders:
			var n int64
			for _, c := range v.Customers {
				n += int64(len(c.Orders))
			}
			return n, nil
		}
	}
	return nil, unsupported()
}

// rowField resolves rows.<index>.<column>
func rowField(r model.Result, field string) (any, error) {
	parts := strings.SplitN(field, ".", 3)
	if len(parts) != 3 || parts[2] == "" {
		return nil, utils.NewInvalidQueryError(fmt.Sprintf("field %q must have the form rows.<index>.<column>", field))
	}
	i, err := strconv.Atoi(parts[1])
	if err != nil || i < 0 {
		return nil, utils.NewInvalidQueryError(fmt.Sprintf("invalid row index in field %q", field))
	}

	var rows []model.Row
	switch v := r.(type) {
	case *model.PageResult:
		rows = v.Rows
	case *model.LookupResult:
		rows = v.Rows
	case *model.RowsResult:
		rows = v.Rows
	default:
		return nil, utils.NewInvalidQueryError(fmt.Sprintf("field %q is not available on %s results", field, r.Meta().Operation))
	}
	if i >= len(rows) {
		return nil, utils.NewUnsupportedClaimError(fmt.Sprintf("result has %d rows, claim refers to row %d", len(rows), i))
	}
	value, ok := rows[i][parts[2]]
	if !ok {
		return nil, utils.NewInvalidQueryError(fmt.Sprintf("unknown column %q", parts[2]))
	}
	return value, nil
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case int64:
		return decimal.NewFromInt(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case float64:
		return decimal.NewFromFloat(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	}
	return decimal.Zero, false
}

// formatClaimValue renders a claimed value the way FormatValue renders data
func formatClaimValue(v any) string {
	switch val := v.(type) {
	case float64:
		return decimal.NewFromFloat(val).String()
	}
	return model.FormatValue(v)
}

// IsUnsupported reports whether err rejects a claim rather than a query
func IsUnsupported(err error) bool {
	return errors.Is(err, utils.ErrUnsupportedClaim)
}
