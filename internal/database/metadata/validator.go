package metadata

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"insight-gateway/internal/model"
)

// SchemaCheck is the Check name of reports produced by the validator
const SchemaCheck = "schema"

// DefaultNullTokens are cell values treated as null
var DefaultNullTokens = []string{"", "NULL", "null", "N/A", "n/a"}

// MaxDecimalExponent bounds the base-10 exponent of parsed decimals
const MaxDecimalExponent = 32

// DateLayouts are the accepted input layouts for date columns, tried in order
var DateLayouts = []string{model.DateLayout, "01/02/2006", "2006/01/02", time.RFC3339}

var nullTokens = func() map[string]struct{} {
	m := make(map[string]struct{}, len(DefaultNullTokens))
	for _, t := range DefaultNullTokens {
		m[t] = struct{}{}
	}
	return m
}()

// Validate checks a raw table against its schema and reports every violation
func Validate(raw *model.RawTable, schema *TableSchema) model.ValidationReport {
	_, report := Coerce(raw, schema)
	return report
}

// Coerce validates a raw table and converts it into typed rows.
// The table is nil unless the report passed.
func Coerce(raw *model.RawTable, schema *TableSchema) (*model.Table, model.ValidationReport) {
	report := model.NewValidationReport(SchemaCheck, schema.Kind)
	if raw == nil || len(raw.Header) == 0 {
		report.Add(model.Violation{
			Kind:    model.ViolationMissingHeader,
			Table:   schema.Kind,
			Row:     -1,
			Message: "table has no header row",
		})
		return nil, report
	}
	report.RowCount = len(raw.Records)

	positions := schema.ResolveHeader(raw.Header)
	for _, col := range schema.Columns {
		if _, ok := positions[col.Name]; !ok {
			report.Add(model.Violation{
				Kind:    model.ViolationMissingColumn,
				Table:   schema.Kind,
				Column:  col.Name,
				Row:     -1,
				Message: fmt.Sprintf("column %q not found in header", col.Name),
			})
		}
	}

	rows := make([]model.Row, 0, len(raw.Records))
	seenKeys := make(map[string]int)

	for i, record := range raw.Records {
		row := make(model.Row, len(schema.Columns))
		for _, col := range schema.Columns {
			pos, ok := positions[col.Name]
			if !ok {
				continue
			}

			var cell string
			if pos < len(record) {
				cell = strings.TrimSpace(record[pos])
			}

			if isNull(cell) {
				if !col.Nullable {
					report.Add(model.Violation{
						Kind:    model.ViolationNullViolation,
						Table:   schema.Kind,
						Column:  col.Name,
						Row:     i,
						Value:   cell,
						Message: "null value in non-nullable column",
					})
				}
				row[col.Name] = nil
				continue
			}

			value, err := coerceValue(cell, &col)
			if err != nil {
				report.Add(model.Violation{
					Kind:    model.ViolationTypeMismatch,
					Table:   schema.Kind,
					Column:  col.Name,
					Row:     i,
					Value:   cell,
					Message: err.Error(),
				})
				continue
			}
			row[col.Name] = value
		}

		if schema.PrimaryKey != "" {
			if pk, ok := row[schema.PrimaryKey].(string); ok {
				if first, dup := seenKeys[pk]; dup {
					report.Add(model.Violation{
						Kind:    model.ViolationDuplicateKey,
						Table:   schema.Kind,
						Column:  schema.PrimaryKey,
						Row:     i,
						Value:   pk,
						Message: fmt.Sprintf("duplicate of row %d", first),
					})
				} else {
					seenKeys[pk] = i
				}
			}
		}
		rows = append(rows, row)
	}

	if !report.Passed {
		return nil, report
	}
	return &model.Table{
		Kind:    schema.Kind,
		Source:  raw.Source,
		Columns: schema.ColumnNames(),
		Rows:    rows,
	}, report
}

func isNull(cell string) bool {
	_, ok := nullTokens[cell]
	return ok
}

// coerceValue converts a non-null trimmed cell to the column's Go type
func coerceValue(cell string, col *ColumnSchema) (any, error) {
	switch col.Type {
	case model.ColumnTypeString:
		return cell, nil
	case model.ColumnTypeInteger:
		return ParseInteger(cell)
	case model.ColumnTypeDecimal:
		return ParseDecimal(cell)
	case model.ColumnTypeDate:
		return ParseDate(cell)
	case model.ColumnTypeEnum:
		return ParseEnum(cell, col.EnumValues)
	default:
		return nil, fmt.Errorf("unknown column type %q", col.Type)
	}
}

// ParseInteger accepts thousands separators and integral decimals such as "12.0"
func ParseInteger(s string) (int64, error) {
	if strings.ContainsAny(s, "eE") {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil || !d.IsInteger() {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	if !d.BigInt().IsInt64() {
		return 0, fmt.Errorf("%q overflows int64", s)
	}
	return d.IntPart(), nil
}

// ParseDecimal accepts a leading currency sign and thousands separators
func ParseDecimal(s string) (decimal.Decimal, error) {
	clean := strings.ReplaceAll(s, ",", "")
	negative := strings.HasPrefix(clean, "-")
	clean = strings.TrimPrefix(clean, "-")
	clean = strings.TrimSpace(strings.TrimPrefix(clean, "$"))
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a decimal", s)
	}
	if exp := d.Exponent(); exp > MaxDecimalExponent || exp < -MaxDecimalExponent {
		return decimal.Zero, fmt.Errorf("%q is out of range", s)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseDate parses any of DateLayouts into a UTC midnight time
func ParseDate(s string) (time.Time, error) {
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a date", s)
}

// ParseEnum returns the canonical lower-case member matching s
func ParseEnum(s string, members []string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for _, m := range members {
		if v == m {
			return m, nil
		}
	}
	return "", fmt.Errorf("%q is not one of %s", s, strings.Join(members, ", "))
}

// CoerceLiteral converts a query literal to the column's type so that it can be
// compared with stored values. Strings and numbers from JSON are both accepted.
func CoerceLiteral(v any, col *ColumnSchema) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return coerceValue(strings.TrimSpace(val), col)
	case float64:
		if col.Type == model.ColumnTypeString || col.Type == model.ColumnTypeEnum {
			return coerceValue(decimal.NewFromFloat(val).String(), col)
		}
		d := decimal.NewFromFloat(val)
		if col.Type == model.ColumnTypeInteger {
			if !d.IsInteger() {
				return nil, fmt.Errorf("%v is not an integer", val)
			}
			if val >= math.MaxInt64 || val < math.MinInt64 {
				return nil, fmt.Errorf("%v overflows int64", val)
			}
			return d.IntPart(), nil
		}
		if col.Type == model.ColumnTypeDecimal {
			return d, nil
		}
	case int:
		return CoerceLiteral(float64(val), col)
	case int64:
		if col.Type == model.ColumnTypeInteger {
			return val, nil
		}
		return coerceValue(decimal.NewFromInt(val).String(), col)
	case decimal.Decimal:
		if col.Type == model.ColumnTypeDecimal {
			return val, nil
		}
		return coerceValue(val.String(), col)
	case time.Time:
		if col.Type == model.ColumnTypeDate {
			y, m, d := val.UTC().Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return nil, fmt.Errorf("cannot compare %v with %s column %s", v, col.Type, col.Name)
}
