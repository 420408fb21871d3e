package metadata

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-gateway/internal/model"
)

func customersSchema(t *testing.T) *TableSchema {
	t.Helper()
	schema, ok := DefaultCatalog().Table(model.TableCustomers)
	require.True(t, ok)
	return schema
}

func TestCoerceCustomers(t *testing.T) {
	raw := &model.RawTable{
		Kind:   model.TableCustomers,
		Header: []string{"\ufeffCustomer ID", "Name", "Email", "City", "State", "Zip", "Ignored"},
		Records: [][]string{
			{"C1", " Melissa Wang ", "mw@example.com", "LA", "CA", "90001", "x"},
			{"C2", "John Smith", "N/A", "NY", "NY", "", "y"},
		},
	}

	table, report := Coerce(raw, customersSchema(t))
	require.True(t, report.Passed, "violations: %v", report.Violations)
	require.NotNil(t, table)
	assert.Equal(t, 2, report.RowCount)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, "Melissa Wang", table.Rows[0]["name"])
	assert.Nil(t, table.Rows[1]["email"])
	assert.Nil(t, table.Rows[1]["zip"])
	assert.NotContains(t, table.Rows[0], "Ignored")
}

func TestValidateCollectsAllViolations(t *testing.T) {
	schema, ok := DefaultCatalog().Table(model.TableOrders)
	require.True(t, ok)

	raw := &model.RawTable{
		Kind:   model.TableOrders,
		Header: []string{"order_id", "customer_id", "product_id", "order_date", "status", "quantity"},
		Records: [][]string{
			{"O1", "C1", "P1", "2024-01-05", "Delivered", "2"},
			{"O2", "", "P1", "not-a-date", "lost", "two"},
			{"O1", "C1", "P2", "01/07/2024", "pending", "1"},
		},
	}

	report := Validate(raw, schema)
	assert.False(t, report.Passed)
	assert.Equal(t, 1, report.Count(model.ViolationMissingColumn))
	assert.Equal(t, 1, report.Count(model.ViolationNullViolation))
	assert.Equal(t, 3, report.Count(model.ViolationTypeMismatch))
	assert.Equal(t, 1, report.Count(model.ViolationDuplicateKey))

	for _, v := range report.Violations {
		if v.Kind == model.ViolationMissingColumn {
			assert.Equal(t, "total_amount", v.Column)
			assert.Equal(t, -1, v.Row)
		}
	}
}

func TestValidateMissingHeader(t *testing.T) {
	report := Validate(&model.RawTable{Kind: model.TableCustomers}, customersSchema(t))
	require.Len(t, report.Violations, 1)
	assert.Equal(t, model.ViolationMissingHeader, report.Violations[0].Kind)
}

func TestValidateEmptyRowsPass(t *testing.T) {
	raw := &model.RawTable{Header: []string{"customer_id", "name", "email", "city", "state", "zip"}}
	table, report := Coerce(raw, customersSchema(t))
	assert.True(t, report.Passed)
	require.NotNil(t, table)
	assert.Equal(t, 0, table.Len())
}

func TestLegacyHeaderAliases(t *testing.T) {
	schema, ok := DefaultCatalog().Table(model.TableOrders)
	require.True(t, ok)

	raw := &model.RawTable{
		Header:  []string{"IID", "CID", "item_id", "INDATE", "status", "qty", "SUBTOTAL"},
		Records: [][]string{{"1001", "C1", "P1", "2024/03/09", "SHIPPED", "3", "$1,234.50"}},
	}

	table, report := Coerce(raw, schema)
	require.True(t, report.Passed, "violations: %v", report.Violations)
	row := table.Rows[0]
	assert.Equal(t, "1001", row["order_id"])
	assert.Equal(t, "shipped", row["status"])
	assert.Equal(t, int64(3), row["quantity"])
	assert.True(t, decimal.RequireFromString("1234.50").Equal(row["total_amount"].(decimal.Decimal)))
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), row["order_date"])
}

func TestParsers(t *testing.T) {
	n, err := ParseInteger("1,200")
	require.NoError(t, err)
	assert.Equal(t, int64(1200), n)

	_, err = ParseInteger("1.5")
	assert.Error(t, err)

	for _, huge := range []string{"1e100000000", "0E999999999", "9223372036854775808"} {
		_, err = ParseInteger(huge)
		assert.Error(t, err, huge)
	}
	for _, huge := range []string{"1e100000000", "1e-100000000"} {
		_, err = ParseDecimal(huge)
		assert.Error(t, err, huge)
	}
	d, err := ParseDecimal("1.5e3")
	require.NoError(t, err)
	assert.Equal(t, "1500", d.String())

	d, err = ParseDecimal("-$12.30")
	require.NoError(t, err)
	assert.Equal(t, "-12.3", d.String())

	date, err := ParseDate("2024-02-01T15:04:05Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), date)

	_, err = ParseEnum("unknown", OrderStatuses)
	assert.Error(t, err)
}

func TestCoerceLiteral(t *testing.T) {
	schema, _ := DefaultCatalog().Table(model.TableOrders)
	qty, _ := schema.Column("quantity")
	amount, _ := schema.Column("total_amount")
	status, _ := schema.Column("status")

	v, err := CoerceLiteral(float64(4), qty)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)

	v, err = CoerceLiteral("99.5", amount)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("99.5").Equal(v.(decimal.Decimal)))

	v, err = CoerceLiteral("Delivered", status)
	require.NoError(t, err)
	assert.Equal(t, "delivered", v)

	_, err = CoerceLiteral(1.5, qty)
	assert.Error(t, err)

	_, err = CoerceLiteral(1e300, qty)
	assert.Error(t, err)
}
