package index

import (
	"fmt"

	"insight-gateway/internal/database/metadata"
	"insight-gateway/internal/model"
)

// ReferenceCheck is the Check name of cross-reference reports
const ReferenceCheck = "references"

// CheckReferences reports a dangling_reference for every foreign key value
// without a row in the referenced table. Membership is answered by the
// referenced table's unique index in set.
func CheckReferences(tables map[model.TableKind]*model.Table, set *Set, catalog *metadata.Catalog) model.ValidationReport {
	report := model.NewValidationReport(ReferenceCheck, "")

	for _, kind := range model.AllTableKinds {
		schema, ok := catalog.Table(kind)
		if !ok || len(schema.ForeignKeys) == 0 {
			continue
		}
		table, ok := tables[kind]
		if !ok {
			continue
		}
		report.RowCount += table.Len()

		for _, fk := range schema.ForeignKeys {
			ref, ok := set.Get(fk.RefIndex)
			if !ok {
				report.Add(model.Violation{
					Kind:     model.ViolationDanglingReference,
					Table:    kind,
					Column:   fk.Column,
					Row:      -1,
					RefTable: fk.RefTable,
					Message:  fmt.Sprintf("referenced index %s is not built", fk.RefIndex),
				})
				continue
			}
			for rowID, row := range table.Rows {
				value := row[fk.Column]
				if value == nil {
					continue
				}
				key := model.FormatValue(value)
				if ref.Contains(key) {
					continue
				}
				report.Add(model.Violation{
					Kind:     model.ViolationDanglingReference,
					Table:    kind,
					Column:   fk.Column,
					Row:      rowID,
					Value:    key,
					RefTable: fk.RefTable,
					Message:  fmt.Sprintf("%s %q has no row in %s", fk.Column, key, fk.RefTable),
				})
			}
		}
	}
	return report
}
