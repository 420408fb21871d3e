package model

import (
	"fmt"
	"time"
)

// ViolationKind classifies a validation failure
type ViolationKind string

const (
	ViolationMissingHeader     ViolationKind = "missing_header"
	ViolationMissingColumn     ViolationKind = "missing_column"
	ViolationTypeMismatch      ViolationKind = "type_mismatch"
	ViolationNullViolation     ViolationKind = "null_violation"
	ViolationDuplicateKey      ViolationKind = "duplicate_key"
	ViolationDanglingReference ViolationKind = "dangling_reference"
)

// Violation is one specific problem found in a table.
// Row is the 0-based data row position, -1 for table-level violations.
type Violation struct {
	Kind     ViolationKind `json:"kind" yaml:"kind"`
	Table    TableKind     `json:"table" yaml:"table"`
	Column   string        `json:"column,omitempty" yaml:"column,omitempty"`
	Row      int           `json:"row" yaml:"row"`
	Value    string        `json:"value,omitempty" yaml:"value,omitempty"`
	RefTable TableKind     `json:"refTable,omitempty" yaml:"ref_table,omitempty"`
	Message  string        `json:"message" yaml:"message"`
}

func (v Violation) String() string {
	if v.Row >= 0 {
		return fmt.Sprintf("%s: %s.%s at row %d: %s", v.Kind, v.Table, v.Column, v.Row, v.Message)
	}
	return fmt.Sprintf("%s: %s.%s: %s", v.Kind, v.Table, v.Column, v.Message)
}

// ValidationReport is the outcome of schema validation or a cross-reference
// check. Violations are never dropped; Passed is true only when there are none.
type ValidationReport struct {
	Check      string      `json:"check" yaml:"check"`
	Table      TableKind   `json:"table,omitempty" yaml:"table,omitempty"`
	Passed     bool        `json:"passed" yaml:"passed"`
	RowCount   int         `json:"rowCount" yaml:"row_count"`
	Violations []Violation `json:"violations" yaml:"violations"`
}

// NewValidationReport creates a passing report that violations can be added to
func NewValidationReport(check string, table TableKind) ValidationReport {
	return ValidationReport{
		Check:      check,
		Table:      table,
		Passed:     true,
		Violations: []Violation{},
	}
}

// Add records a violation and marks the report failed
func (r *ValidationReport) Add(v Violation) {
	r.Violations = append(r.Violations, v)
	r.Passed = false
}

// Count returns the number of violations of the given kind
func (r ValidationReport) Count(kind ViolationKind) int {
	n := 0
	for _, v := range r.Violations {
		if v.Kind == kind {
			n++
		}
	}
	return n
}

// RefreshResult describes the outcome of publishing a new data generation
type RefreshResult struct {
	RefreshID          string             `json:"refreshId"`
	Accepted           bool               `json:"accepted"`
	Generation         uint64             `json:"generation"`
	PreviousGeneration uint64             `json:"previousGeneration"`
	Reports            []ValidationReport `json:"reports"`
	RowCounts          map[TableKind]int  `json:"rowCounts,omitempty"`
	DurationMs         int64              `json:"durationMs"`
	CompletedAt        time.Time          `json:"completedAt"`
}

// Violations flattens violations across all reports
func (r *RefreshResult) Violations() []Violation {
	var out []Violation
	for _, rep := range r.Reports {
		out = append(out, rep.Violations...)
	}
	return out
}
