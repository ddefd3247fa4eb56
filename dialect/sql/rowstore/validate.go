package rowstore

import (
	"fmt"
	"strings"

	"ariga.io/atlas/sql/schema"
)

// ValidationError reports an existing column that cannot hold the values
// a tracking column needs.
type ValidationError struct {
	Table  string
	Column string
	Have   string
	Want   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s.%s: column type %s cannot hold %s values", e.Table, e.Column, e.Have, e.Want)
}

// ValidationErrors is returned by Migrate when existing columns are
// incompatible. Nothing is applied in that case.
type ValidationErrors []*ValidationError

func (es ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("rowstore: incompatible tracking columns:")
	for _, e := range es {
		sb.WriteString("\n  - ")
		sb.WriteString(e.Error())
	}
	return sb.String()
}

// validateColumn compares an existing column with the desired one. Row
// accessors read booleans from integers and timestamps from text, so those
// representations are accepted.
func validateColumn(table string, have, want *schema.Column) *ValidationError {
	if have.Type == nil || want.Type == nil {
		return nil
	}
	ht, wt := have.Type.Type, want.Type.Type
	ok := true
	switch wt.(type) {
	case *schema.IntegerType:
		switch ht.(type) {
		case *schema.IntegerType, *schema.DecimalType:
		default:
			ok = false
		}
	case *schema.BoolType:
		switch ht.(type) {
		case *schema.BoolType, *schema.IntegerType:
		default:
			ok = false
		}
	case *schema.TimeType:
		switch ht.(type) {
		case *schema.TimeType, *schema.StringType:
		default:
			ok = false
		}
	case *schema.StringType:
		_, ok = ht.(*schema.StringType)
	}
	if ok {
		return nil
	}
	return &ValidationError{
		Table:  table,
		Column: have.Name,
		Have:   typeName(ht),
		Want:   typeName(wt),
	}
}

func typeName(t schema.Type) string {
	switch t := t.(type) {
	case *schema.IntegerType:
		return "integer"
	case *schema.DecimalType:
		return "decimal"
	case *schema.BoolType:
		return "boolean"
	case *schema.TimeType:
		return "timestamp"
	case *schema.StringType:
		return "string"
	case *schema.UnsupportedType:
		return t.T
	default:
		return fmt.Sprintf("%T", t)
	}
}
