package models

import (
	"math"
	"reflect"
)

// Matrix is a rectangular block of scalar cells (string, number or bool) as
// exchanged with the remote store.
type Matrix [][]interface{}

// Clone copies the rows so that callers cannot mutate engine-held data.
func (m Matrix) Clone() Matrix {
	if m == nil {
		return nil
	}
	out := make(Matrix, len(m))
	for i, row := range m {
		if row == nil {
			continue
		}
		out[i] = append([]interface{}(nil), row...)
	}
	return out
}

// Equal reports whether both matrices have the same shape and the same cell
// value at every position. Numeric cells compare by value regardless of Go type.
func (m Matrix) Equal(other Matrix) bool {
	if len(m) != len(other) {
		return false
	}
	for i := range m {
		if len(m[i]) != len(other[i]) {
			return false
		}
		for j := range m[i] {
			if !CellsEqual(m[i][j], other[i][j]) {
				return false
			}
		}
	}
	return true
}

// CellsEqual compares two scalar cells.
func CellsEqual(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return false
		}
		if math.IsNaN(fa) && math.IsNaN(fb) {
			return true
		}
		return fa == fb
	}
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Rows returns the row count and the widest row.
func (m Matrix) Rows() (rows, cols int) {
	for _, row := range m {
		if len(row) > cols {
			cols = len(row)
		}
	}
	return len(m), cols
}
