package adapter

import (
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNormalizePadsShortColumns(t *testing.T) {
	cols, rows := Normalize(discardLogger(), 1, []string{"a"}, [][]any{{1, 2, 3}})
	if len(cols) != 3 {
		t.Fatalf("expected 3 columns, got %v", cols)
	}
	if cols[0] != "a" || cols[1] != "column_2" || cols[2] != "column_3" {
		t.Errorf("unexpected column names: %v", cols)
	}
	if len(rows[0]) != 3 {
		t.Errorf("rows should be untouched: %v", rows)
	}
}

func TestNormalizePadsNarrowRowsRatherThanDroppingColumns(t *testing.T) {
	cols, rows := Normalize(discardLogger(), 1, []string{"a", "b", "c"}, [][]any{{1}})
	if len(cols) != 3 || cols[0] != "a" || cols[1] != "b" || cols[2] != "c" {
		t.Fatalf("expected all 3 real columns kept, got %v", cols)
	}
	if len(rows[0]) != 3 || rows[0][0] != 1 || rows[0][1] != nil || rows[0][2] != nil {
		t.Errorf("expected row padded with nil to column count, got %v", rows[0])
	}
}

func TestNormalizeRenamesNullColumnName(t *testing.T) {
	cols, _ := Normalize(discardLogger(), 1, []string{"NULL", "null", "x"}, [][]any{{1, 2, 3}})
	if cols[0] != "expr_1" || cols[1] != "expr_2" {
		t.Errorf("expected NULL columns renamed to expr_N, got %v", cols)
	}
}

func TestNormalizeRenamesEmptyColumnName(t *testing.T) {
	cols, _ := Normalize(discardLogger(), 1, []string{"", "  ", "x"}, [][]any{{1, 2, 3}})
	if cols[0] != "column_1" || cols[1] != "column_2" {
		t.Errorf("expected empty columns renamed to column_N, got %v", cols)
	}
}

func TestNormalizeDedupesNames(t *testing.T) {
	cols, _ := Normalize(discardLogger(), 1, []string{"x", "x", "X"}, [][]any{{1, 2, 3}})
	if cols[0] != "x" || cols[1] != "x_2" || cols[2] != "X_3" {
		t.Errorf("expected disambiguated names, got %v", cols)
	}
}

func TestNormalizeNoAdjustmentNeeded(t *testing.T) {
	cols, rows := Normalize(discardLogger(), 1, []string{"a", "b"}, [][]any{{1, 2}})
	if cols[0] != "a" || cols[1] != "b" {
		t.Errorf("expected unchanged columns, got %v", cols)
	}
	if len(rows) != 1 {
		t.Errorf("expected unchanged rows, got %v", rows)
	}
}
