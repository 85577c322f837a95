// Package adapter implements the result adapter (spec §4.8): every backend
// reply and every synthesized reply passes through Normalize before
// reaching the wire codec, so the arity and naming invariants in spec §3's
// PipelineResult contract always hold.
package adapter

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Normalize enforces the result-shape invariants: column/row arity, no
// empty names, no literal "NULL" names, no duplicate names. Every
// adjustment is logged as a warning but never fails the statement (spec
// §4.8: "Warnings emitted ... but never fatal").
func Normalize(logger *slog.Logger, statementID int64, columns []string, rows [][]any) ([]string, [][]any) {
	cols := append([]string{}, columns...)

	if len(rows) > 0 {
		cols, rows = fixArity(logger, statementID, cols, rows)
	}
	cols = fixEmptyNames(logger, statementID, cols)
	cols = fixNullNames(logger, statementID, cols)
	cols = dedupeNames(logger, statementID, cols)

	return cols, rows
}

// fixArity reconciles column count against row width (the widest row).
// Nothing is ever truncated: when a row is wider than the column list,
// `column_N` names are appended; when rows are narrower than the column
// count (e.g. a synthesized SHOW DATABASES reply standing in for a wider
// SELECT NULL,NULL,NULL,SCHEMA_NAME projection), every shorter row is
// padded with nil up to the column count instead of dropping columns down
// to row width.
func fixArity(logger *slog.Logger, statementID int64, cols []string, rows [][]any) ([]string, [][]any) {
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	switch {
	case width == len(cols):
		return cols, rows
	case width > len(cols):
		added := width - len(cols)
		for i := len(cols); i < width; i++ {
			cols = append(cols, fmt.Sprintf("column_%d", i+1))
		}
		logger.Warn("result adapter padded column names to match row width",
			"statement_id", statementID, "added", added)
		return cols, rows
	default:
		padded := make([][]any, len(rows))
		for i, row := range rows {
			if len(row) >= len(cols) {
				padded[i] = row
				continue
			}
			out := make([]any, len(cols))
			copy(out, row)
			padded[i] = out
		}
		logger.Warn("result adapter padded rows to match column count",
			"statement_id", statementID, "from", width, "to", len(cols))
		return cols, padded
	}
}

func fixEmptyNames(logger *slog.Logger, statementID int64, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		if strings.TrimSpace(c) == "" {
			out[i] = fmt.Sprintf("column_%d", i+1)
			logger.Warn("result adapter renamed empty column name",
				"statement_id", statementID, "position", i+1, "new_name", out[i])
			continue
		}
		out[i] = c
	}
	return out
}

func fixNullNames(logger *slog.Logger, statementID int64, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		if strings.EqualFold(c, "NULL") {
			out[i] = fmt.Sprintf("expr_%d", i+1)
			logger.Warn("result adapter renamed NULL column name",
				"statement_id", statementID, "position", i+1, "new_name", out[i])
			continue
		}
		out[i] = c
	}
	return out
}

func dedupeNames(logger *slog.Logger, statementID int64, cols []string) []string {
	seen := make(map[string]int, len(cols))
	out := make([]string, len(cols))
	for i, c := range cols {
		count := seen[strings.ToLower(c)]
		seen[strings.ToLower(c)] = count + 1
		if count == 0 {
			out[i] = c
			continue
		}
		out[i] = c + "_" + strconv.Itoa(count+1)
		logger.Warn("result adapter disambiguated duplicate column name",
			"statement_id", statementID, "position", i+1, "original", c, "new_name", out[i])
	}
	return out
}
