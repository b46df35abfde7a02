package service

import "github.com/Sumatoshi-tech/codemerge/pkg/alg/lcs"

// TableCells exposes tableCells for tests.
func TableCells(script lcs.Script, skip bool) int64 {
	return tableCells(script, skip)
}

// Consistent exposes consistent for tests.
func Consistent(script lcs.Script, left, right []string) bool {
	return consistent(script, left, right)
}
