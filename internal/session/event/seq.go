package event

import (
	"math/big"
	"strings"
)

// CompareSeq is the sole ordering authority for sequence tokens.
//
// Tokens are opaque decimal strings of unbounded precision assigned by the
// server. A missing token compares as less than any present token; two
// missing tokens are equal. Comparison is exact for integers of arbitrary
// length; if either token fails to parse as an integer the comparison falls
// back to plain string ordering, which is defensive and not expected in
// normal operation.
func CompareSeq(a, b string) int {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	case b == "":
		return 1
	}

	ia, okA := new(big.Int).SetString(a, 10)
	ib, okB := new(big.Int).SetString(b, 10)
	if !okA || !okB {
		return strings.Compare(a, b)
	}
	return ia.Cmp(ib)
}
