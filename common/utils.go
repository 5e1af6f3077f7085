package common

import "math/bits"

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check for non-zero status
//
// Returns:
//   - T: the first non-zero value from the input, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// NextPowerOfTwo returns the smallest power of two greater than or equal to n.
// Zero and negative inputs return 0; results that would overflow return 0 and false.
//
// Parameters:
//   - n: the minimum value
//
// Returns:
//   - int: the power of two
//   - bool: false if the result does not fit in an int
func NextPowerOfTwo(n int) (int, bool) {
	if n <= 0 {
		return 0, true
	}
	shift := bits.Len(uint(n - 1))
	if shift >= bits.UintSize-1 {
		return 0, false
	}
	return 1 << shift, true
}

// CeilDiv returns ceil(a / b) for positive b.
func CeilDiv(a, b int) int {
	return (a + b - 1) / b
}
