package utils

// Max returns the larger of two ordered values.
func Max[T int | int64 | float64](a, b T) T {
	if a > b {
		return a
	}
	return b
}
