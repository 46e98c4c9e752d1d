// Package intutils provides utilities for working with ints
package intutils

// Min returns the minimum of a list of ints
func Min(ints ...int) int {
	min := ints[0]
	for _, v := range ints[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

// Max returns the maximum of a list of ints
func Max(ints ...int) int {
	max := ints[0]
	for _, v := range ints[1:] {
		if v > max {
			max = v
		}
	}
	return max
}
