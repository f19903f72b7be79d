package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGradePoints(t *testing.T) {
	cases := []struct {
		value  string
		points float64
	}{
		{"A+", 4.0},
		{"A", 4.0},
		{"A-", 3.7},
		{"B+", 3.3},
		{"B", 3.0},
		{"B-", 2.7},
		{"C+", 2.3},
		{"C", 2.0},
		{"C-", 1.7},
		{"D+", 1.3},
		{"D", 1.0},
		{"F", 0.0},
		{"PASS", 0.0},
		{"", 0.0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.points, GradePoints(tc.value), "value %q", tc.value)
	}
}
