package automation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name     string
		left     any
		operator string
		right    any
		want     bool
	}{
		{"equals numbers", 21.5, "equals", 21.5, true},
		{"equals alias", true, "==", true, true},
		{"equals cross-type numeric", 5, "==", 5.0, true},
		{"not equals", "home", "not_equals", "away", true},
		{"not equals alias", 3, "!=", 3, false},
		{"greater than", 22.1, "greater_than", 22.0, true},
		{"greater than alias", 21.9, ">", 22.0, false},
		{"less than", 4.0, "less_than", 5.0, true},
		{"gte equal", 5.0, "gte", 5.0, true},
		{"gte alias", 4.9, ">=", 5.0, false},
		{"lte", 5.0, "lte", 5.0, true},
		{"lte alias", 5.1, "<=", 5.0, false},
		{"between inside", 21.0, "between", map[string]any{"min": 20.0, "max": 22.0}, true},
		{"between inclusive min", 20.0, "between", map[string]any{"min": 20.0, "max": 22.0}, true},
		{"between inclusive max", 22.0, "between", map[string]any{"min": 20.0, "max": 22.0}, true},
		{"between outside", 22.5, "between", map[string]any{"min": 20.0, "max": 22.0}, false},
		{"between malformed", 21.0, "between", "20-22", false},
		{"contains", "living-room-lamp", "contains", "room", true},
		{"contains miss", "kitchen", "contains", "room", false},
		{"in list", "night", "in", []any{"home", "night"}, true},
		{"in list miss", "away", "in", []any{"home", "night"}, false},
		{"in non-list", "home", "in", "home", false},
		{"regex match", "zone-12", "regex", `^zone-\d+$`, true},
		{"regex case-sensitive", "Zone-12", "regex", `^zone-\d+$`, false},
		{"regex embedded flags", "Zone-12", "regex", `(?i)^zone-\d+$`, true},
		{"regex invalid pattern", "zone", "regex", "([", false},
		{"numeric comparison on strings", "21.5", ">", 21.0, true},
		{"non-numeric greater", "abc", ">", 5, false},
		{"unknown operator", 1, "approximately", 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareValues(tt.left, tt.operator, tt.right))
		})
	}
}
