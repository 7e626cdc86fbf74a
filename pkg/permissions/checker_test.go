package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name     string
		perms    []string
		required string
		want     bool
	}{
		{"no requirement", nil, "", true},
		{"full access", []string{"*"}, PayrollFinalize, true},
		{"exact", []string{PayrollRead}, PayrollRead, true},
		{"resource wildcard covers nested", []string{"payroll.*"}, PayrollSettle, true},
		{"nested wildcard", []string{"payroll.payments.*"}, PayrollFinalize, true},
		{"nested wildcard does not leak upward", []string{"payroll.payments.*"}, PayrollSubmit, false},
		{"prefix is not a wildcard", []string{"payroll"}, PayrollRead, false},
		{"missing", []string{PayrollRead}, PayrollGenerate, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasPermission(tt.perms, tt.required))
		})
	}
}

