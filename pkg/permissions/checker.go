// Package permissions checks operator permissions carried in access tokens
// against the permission a route requires, with support for wildcards.
//
// Permission Format:
//   - "*" - Full access (all permissions)
//   - "resource.*" - All actions on a resource (e.g., "payroll.*")
//   - "resource.action" - Specific action (e.g., "payroll.read")
//   - "resource.subresource.action" - Nested permission (e.g., "payroll.payments.finalize")
package permissions

import (
	"strings"
)

// Payroll permissions
const (
	PayrollRead     = "payroll.read"
	PayrollGenerate = "payroll.generate"
	PayrollSubmit   = "payroll.submit"
	PayrollSettle   = "payroll.payments.settle"
	PayrollFinalize = "payroll.payments.finalize"
	PayrollSkip     = "payroll.skip"
	PayrollAmend    = "payroll.payments.amend"
)

// HasPermission checks if the user's permissions include the required permission.
// Supports wildcard matching:
//   - "*" matches everything
//   - "payroll.*" matches "payroll.read", "payroll.payments.settle", etc.
//   - Exact match for specific permissions
func HasPermission(userPerms []string, required string) bool {
	if required == "" {
		return true
	}

	for _, p := range userPerms {
		if p == "*" || p == required {
			return true
		}
		if strings.HasSuffix(p, ".*") {
			prefix := strings.TrimSuffix(p, ".*")
			if strings.HasPrefix(required, prefix+".") {
				return true
			}
		}
	}
	return false
}

