// Package approval decides the approval status of a new transaction from the
// server's own runtime environment, never from what the request claims.
package approval

import "payment-service/internal/domain"

// Decide returns the approval status for a new transaction and the
// environment tag to record on it.
//
// A non-production server always yields pending and tags the transaction as
// development, whatever environment the client asserted; a request can not
// talk a staging deployment into auto-provisioning. On production the
// manual-approval flag forces pending, otherwise the transaction is
// auto-approved.
func Decide(serverEnv, requestedEnv domain.Environment, manualApproval bool) (domain.ApprovalStatus, domain.Environment) {
	if serverEnv != domain.EnvProduction {
		return domain.ApprovalPending, domain.EnvDevelopment
	}
	if manualApproval {
		return domain.ApprovalPending, requestedEnv
	}
	return domain.ApprovalAutoApproved, requestedEnv
}
