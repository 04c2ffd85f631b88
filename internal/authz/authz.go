// Package authz implements the declarative per-collection authorization
// matrix (C11) and its Authorize check, modeled on the tenancy kernel's
// TenantMiddleware + company-match predicate, generalized from one tenant
// gate to one gate per collection×verb. In this module Authorize gates the
// time-entry read path (adminedit.GetTimeEntry); the RPC services check role
// and company themselves and write through store methods that do not call it.
package authz

import (
	"context"

	"github.com/paintcrew/fieldtime/internal/apperr"
	"github.com/paintcrew/fieldtime/internal/audit"
	"github.com/paintcrew/fieldtime/internal/domain"
	"github.com/paintcrew/fieldtime/internal/multitenancy"
)

// recorder logs cross-tenant access denials (§8 S6) when set. Optional:
// Authorize works without it, just without the security audit trail.
var recorder *audit.Recorder

// SetRecorder wires the security audit recorder into Authorize's
// cross-company denial path. Call once at startup.
func SetRecorder(r *audit.Recorder) {
	recorder = r
}

// Verb is one of the four operations the matrix gates.
type Verb string

const (
	Read   Verb = "read"
	Create Verb = "create"
	Update Verb = "update"
	Delete Verb = "delete"
)

// Collection names exactly as §4.11 lists them.
type Collection string

const (
	Companies    Collection = "companies"
	Users        Collection = "users"
	Jobs         Collection = "jobs"
	Assignments  Collection = "assignments"
	Customers    Collection = "customers"
	Estimates    Collection = "estimates"
	Invoices     Collection = "invoices"
	TimeEntries  Collection = "timeEntries"
	ClockEvents  Collection = "clockEvents"
	Audit        Collection = "_audit"
	Backups      Collection = "_backups"
	Probes       Collection = "_probes"
	Idempotency  Collection = "idempotency"
)

// rule describes who may perform a verb on a collection. engineOnly means
// no principal-driven caller is ever allowed, regardless of role — only the
// components themselves (C4/C6/C7/C9/C12) write through store methods that
// bypass Authorize entirely, the same way the reference backend's admin SDK
// paths bypass its security rules.
type rule struct {
	anyRoleInCompany bool
	roles            []domain.Role
	selfOnly         bool // target.userId == principal.uid
	platformOnly     bool
	engineOnly       bool
	denyAll          bool
}

var matrix = map[Collection]map[Verb]rule{
	Companies: {
		Read:   {anyRoleInCompany: true},
		Create: {platformOnly: true},
		Update: {platformOnly: true},
		Delete: {platformOnly: true},
	},
	Users: {
		Read:   {selfOnly: true},
		Create: {denyAll: true},
		Update: {selfOnly: true}, // caller must additionally strip companyId/role; enforced by the caller
		Delete: {denyAll: true},
	},
	Jobs: {
		Read:   {anyRoleInCompany: true},
		Create: {roles: []domain.Role{domain.RoleAdmin, domain.RoleManager}},
		Update: {roles: []domain.Role{domain.RoleAdmin, domain.RoleManager}},
		Delete: {roles: []domain.Role{domain.RoleAdmin}},
	},
	Assignments: {
		Read:   {anyRoleInCompany: true},
		Create: {roles: []domain.Role{domain.RoleAdmin, domain.RoleManager}},
		Update: {roles: []domain.Role{domain.RoleAdmin, domain.RoleManager}},
		Delete: {roles: []domain.Role{domain.RoleAdmin, domain.RoleManager}},
	},
	Customers: {
		Read:   {anyRoleInCompany: true},
		Create: {anyRoleInCompany: true},
		Update: {anyRoleInCompany: true},
		Delete: {roles: []domain.Role{domain.RoleAdmin, domain.RoleManager}},
	},
	Estimates: {
		Read:   {anyRoleInCompany: true},
		Create: {roles: []domain.Role{domain.RoleAdmin, domain.RoleManager}},
		Update: {roles: []domain.Role{domain.RoleAdmin, domain.RoleManager}},
		Delete: {roles: []domain.Role{domain.RoleAdmin}},
	},
	Invoices: {
		Read:   {anyRoleInCompany: true},
		Create: {denyAll: true}, // engine-only via C9, bypasses Authorize
		Update: {roles: []domain.Role{domain.RoleAdmin, domain.RoleManager}},
		Delete: {roles: []domain.Role{domain.RoleAdmin}},
	},
	ClockEvents: {
		Create: {selfOnly: true},
		Read:   {anyRoleInCompany: true}, // narrowed to self or admin/manager in Authorize
		Update: {denyAll: true},
		Delete: {denyAll: true},
	},
	Audit: {
		Read:   {roles: []domain.Role{domain.RoleAdmin}},
		Create: {denyAll: true},
		Update: {denyAll: true},
		Delete: {denyAll: true},
	},
	Backups: {
		Read:   {roles: []domain.Role{domain.RoleAdmin}},
		Create: {denyAll: true},
		Update: {denyAll: true},
		Delete: {denyAll: true},
	},
	Probes: {
		Read:   {roles: []domain.Role{domain.RoleAdmin}},
		Create: {denyAll: true},
		Update: {denyAll: true},
		Delete: {denyAll: true},
	},
	Idempotency: {
		Read:   {denyAll: true},
		Create: {engineOnly: true},
		Update: {engineOnly: true},
		Delete: {engineOnly: true},
	},
}

// Invariant immutable field sets, kept alongside the matrix so a single
// package owns both "who" and "which fields" for write checks.
var (
	UserImmutableFields    = map[string]bool{"companyId": true, "role": true}
	InvoiceImmutableFields = map[string]bool{"companyId": true, "createdAt": true, "pdfPath": true, "pdfGeneratedAt": true, "items": true, "amount": true}
)

// Authorize gates a single collection×verb call. targetCompanyID is the
// company the target document belongs to (or would belong to, on Create);
// targetUserID is the document's owning user, used for "self" rules.
func Authorize(ctx context.Context, collection Collection, verb Verb, targetCompanyID, targetUserID string) error {
	principal, err := multitenancy.RequirePrincipal(ctx)
	if err != nil {
		return err
	}

	if collection == TimeEntries {
		return authorizeTimeEntries(principal, verb, targetCompanyID, targetUserID)
	}

	rules, ok := matrix[collection]
	if !ok {
		return apperr.New(apperr.PermissionDenied, "no authorization rule for collection "+string(collection))
	}
	r, ok := rules[verb]
	if !ok {
		return apperr.New(apperr.PermissionDenied, "verb not permitted on "+string(collection))
	}

	if r.denyAll {
		return apperr.New(apperr.PermissionDenied, string(verb)+" denied on "+string(collection))
	}
	if r.engineOnly {
		return apperr.New(apperr.PermissionDenied, string(verb)+" on "+string(collection)+" is engine-only")
	}
	if r.platformOnly {
		return apperr.New(apperr.PermissionDenied, string(verb)+" on "+string(collection)+" requires platform access")
	}

	if targetCompanyID != "" && targetCompanyID != principal.CompanyID {
		logCrossTenantAttempt(principal, targetCompanyID, string(collection), "")
		return apperr.New(apperr.PermissionDenied, "cross-company access denied")
	}

	if collection == ClockEvents && verb == Read {
		if targetUserID == principal.UID || principal.Role == domain.RoleAdmin || principal.Role == domain.RoleManager {
			return nil
		}
		return apperr.New(apperr.PermissionDenied, "read on clockEvents requires ownership or admin/manager role")
	}

	if r.selfOnly && targetUserID != "" && targetUserID != principal.UID {
		return apperr.New(apperr.PermissionDenied, string(verb)+" on "+string(collection)+" requires ownership")
	}
	if r.anyRoleInCompany {
		return nil
	}
	if len(r.roles) > 0 {
		for _, role := range r.roles {
			if principal.Role == role {
				return nil
			}
		}
		return apperr.New(apperr.PermissionDenied, string(verb)+" on "+string(collection)+" requires an elevated role")
	}
	if r.selfOnly {
		return nil
	}
	return apperr.New(apperr.PermissionDenied, string(verb)+" denied on "+string(collection))
}

func logCrossTenantAttempt(principal *domain.Principal, targetCompanyID, collection, documentID string) {
	if recorder == nil {
		return
	}
	recorder.CrossTenantAccessAttempt(principal.CompanyID, principal.UID, targetCompanyID, collection, documentID)
}

// authorizeTimeEntries implements the timeEntries row, which the generic
// table can't express cleanly: "self or admin/manager same-company" for reads, and
// engine-only deny for every write.
func authorizeTimeEntries(principal *domain.Principal, verb Verb, targetCompanyID, targetUserID string) error {
	if targetCompanyID != "" && targetCompanyID != principal.CompanyID {
		logCrossTenantAttempt(principal, targetCompanyID, "timeEntries", "")
		return apperr.New(apperr.PermissionDenied, "cross-company access denied")
	}
	switch verb {
	case Read:
		if targetUserID == principal.UID {
			return nil
		}
		if principal.Role == domain.RoleAdmin || principal.Role == domain.RoleManager {
			return nil
		}
		return apperr.New(apperr.PermissionDenied, "read on timeEntries requires ownership or admin/manager role")
	default:
		return apperr.New(apperr.PermissionDenied, string(verb)+" on timeEntries is engine-only")
	}
}
