package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/paintcrew/fieldtime/internal/domain"
	"github.com/paintcrew/fieldtime/internal/multitenancy"
)

func ctxFor(role domain.Role, uid, companyID string) context.Context {
	return multitenancy.WithPrincipal(context.Background(), &domain.Principal{UID: uid, CompanyID: companyID, Role: role})
}

func TestAuthorizeCrossCompanyDenied(t *testing.T) {
	ctx := ctxFor(domain.RoleAdmin, "u1", "company-a")
	err := Authorize(ctx, Jobs, Read, "company-b", "")
	assert.Error(t, err)
}

func TestAuthorizeJobsCreateRequiresElevatedRole(t *testing.T) {
	ctx := ctxFor(domain.RoleWorker, "u1", "company-a")
	err := Authorize(ctx, Jobs, Create, "company-a", "")
	assert.Error(t, err)

	ctx = ctxFor(domain.RoleManager, "u1", "company-a")
	err = Authorize(ctx, Jobs, Create, "company-a", "")
	assert.NoError(t, err)
}

func TestAuthorizeInvoicesCreateAlwaysDenied(t *testing.T) {
	ctx := ctxFor(domain.RoleAdmin, "u1", "company-a")
	err := Authorize(ctx, Invoices, Create, "company-a", "")
	assert.Error(t, err)
}

func TestAuthorizeTimeEntriesSelfRead(t *testing.T) {
	ctx := ctxFor(domain.RoleWorker, "worker-1", "company-a")
	assert.NoError(t, Authorize(ctx, TimeEntries, Read, "company-a", "worker-1"))
	assert.Error(t, Authorize(ctx, TimeEntries, Read, "company-a", "worker-2"))
}

func TestAuthorizeTimeEntriesManagerReadsAnyUser(t *testing.T) {
	ctx := ctxFor(domain.RoleManager, "mgr-1", "company-a")
	assert.NoError(t, Authorize(ctx, TimeEntries, Read, "company-a", "worker-2"))
}

func TestAuthorizeTimeEntriesWriteAlwaysDenied(t *testing.T) {
	ctx := ctxFor(domain.RoleAdmin, "u1", "company-a")
	assert.Error(t, Authorize(ctx, TimeEntries, Update, "company-a", "u1"))
	assert.Error(t, Authorize(ctx, TimeEntries, Delete, "company-a", "u1"))
}

func TestAuthorizeIdempotencyNeverReadable(t *testing.T) {
	ctx := ctxFor(domain.RoleAdmin, "u1", "company-a")
	assert.Error(t, Authorize(ctx, Idempotency, Read, "company-a", ""))
}
