package pdf

import (
	"context"
	"log/slog"
	"time"

	"github.com/paintcrew/fieldtime/internal/apperr"
	"github.com/paintcrew/fieldtime/internal/database"
	"github.com/paintcrew/fieldtime/internal/domain"
	"github.com/paintcrew/fieldtime/internal/events"
	"github.com/paintcrew/fieldtime/internal/multitenancy"
)

// defaultTaxRate is applied when a company carries no explicit tax
// configuration; invoices are untaxed by default.
const defaultTaxRate = 0.0

const maxSignedURLTTL = 30 * 24 * time.Hour

// Service owns the invoice PDF lifecycle: rendering on InvoiceCreated,
// issuing signed download URLs, and on-demand regeneration.
type Service struct {
	db    *database.SupabaseStore
	store *ObjectStore
	bus   *events.EventBus

	defaultURLTTL time.Duration
	now           func() time.Time
}

// NewService builds the PDF pipeline service.
func NewService(db *database.SupabaseStore, store *ObjectStore, bus *events.EventBus, defaultURLTTL time.Duration) *Service {
	return &Service{
		db:            db,
		store:         store,
		bus:           bus,
		defaultURLTTL: defaultURLTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Run subscribes to InvoiceCreated and renders a PDF for each invoice until
// ctx is canceled. A render or upload failure is recorded on the invoice
// and never blocks the invoice's own state (§4.10 Failure note).
func (s *Service) Run(ctx context.Context) {
	ch := s.bus.Subscribe(events.InvoiceCreatedType)
	defer s.bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-ch:
			companyID, _ := evt.Data["companyId"].(string)
			invoiceID, _ := evt.Data["invoiceId"].(string)
			if companyID == "" || invoiceID == "" {
				slog.Warn("pdf: InvoiceCreated event missing companyId/invoiceId", "subject", evt.Subject)
				continue
			}
			if err := s.generate(ctx, companyID, invoiceID, false); err != nil {
				slog.Error("pdf: generation failed", "invoice_id", invoiceID, "error", err)
			}
		}
	}
}

// generate renders, uploads, and records the PDF for one invoice. force
// re-renders even if a pdfPath already exists (used by Regenerate).
func (s *Service) generate(ctx context.Context, companyID, invoiceID string, force bool) error {
	inv, err := s.db.GetInvoice(ctx, companyID, invoiceID)
	if err != nil {
		return err
	}
	if inv == nil {
		return apperr.New(apperr.NotFound, "invoice not found")
	}
	if inv.PDFPath != "" && !force {
		return nil
	}

	company, err := s.db.GetCompany(ctx, companyID)
	if err != nil {
		return err
	}
	customer, err := s.db.GetCustomer(ctx, companyID, inv.CustomerID)
	if err != nil {
		return err
	}

	taxRate := defaultTaxRate
	if inv.TaxRate != nil {
		taxRate = *inv.TaxRate
	}

	companyName, customerName := "", ""
	if company != nil {
		companyName = company.Name
	}
	if customer != nil {
		customerName = customer.Name
	}

	doc, err := Render(InvoiceRenderInput{
		Invoice:      inv,
		CompanyName:  companyName,
		CustomerName: customerName,
		TaxRate:      taxRate,
	})

	now := s.now()
	if err != nil {
		inv.PDFError = err.Error()
		inv.PDFErrorAt = &now
		inv.UpdatedAt = now
		if uerr := s.db.UpdateInvoice(ctx, inv); uerr != nil {
			slog.Error("pdf: failed to record render error", "invoice_id", invoiceID, "error", uerr)
		}
		return apperr.Wrap(err)
	}

	path := Path(companyID, invoiceID)
	if err := s.store.Upload(path, doc); err != nil {
		inv.PDFError = err.Error()
		inv.PDFErrorAt = &now
		inv.UpdatedAt = now
		if uerr := s.db.UpdateInvoice(ctx, inv); uerr != nil {
			slog.Error("pdf: failed to record upload error", "invoice_id", invoiceID, "error", uerr)
		}
		return err
	}

	inv.PDFPath = path
	inv.PDFGeneratedAt = &now
	inv.PDFError = ""
	inv.PDFErrorAt = nil
	inv.UpdatedAt = now
	return s.db.UpdateInvoice(ctx, inv)
}

// GetInvoicePDFURL implements getInvoicePDFUrl: same-company auth, a
// failed-precondition/pdf_not_ready error if rendering hasn't completed
// yet, and an expiry clamped to [1s, 30 days] with SIGNED_URL_DEFAULT_SECONDS
// as the default.
func (s *Service) GetInvoicePDFURL(ctx context.Context, invoiceID string, expiresIn time.Duration) (string, time.Time, error) {
	principal, err := multitenancy.RequirePrincipal(ctx)
	if err != nil {
		return "", time.Time{}, err
	}

	inv, err := s.db.GetInvoice(ctx, principal.CompanyID, invoiceID)
	if err != nil {
		return "", time.Time{}, err
	}
	if inv == nil {
		return "", time.Time{}, apperr.New(apperr.NotFound, "invoice not found")
	}
	if inv.PDFPath == "" {
		return "", time.Time{}, apperr.NewReason(apperr.FailedPrecondition, "pdf_not_ready", "invoice pdf has not been generated yet")
	}

	ttl := expiresIn
	if ttl <= 0 {
		ttl = s.defaultURLTTL
	}
	if ttl > maxSignedURLTTL {
		ttl = maxSignedURLTTL
	}

	url, err := s.store.SignedURL(inv.PDFPath, ttl)
	if err != nil {
		return "", time.Time{}, err
	}
	return url, s.now().Add(ttl), nil
}

// Regenerate force re-renders an invoice's PDF, overwriting the same
// object path and clearing any prior pdfError. Admin/manager only.
func (s *Service) Regenerate(ctx context.Context, invoiceID string) (string, error) {
	principal, err := multitenancy.RequirePrincipal(ctx)
	if err != nil {
		return "", err
	}
	if !multitenancy.HasAnyRole(ctx, domain.RoleAdmin, domain.RoleManager) {
		return "", apperr.New(apperr.PermissionDenied, "regenerateInvoicePDF requires admin or manager role")
	}
	if err := s.generate(ctx, principal.CompanyID, invoiceID, true); err != nil {
		return "", err
	}
	inv, err := s.db.GetInvoice(ctx, principal.CompanyID, invoiceID)
	if err != nil {
		return "", err
	}
	if inv == nil {
		return "", apperr.New(apperr.NotFound, "invoice not found")
	}
	return inv.PDFPath, nil
}
