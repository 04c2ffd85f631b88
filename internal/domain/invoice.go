package domain

import "time"

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusVoid    InvoiceStatus = "void"
)

// LineItem is one billed row on an invoice.
type LineItem struct {
	Description string   `json:"description"`
	Quantity    float64  `json:"quantity"`
	UnitPrice   float64  `json:"unitPrice"`
	Discount    *float64 `json:"discount,omitempty"`
}

// Invoice is created exclusively by the invoice builder (C9). Its items,
// amount and companyId are immutable once created; once pdfPath is set it
// can no longer be deleted.
type Invoice struct {
	ID             string        `json:"id"`
	CompanyID      string        `json:"companyId"`
	CustomerID     string        `json:"customerId"`
	JobID          string        `json:"jobId"`
	Status         InvoiceStatus `json:"status"`
	Amount         float64       `json:"amount"`
	Currency       string        `json:"currency"`
	Items          []LineItem    `json:"items"`
	TaxRate        *float64      `json:"taxRate,omitempty"`
	Notes          string        `json:"notes,omitempty"`
	DueDate        string        `json:"dueDate"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	PDFPath        string        `json:"pdfPath,omitempty"`
	PDFGeneratedAt *time.Time    `json:"pdfGeneratedAt,omitempty"`
	PDFError       string        `json:"pdfError,omitempty"`
	PDFErrorAt     *time.Time    `json:"pdfErrorAt,omitempty"`
}

// InvoiceImmutableFieldNames lists the Invoice fields that cannot change once the
// invoice is created.
var InvoiceImmutableFieldNames = map[string]bool{
	"companyId": true,
	"createdAt": true,
	"pdfPath":   true,
	"items":     true,
	"amount":    true,
}

// IdempotencyRecord is the persisted result of a prior mutating call, keyed
// by (companyId, operation, clientEventId).
type IdempotencyRecord struct {
	Key       string    `json:"key"`
	Result    []byte    `json:"result"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Severity is the criticality level of a security AuditEntry.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarn     Severity = "WARN"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// AuditEntry is a security audit log record, retained 90 days, written
// asynchronously by the security recorder (C12) so that a logging failure
// never blocks the primary operation that triggered it.
type AuditEntry struct {
	EventType    string                 `json:"eventType"`
	Severity     Severity               `json:"severity"`
	Timestamp    time.Time              `json:"timestamp"`
	UserID       string                 `json:"userId"`
	CompanyID    string                 `json:"companyId,omitempty"`
	TargetUserID string                 `json:"targetUserId,omitempty"`
	Collection   string                 `json:"collection,omitempty"`
	DocumentID   string                 `json:"documentId,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// Security event type constants recognized by the recorder.
const (
	EventRoleChanged              = "role_changed"
	EventClaimsUpdated            = "claims_updated"
	EventCrossTenantAccessAttempt = "cross_tenant_access_attempt"
	EventCompanyIDChangeAttempt   = "company_id_change_attempt"
	EventTimeEntryManipulation    = "time_entry_manipulation"
	EventInvoiceFraudAttempt      = "invoice_fraud_attempt"
	EventMassDataExport           = "mass_data_export"
)
