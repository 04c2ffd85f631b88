// Package pdf implements the invoice PDF pipeline (C10): rendering an
// Invoice into a PDF document, uploading it to object storage, and issuing
// time-limited signed URLs for download.
package pdf

import (
	"bytes"
	"fmt"
	"time"

	storage_go "github.com/supabase-community/storage-go"

	"github.com/paintcrew/fieldtime/internal/apperr"
)

// ObjectStore wraps the Supabase storage client with the two operations
// C10 needs: upload and signed-URL issuance.
type ObjectStore struct {
	client *storage_go.Client
	bucket string
}

// NewObjectStore builds an ObjectStore over SUPABASE_URL's storage API.
func NewObjectStore(supabaseURL, serviceKey, bucket string) *ObjectStore {
	client := storage_go.NewClient(supabaseURL+"/storage/v1", serviceKey, nil)
	return &ObjectStore{client: client, bucket: bucket}
}

// Path returns the object path an invoice PDF is stored at: §4.10's
// invoices/{companyId}/{invoiceId}.pdf layout.
func Path(companyID, invoiceID string) string {
	return fmt.Sprintf("invoices/%s/%s.pdf", companyID, invoiceID)
}

// Upload writes the rendered PDF bytes to the invoice's object path, with
// Upsert set so regeneration (§4.10) overwrites the same path.
func (o *ObjectStore) Upload(path string, data []byte) error {
	upsert := true
	contentType := "application/pdf"
	_, err := o.client.UploadFile(o.bucket, path, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return apperr.Wrap(err)
	}
	return nil
}

// SignedURL issues a time-limited download URL for path, valid for
// expiresIn.
func (o *ObjectStore) SignedURL(path string, expiresIn time.Duration) (string, error) {
	resp, err := o.client.CreateSignedUrl(o.bucket, path, int(expiresIn.Seconds()))
	if err != nil {
		return "", apperr.Wrap(err)
	}
	return resp.SignedURL, nil
}
