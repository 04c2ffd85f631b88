package pdf

import (
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/paintcrew/fieldtime/internal/apperr"
	"github.com/paintcrew/fieldtime/internal/domain"
)

// InvoiceRenderInput is every field the A4 invoice layout needs.
type InvoiceRenderInput struct {
	Invoice      *domain.Invoice
	CompanyName  string
	CustomerName string
	TaxRate      float64
}

// Render builds the A4 invoice PDF described in §4.10: company header,
// customer block, a line-item table with subtotal/tax/total, and a footer.
func Render(in InvoiceRenderInput) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageSize(config.A4).
		WithMargins(10, 15, 10).
		Build()

	m := maroto.New(cfg)

	m.AddRows(row.New(20).Add(
		col.New(12).Add(
			text.New(in.CompanyName, props.Text{Size: 18, Style: fontstyle.Bold, Align: align.Left}),
			text.New(fmt.Sprintf("Invoice %s", in.Invoice.ID), props.Text{Size: 10, Top: 8, Align: align.Left}),
		),
	))

	m.AddRows(row.New(14).Add(
		col.New(6).Add(text.New(fmt.Sprintf("Bill to: %s", in.CustomerName), props.Text{Size: 10})),
		col.New(6).Add(text.New(fmt.Sprintf("Due: %s", in.Invoice.DueDate), props.Text{Size: 10, Align: align.Right})),
	))

	m.AddRows(row.New(8).Add(
		col.New(8).Add(text.New("Description", props.Text{Style: fontstyle.Bold})),
		col.New(2).Add(text.New("Hours", props.Text{Style: fontstyle.Bold, Align: align.Right})),
		col.New(2).Add(text.New("Amount", props.Text{Style: fontstyle.Bold, Align: align.Right})),
	))

	subtotal := 0.0
	for _, item := range in.Invoice.Items {
		lineAmount := item.Quantity * item.UnitPrice
		subtotal += lineAmount
		m.AddRows(row.New(7).Add(
			col.New(8).Add(text.New(item.Description, props.Text{Size: 9})),
			col.New(2).Add(text.New(fmt.Sprintf("%.2f", item.Quantity), props.Text{Size: 9, Align: align.Right})),
			col.New(2).Add(text.New(fmt.Sprintf("$%.2f", lineAmount), props.Text{Size: 9, Align: align.Right})),
		))
	}

	tax := subtotal * in.TaxRate
	total := subtotal + tax

	m.AddRows(row.New(6).Add(col.New(12).Add(text.New(""))))
	m.AddRows(row.New(6).Add(
		col.New(10).Add(text.New("Subtotal", props.Text{Align: align.Right})),
		col.New(2).Add(text.New(fmt.Sprintf("$%.2f", subtotal), props.Text{Align: align.Right})),
	))
	if in.TaxRate > 0 {
		m.AddRows(row.New(6).Add(
			col.New(10).Add(text.New(fmt.Sprintf("Tax (%.1f%%)", in.TaxRate*100), props.Text{Align: align.Right})),
			col.New(2).Add(text.New(fmt.Sprintf("$%.2f", tax), props.Text{Align: align.Right})),
		))
	}
	m.AddRows(row.New(8).Add(
		col.New(10).Add(text.New("Total", props.Text{Style: fontstyle.Bold, Align: align.Right})),
		col.New(2).Add(text.New(fmt.Sprintf("$%.2f %s", total, in.Invoice.Currency), props.Text{Style: fontstyle.Bold, Align: align.Right})),
	))

	m.AddRows(row.New(16).Add(
		col.New(12).Add(text.New("Generated by fieldtime", props.Text{Size: 7, Top: 12, Align: align.Center})),
	))

	doc, err := m.Generate()
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return doc.GetBytes(), nil
}
