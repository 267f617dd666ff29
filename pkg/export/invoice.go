package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// InvoiceLine is one priced row of a proforma invoice.
type InvoiceLine struct {
	Description string
	Detail      string
	Quantity    int
	UnitPrice   float64
}

// ProformaInvoice holds everything printed on the PI sent for a quote.
type ProformaInvoice struct {
	Number        string
	IssuedAt      time.Time
	ValidUntil    time.Time
	Brand         string
	Currency      string
	CustomerName  string
	CustomerEmail string
	Lines         []InvoiceLine
	Notes         string
}

// Total sums quantity * unit price over all lines.
func (p ProformaInvoice) Total() float64 {
	var total float64
	for _, line := range p.Lines {
		total += float64(line.Quantity) * line.UnitPrice
	}
	return total
}

// RenderInvoice lays the invoice out on a single A4 page.
func RenderInvoice(inv ProformaInvoice) ([]byte, error) {
	if inv.Number == "" {
		return nil, fmt.Errorf("invoice number is required")
	}
	if len(inv.Lines) == 0 {
		return nil, fmt.Errorf("invoice requires at least one line")
	}
	if inv.IssuedAt.IsZero() {
		inv.IssuedAt = time.Now().UTC()
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Proforma Invoice "+inv.Number, true)
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, tr(inv.Brand), "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(0, 8, "PROFORMA INVOICE", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, "Invoice No: "+inv.Number, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Date: "+inv.IssuedAt.Format("2006-01-02"), "", 1, "L", false, 0, "")
	if !inv.ValidUntil.IsZero() {
		pdf.CellFormat(0, 6, "Valid until: "+inv.ValidUntil.Format("2006-01-02"), "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 6, "Bill to", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	if inv.CustomerName != "" {
		pdf.CellFormat(0, 6, tr(inv.CustomerName), "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, 6, tr(inv.CustomerEmail), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	widths := []float64{90, 20, 35, 35}
	pdf.SetFont("Arial", "B", 10)
	for i, header := range []string{"Description", "Qty", "Unit (" + inv.Currency + ")", "Amount (" + inv.Currency + ")"} {
		pdf.CellFormat(widths[i], 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	for _, line := range inv.Lines {
		desc := line.Description
		if line.Detail != "" {
			desc += " (" + line.Detail + ")"
		}
		pdf.CellFormat(widths[0], 7, tr(truncate(desc, 60)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 7, fmt.Sprintf("%d", line.Quantity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[2], 7, money(line.UnitPrice), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 7, money(float64(line.Quantity)*line.UnitPrice), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(widths[0]+widths[1]+widths[2], 8, "Total", "1", 0, "R", false, 0, "")
	pdf.CellFormat(widths[3], 8, inv.Currency+" "+money(inv.Total()), "1", 1, "R", false, 0, "")

	if strings.TrimSpace(inv.Notes) != "" {
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 6, "Notes", "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		pdf.MultiCell(0, 5, tr(inv.Notes), "", "L", false)
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "I", 8)
	pdf.MultiCell(0, 4, "This is a proforma invoice and not a tax invoice. Shipping and taxes are confirmed when the order is placed.", "", "L", false)

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
