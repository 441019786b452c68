package documents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/solkant/solkant/internal/pricing"
	"github.com/solkant/solkant/internal/view"
	"github.com/solkant/solkant/report"
)

const documentTemplate = "documents/quote_document.html"

// Executor renders a standalone template.
type Executor interface {
	Execute(w io.Writer, name string, data any) error
}

// HTMLRenderer produces the printable HTML of a quote.
type HTMLRenderer struct {
	templates Executor
}

// NewHTMLRenderer constructs an HTMLRenderer.
func NewHTMLRenderer(templates Executor) *HTMLRenderer {
	return &HTMLRenderer{templates: templates}
}

// Render executes the quote document template.
func (r *HTMLRenderer) Render(doc QuoteDocument) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.templates.Execute(&buf, documentTemplate, doc); err != nil {
		return nil, fmt.Errorf("render quote html: %w", err)
	}
	return buf.Bytes(), nil
}

// PDFEngine turns a document into PDF bytes.
type PDFEngine interface {
	Name() string
	Render(ctx context.Context, doc QuoteDocument) ([]byte, error)
}

// GotenbergEngine prints the HTML document through Gotenberg.
type GotenbergEngine struct {
	html   *HTMLRenderer
	client *report.Client
}

// NewGotenbergEngine constructs a GotenbergEngine.
func NewGotenbergEngine(html *HTMLRenderer, client *report.Client) *GotenbergEngine {
	return &GotenbergEngine{html: html, client: client}
}

// Name identifies the engine in metrics.
func (e *GotenbergEngine) Name() string { return "gotenberg" }

// Render converts the HTML document to PDF.
func (e *GotenbergEngine) Render(ctx context.Context, doc QuoteDocument) ([]byte, error) {
	html, err := e.html.Render(doc)
	if err != nil {
		return nil, err
	}
	return e.client.RenderHTML(ctx, html, report.A4)
}

// NativeEngine draws the document with gofpdf. It needs no external service
// and backs deployments without Gotenberg.
type NativeEngine struct{}

// NewNativeEngine constructs a NativeEngine.
func NewNativeEngine() *NativeEngine { return &NativeEngine{} }

// Name identifies the engine in metrics.
func (e *NativeEngine) Name() string { return "native" }

// Render lays the document out on a single A4 flow.
func (e *NativeEngine) Render(ctx context.Context, doc QuoteDocument) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(doc.Number, true)
	pdf.SetAutoPageBreak(true, 20)
	tr := translator(pdf)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 5, tr(footerLine(doc.Issuer)), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(110, 8, tr(doc.Issuer.Name), "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 8, tr("Devis "+doc.Number), "", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	for _, line := range []string{doc.Issuer.Address, doc.Issuer.Email, doc.Issuer.Phone} {
		if line != "" {
			pdf.MultiCell(110, 4.5, tr(line), "", "L", false)
		}
	}
	pdf.Ln(4)
	pdf.CellFormat(0, 5, tr("Émis le "+view.LongDate(doc.IssuedAt)), "", 1, "R", false, 0, "")
	if doc.ValidUntil != nil {
		pdf.CellFormat(0, 5, tr("Valable jusqu'au "+view.LongDate(*doc.ValidUntil)), "", 1, "R", false, 0, "")
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 6, tr(doc.ClientName), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	for _, line := range []string{doc.ClientAddress, doc.ClientEmail, doc.ClientPhone} {
		if line != "" {
			pdf.MultiCell(0, 4.5, tr(line), "", "L", false)
		}
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(240, 236, 232)
	pdf.CellFormat(95, 7, tr("Désignation"), "B", 0, "L", true, 0, "")
	pdf.CellFormat(30, 7, tr("Prix unitaire"), "B", 0, "R", true, 0, "")
	pdf.CellFormat(20, 7, tr("Qté"), "B", 0, "R", true, 0, "")
	pdf.CellFormat(0, 7, tr("Total"), "B", 1, "R", true, 0, "")

	for _, line := range doc.Lines {
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(95, 6, tr(truncate(line.Name, 60)), "", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, tr(pricing.FormatEUR(line.UnitPrice)), "", 0, "R", false, 0, "")
		pdf.CellFormat(20, 6, strconv.Itoa(line.Quantity), "", 0, "R", false, 0, "")
		pdf.CellFormat(0, 6, tr(pricing.FormatEUR(line.Total)), "", 1, "R", false, 0, "")
		if line.Description != "" {
			pdf.SetFont("Helvetica", "I", 8)
			pdf.MultiCell(95, 4, tr(line.Description), "", "L", false)
		}
	}

	pdf.Ln(4)
	total := func(label, amount string, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 10)
		pdf.CellFormat(145, 6, tr(label), "", 0, "R", false, 0, "")
		pdf.CellFormat(0, 6, tr(amount), "", 1, "R", false, 0, "")
	}
	total("Sous-total", pricing.FormatEUR(doc.Subtotal), false)
	if doc.HasDiscount() {
		total(doc.DiscountLabel, "- "+pricing.FormatEUR(doc.Discount), false)
	}
	total("Total", pricing.FormatEUR(doc.Total), true)
	if doc.Issuer.VATMention != "" {
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 5, tr(doc.Issuer.VATMention), "", 1, "R", false, 0, "")
	}

	if doc.Notes != "" {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(0, 4.5, tr(doc.Notes), "", "L", false)
	}
	if doc.Issuer.Footer != "" {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "", 8)
		pdf.MultiCell(0, 4, tr(doc.Issuer.Footer), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render quote pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// The core fonts are cp1252; narrow and regular no-break spaces have no
// glyph there.
func translator(pdf *gofpdf.Fpdf) func(string) string {
	encode := pdf.UnicodeTranslatorFromDescriptor("")
	spaces := strings.NewReplacer("\u202f", " ", "\u00a0", " ")
	return func(s string) string {
		return encode(spaces.Replace(s))
	}
}

func footerLine(issuer Issuer) string {
	parts := []string{issuer.Name}
	if issuer.Siret != "" {
		parts = append(parts, "SIRET "+issuer.Siret)
	}
	return strings.Join(parts, " - ")
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
