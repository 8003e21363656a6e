package services

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"billdesk/internal/models"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
)

// Page geometry in millimetres (A4 portrait).
const (
	pageWidth    = 210.0
	pageHeight   = 297.0
	pageMargin   = 15.0
	footerHeight = 20.0
	contentWidth = pageWidth - 2*pageMargin
	tableBottom  = pageHeight - pageMargin - footerHeight

	tableTopFirstPage = 92.0
	trailerEstimate   = 80.0
	termLineHeight    = 4.5

	displayDate     = "02/01/2006"
	displayDateTime = "02/01/2006 15:04"
)

var itemColumns = []struct {
	title string
	width float64
	align string
}{
	{"#", 10, "C"},
	{"Item", 80, "L"},
	{"Qty", 20, "C"},
	{"Unit Price", 35, "R"},
	{"Amount", 35, "R"},
}

var statusColors = map[models.PaymentStatus]string{
	models.PaymentStatusPaid:      "#22c55e",
	models.PaymentStatusPending:   "#f59e0b",
	models.PaymentStatusFailed:    "#ef4444",
	models.PaymentStatusCancelled: "#6b7280",
	models.PaymentStatusRefunded:  "#3b82f6",
}

type layoutProfile struct {
	Name         string
	FontSize     float64
	RowHeight    float64
	HeaderHeight float64
}

var (
	normalProfile  = layoutProfile{Name: "normal", FontSize: 9, RowHeight: 8, HeaderHeight: 9}
	compactProfile = layoutProfile{Name: "compact", FontSize: 7.5, RowHeight: 5.5, HeaderHeight: 7}
)

// ItemPage is the half-open range of line items drawn on one page.
type ItemPage struct {
	Start int
	End   int
}

// chooseProfile switches to the compact profile when the invoice would not
// fit on one page at normal size.
func chooseProfile(itemCount int) layoutProfile {
	estimated := tableTopFirstPage + normalProfile.HeaderHeight +
		float64(itemCount)*normalProfile.RowHeight + trailerEstimate
	if estimated > tableBottom {
		return compactProfile
	}
	return normalProfile
}

// planItemPages splits itemCount rows over pages. The first page starts the
// table below the header blocks; later pages start at the top margin. Every
// page reserves room for a repeated table header.
func planItemPages(itemCount int, p layoutProfile) []ItemPage {
	var pages []ItemPage
	start := 0
	top := tableTopFirstPage
	for {
		capacity := int((tableBottom - top - p.HeaderHeight) / p.RowHeight)
		if capacity < 1 {
			capacity = 1
		}
		end := start + capacity
		if end > itemCount {
			end = itemCount
		}
		pages = append(pages, ItemPage{Start: start, End: end})
		if end >= itemCount {
			return pages
		}
		start = end
		top = pageMargin
	}
}

type RenderInput struct {
	Bill        *models.Bill
	Customer    *models.Customer
	Company     models.CompanyInfo
	GeneratedAt time.Time
}

// RenderedInvoice is the PDF plus a summary of the layout decisions.
type RenderedInvoice struct {
	Content     []byte
	Pages       int
	Profile     string
	ItemPages   []ItemPage
	HeaderPages int
	Sections    []string
	TotalsRows  []string
}

type InvoiceRenderer struct {
	currencySymbol string
	location       *time.Location
}

func NewInvoiceRenderer(currencySymbol string, loc *time.Location) *InvoiceRenderer {
	if loc == nil {
		loc = time.Local
	}
	return &InvoiceRenderer{currencySymbol: currencySymbol, location: loc}
}

// Render lays out the bill. Identical inputs produce identical bytes.
func (r *InvoiceRenderer) Render(in RenderInput) (*RenderedInvoice, error) {
	if in.Bill == nil {
		return nil, fmt.Errorf("render invoice: bill is required")
	}
	bill := in.Bill
	company := in.Company
	if company.Name == "" {
		company = models.DefaultCompanyInfo()
	}
	generatedAt := in.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = bill.CreatedAt
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AliasNbPages("{nb}")
	pdf.SetCreationDate(bill.CreatedAt)
	pdf.SetCatalogSort(true)
	pdf.SetTitle("Invoice "+bill.BillNumber, false)
	pdf.SetAuthor(company.Name, false)
	pdf.SetCreator("billdesk", false)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	out := &RenderedInvoice{}
	pdf.SetFooterFunc(func() {
		pdf.SetY(pageHeight - pageMargin - footerHeight + 6)
		pdf.SetDrawColor(220, 220, 220)
		pdf.Line(pageMargin, pdf.GetY()-2, pageWidth-pageMargin, pdf.GetY()-2)
		pdf.SetFont("Arial", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(contentWidth, 4, tr("Thank you for your business!"), "", 1, "C", false, 0, "")
		pdf.CellFormat(contentWidth/2, 4, tr("Generated on "+generatedAt.In(r.location).Format(displayDateTime)), "", 0, "L", false, 0, "")
		pdf.CellFormat(contentWidth/2, 4, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	pdf.AddPage()
	r.drawHeader(pdf, tr, company)
	r.drawParties(pdf, tr, bill, in.Customer)
	out.Sections = append(out.Sections, "header", "parties")

	profile := chooseProfile(len(bill.Items))
	out.Profile = profile.Name
	out.ItemPages = planItemPages(len(bill.Items), profile)

	y := tableTopFirstPage
	for i, page := range out.ItemPages {
		if i > 0 {
			pdf.AddPage()
			y = pageMargin
		}
		y = r.drawTableHeader(pdf, tr, profile, y)
		out.HeaderPages++
		for idx := page.Start; idx < page.End; idx++ {
			y = r.drawItemRow(pdf, tr, profile, idx, bill.Items[idx], y)
		}
	}
	out.Sections = append(out.Sections, "items")

	terms := company.Terms
	if len(terms) == 0 {
		terms = models.DefaultCompanyInfo().Terms
	}
	trailer := 48 + 8 + float64(len(terms))*termLineHeight
	y += 6
	if y+trailer > tableBottom {
		pdf.AddPage()
		y = pageMargin
	}

	out.TotalsRows = r.drawTotals(pdf, tr, bill, y)
	r.drawPaymentInfo(pdf, tr, bill, y)
	out.Sections = append(out.Sections, "totals", "payment")

	r.drawTerms(pdf, tr, terms, y+48)
	out.Sections = append(out.Sections, "terms", "footer")

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", bill.BillNumber, err)
	}
	out.Pages = pdf.PageCount()

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	out.Content = buf.Bytes()
	return out, nil
}

func (r *InvoiceRenderer) drawHeader(pdf *gofpdf.Fpdf, tr func(string) string, company models.CompanyInfo) {
	pdf.SetXY(pageMargin, pageMargin)
	pdf.SetFont("Arial", "B", 18)
	pdf.SetTextColor(33, 37, 41)
	pdf.CellFormat(contentWidth/2+20, 9, tr(company.Name), "", 0, "L", false, 0, "")

	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(37, 99, 235)
	pdf.CellFormat(contentWidth/2-20, 9, "INVOICE", "", 1, "R", false, 0, "")

	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(90, 90, 90)
	lines := []string{company.Address}
	contact := strings.Trim(strings.Join([]string{company.Phone, company.Email}, " | "), " |")
	lines = append(lines, contact)
	if company.Website != "" {
		lines = append(lines, company.Website)
	}
	if company.TaxID != "" {
		lines = append(lines, "Tax ID: "+company.TaxID)
	}
	for _, line := range lines {
		if line == "" {
			continue
		}
		pdf.SetX(pageMargin)
		pdf.CellFormat(contentWidth/2+20, 5, tr(line), "", 1, "L", false, 0, "")
	}

	pdf.SetDrawColor(37, 99, 235)
	pdf.SetLineWidth(0.6)
	pdf.Line(pageMargin, 50, pageWidth-pageMargin, 50)
	pdf.SetLineWidth(0.2)
}

func (r *InvoiceRenderer) drawParties(pdf *gofpdf.Fpdf, tr func(string) string, bill *models.Bill, customer *models.Customer) {
	half := contentWidth / 2
	top := 55.0

	pdf.SetXY(pageMargin, top)
	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(33, 37, 41)
	pdf.CellFormat(half, 6, "INVOICE DETAILS", "", 1, "L", false, 0, "")

	details := [][2]string{
		{"Invoice No:", bill.BillNumber},
		{"Date:", bill.CreatedAt.In(r.location).Format(displayDate)},
		{"Due Date:", bill.DueDate.In(r.location).Format(displayDate)},
	}
	pdf.SetFont("Arial", "", 9)
	for _, d := range details {
		pdf.SetX(pageMargin)
		pdf.CellFormat(25, 5, d[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(half-25, 5, tr(d[1]), "", 1, "L", false, 0, "")
	}
	pdf.SetX(pageMargin)
	pdf.CellFormat(25, 5, "Status:", "", 0, "L", false, 0, "")
	red, green, blue := hexRGB(statusColors[bill.PaymentStatus])
	pdf.SetFont("Arial", "B", 9)
	pdf.SetTextColor(red, green, blue)
	pdf.CellFormat(half-25, 5, strings.ToUpper(string(bill.PaymentStatus)), "", 1, "L", false, 0, "")

	pdf.SetXY(pageMargin+half, top)
	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(33, 37, 41)
	pdf.CellFormat(half, 6, "BILL TO", "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 9)
	var lines []string
	if customer != nil {
		lines = append(lines, customer.Name, customer.Email)
		if customer.Phone != "" {
			lines = append(lines, customer.Phone)
		}
		lines = append(lines, customer.Address.Lines()...)
	} else {
		lines = append(lines, "Customer "+bill.CustomerID.String())
	}
	if len(lines) > 6 {
		lines = lines[:6]
	}
	for i, line := range lines {
		pdf.SetX(pageMargin + half)
		if i == 0 {
			pdf.SetFont("Arial", "B", 9)
		} else {
			pdf.SetFont("Arial", "", 9)
		}
		pdf.CellFormat(half, 5, tr(fitText(pdf, line, half)), "", 1, "L", false, 0, "")
	}
}

func (r *InvoiceRenderer) drawTableHeader(pdf *gofpdf.Fpdf, tr func(string) string, p layoutProfile, y float64) float64 {
	pdf.SetXY(pageMargin, y)
	pdf.SetFont("Arial", "B", p.FontSize)
	pdf.SetFillColor(37, 99, 235)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetDrawColor(37, 99, 235)
	for _, col := range itemColumns {
		pdf.CellFormat(col.width, p.HeaderHeight, tr(col.title), "1", 0, col.align, true, 0, "")
	}
	return y + p.HeaderHeight
}

func (r *InvoiceRenderer) drawItemRow(pdf *gofpdf.Fpdf, tr func(string) string, p layoutProfile, idx int, item models.LineItem, y float64) float64 {
	pdf.SetXY(pageMargin, y)
	pdf.SetFont("Arial", "", p.FontSize)
	pdf.SetTextColor(33, 37, 41)
	pdf.SetDrawColor(226, 232, 240)
	fill := idx%2 == 1
	if fill {
		pdf.SetFillColor(248, 250, 252)
	}

	name := item.ProductName
	if item.ProductDescription != "" {
		name += " - " + item.ProductDescription
	}
	cells := []string{
		strconv.Itoa(idx + 1),
		fitText(pdf, name, itemColumns[1].width-2),
		strconv.Itoa(item.Quantity),
		r.money(item.UnitPrice),
		r.money(item.LineTotal),
	}
	for i, col := range itemColumns {
		pdf.CellFormat(col.width, p.RowHeight, tr(cells[i]), "B", 0, col.align, fill, 0, "")
	}
	return y + p.RowHeight
}

func (r *InvoiceRenderer) drawTotals(pdf *gofpdf.Fpdf, tr func(string) string, bill *models.Bill, y float64) []string {
	const boxWidth = 80.0
	x := pageWidth - pageMargin - boxWidth

	type row struct {
		label string
		value string
	}
	rows := []row{
		{"Subtotal", r.money(bill.Subtotal)},
		{fmt.Sprintf("Tax (%s%%)", bill.TaxRate.String()), r.money(bill.TaxAmount)},
	}
	if bill.DiscountAmount.IsPositive() {
		rows = append(rows, row{"Discount", "-" + r.money(bill.DiscountAmount)})
	}

	pdf.SetDrawColor(226, 232, 240)
	pdf.Rect(x, y, boxWidth, float64(len(rows)+1)*7+4, "D")

	labels := make([]string, 0, len(rows)+1)
	pdf.SetTextColor(33, 37, 41)
	pdf.SetFont("Arial", "", 9)
	for i, rw := range rows {
		pdf.SetXY(x+2, y+2+float64(i)*7)
		pdf.CellFormat(boxWidth/2-2, 7, tr(rw.label), "", 0, "L", false, 0, "")
		pdf.CellFormat(boxWidth/2-2, 7, tr(rw.value), "", 0, "R", false, 0, "")
		labels = append(labels, rw.label)
	}

	pdf.SetXY(x+2, y+2+float64(len(rows))*7)
	pdf.SetFont("Arial", "B", 11)
	pdf.SetFillColor(239, 246, 255)
	pdf.CellFormat(boxWidth/2-2, 7, "Total", "T", 0, "L", true, 0, "")
	pdf.CellFormat(boxWidth/2-2, 7, tr(r.money(bill.TotalAmount)), "T", 0, "R", true, 0, "")
	return append(labels, "Total")
}

func (r *InvoiceRenderer) drawPaymentInfo(pdf *gofpdf.Fpdf, tr func(string) string, bill *models.Bill, y float64) {
	const width = 90.0
	pdf.SetXY(pageMargin, y)
	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(33, 37, 41)
	pdf.CellFormat(width, 6, "PAYMENT INFORMATION", "", 1, "L", false, 0, "")

	paidOn := "-"
	if bill.PaidAt != nil {
		paidOn = bill.PaidAt.In(r.location).Format(displayDate)
	}
	rows := [][2]string{
		{"Status:", strings.ToUpper(string(bill.PaymentStatus))},
		{"Method:", paymentMethodLabel(bill.PaymentMethod)},
		{"Transaction ID:", derefOr(bill.GatewayPaymentID, "-")},
		{"Paid On:", paidOn},
	}
	pdf.SetFont("Arial", "", 9)
	for i, rw := range rows {
		pdf.SetX(pageMargin)
		pdf.SetTextColor(90, 90, 90)
		pdf.CellFormat(30, 5, rw[0], "", 0, "L", false, 0, "")
		if i == 0 {
			red, green, blue := hexRGB(statusColors[bill.PaymentStatus])
			pdf.SetTextColor(red, green, blue)
		} else {
			pdf.SetTextColor(33, 37, 41)
		}
		pdf.CellFormat(width-30, 5, tr(rw[1]), "", 1, "L", false, 0, "")
	}
	if bill.Notes != "" {
		pdf.SetX(pageMargin)
		pdf.SetTextColor(90, 90, 90)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(width, 5, tr(fitText(pdf, "Notes: "+bill.Notes, width)), "", 1, "L", false, 0, "")
	}
}

func (r *InvoiceRenderer) drawTerms(pdf *gofpdf.Fpdf, tr func(string) string, terms []string, y float64) {
	pdf.SetXY(pageMargin, y)
	pdf.SetFont("Arial", "B", 9)
	pdf.SetTextColor(33, 37, 41)
	pdf.CellFormat(contentWidth, 6, "Terms & Conditions", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 8)
	pdf.SetTextColor(90, 90, 90)
	for i, term := range terms {
		pdf.SetX(pageMargin)
		line := fmt.Sprintf("%d. %s", i+1, term)
		pdf.CellFormat(contentWidth, termLineHeight, tr(fitText(pdf, line, contentWidth)), "", 1, "L", false, 0, "")
	}
}

// money formats an amount with two decimals, thousands separators and
// the configured currency symbol.
func (r *InvoiceRenderer) money(d decimal.Decimal) string {
	return r.currencySymbol + groupThousands(d.StringFixed(2))
}

func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	var b strings.Builder
	for i, ch := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(ch)
	}
	return sign + b.String() + frac
}

// fitText shortens s with an ellipsis until it fits width at the current font.
func fitText(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

func hexRGB(hex string) (int, int, int) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 33, 37, 41
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 33, 37, 41
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}

func paymentMethodLabel(m models.PaymentMethod) string {
	switch m {
	case models.PaymentMethodUPI:
		return "UPI"
	case models.PaymentMethodNetBanking:
		return "Net Banking"
	case "":
		return "-"
	}
	return strings.ToUpper(string(m[:1])) + string(m[1:])
}

func derefOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
