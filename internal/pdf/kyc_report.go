package pdf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"carwash/internal/models"
)

// Generator — интерфейс (удобно мокать в тестах)
type Generator interface {
	GenerateKYCReport(data KYCReportData) ([]byte, error)
}

// ReportGenerator рисует KYC-досье. Без TTF-шрифта падает обратно на Helvetica.
type ReportGenerator struct {
	FontPath string
	fontName string
}

type KYCReportData struct {
	User        *models.User
	Profile     *models.KYCProfile
	Documents   []*models.KYCDocument
	Audit       []*models.KYCAuditLogEntry
	GeneratedAt time.Time
}

func NewReportGenerator(fontPath string) *ReportGenerator {
	return &ReportGenerator{FontPath: fontPath, fontName: "DejaVu"}
}

type writer struct {
	pdf  *gofpdf.Fpdf
	font string
	tr   func(string) string
}

func (g *ReportGenerator) GenerateKYCReport(data KYCReportData) ([]byte, error) {
	if data.Profile == nil {
		return nil, fmt.Errorf("kyc report: profile is required")
	}
	if data.GeneratedAt.IsZero() {
		data.GeneratedAt = time.Now()
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("KYC dossier #%d", data.Profile.UserID), true)
	pdf.SetAuthor("Carwash KYC", true)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	w := g.newWriter(pdf)

	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(w.font, "", 9)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	// ===== Заголовок
	pdf.SetFont(w.font, "B", 18)
	pdf.CellFormat(0, 10, "KYC DOSSIER", "", 1, "C", false, 0, "")
	pdf.SetFont(w.font, "", 11)
	pdf.CellFormat(0, 7, w.tr(fmt.Sprintf("User #%d  generated %s",
		data.Profile.UserID, data.GeneratedAt.Format("02.01.2006 15:04"))), "", 1, "C", false, 0, "")
	w.hr()

	p := data.Profile
	w.section("Account")
	if data.User != nil {
		w.kv("Name", data.User.Name)
		w.kv("Email", data.User.Email)
		w.kv("Phone", data.User.Phone)
		w.kv("Role", data.User.Role)
		w.kv("Account status", data.User.Status)
	}
	w.kv("KYC status", string(p.KYCStatus))
	w.kv("Submitted", fmtTime(p.KYCSubmittedAt))
	w.kv("Reviewed", fmtTime(p.KYCReviewedAt))
	if p.KYCReviewedBy != nil {
		w.kv("Reviewed by", fmt.Sprintf("#%d", *p.KYCReviewedBy))
	}
	if p.RejectionReason != "" {
		w.kv("Rejection reason", p.RejectionReason)
	}
	w.hr()

	w.section("Profile")
	w.kv("Full name", p.FullName)
	w.kv("Date of birth", fmtDate(p.DateOfBirth))
	w.kv("National ID", p.NationalID)
	w.kv("Address", strings.Trim(strings.Join([]string{p.Address, p.City, p.PostalCode, p.Country}, ", "), ", "))
	w.kv("Phone verified", yesNo(p.PhoneVerified))
	w.kv("Email verified", yesNo(p.EmailVerified))
	for _, kv := range roleFields(p) {
		w.kv(kv[0], kv[1])
	}
	w.hr()

	w.section(fmt.Sprintf("Documents (%d)", len(data.Documents)))
	if len(data.Documents) == 0 {
		w.line("No documents uploaded.")
	}
	for _, d := range data.Documents {
		pdf.SetFont(w.font, "B", 11)
		pdf.CellFormat(0, 6, w.tr(fmt.Sprintf("#%d %s: %s", d.ID, d.DocumentType, d.VerificationStatus)), "", 1, "L", false, 0, "")
		if d.DocumentNumber != "" {
			w.kv("Number", d.DocumentNumber)
		}
		w.kv("Expiry", fmtDate(d.ExpiryDate))
		w.kv("Uploaded", d.CreatedAt.Format("02.01.2006 15:04"))
		for _, c := range decodeChecks(d.VerificationNotes) {
			mark := "PASS"
			if !c.Passed {
				mark = "FAIL"
			}
			text := fmt.Sprintf("  [%s] %s", mark, c.Name)
			if c.Detail != "" {
				text += ": " + c.Detail
			}
			w.line(text)
		}
		pdf.Ln(1)
	}
	w.hr()

	w.section("Audit trail")
	if len(data.Audit) == 0 {
		w.line("No audit entries.")
	}
	pdf.SetFont(w.font, "", 9)
	for _, e := range data.Audit {
		actor := "system"
		if e.ChangedBy != 0 {
			actor = fmt.Sprintf("#%d", e.ChangedBy)
		}
		pdf.MultiCell(0, 5, w.tr(fmt.Sprintf("%s  %-28s by %s", e.CreatedAt.Format("02.01.2006 15:04:05"), e.Action, actor)), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render kyc report: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *ReportGenerator) newWriter(pdf *gofpdf.Fpdf) *writer {
	if g.FontPath != "" {
		if _, err := os.Stat(g.FontPath); err == nil {
			// AddUTF8Font принимает путь до TTF
			pdf.AddUTF8Font(g.fontName, "", g.FontPath)
			pdf.AddUTF8Font(g.fontName, "B", g.FontPath)
			return &writer{pdf: pdf, font: g.fontName, tr: func(s string) string { return s }}
		}
	}
	return &writer{pdf: pdf, font: "Helvetica", tr: pdf.UnicodeTranslatorFromDescriptor("")}
}

// ===== helpers =====

func (w *writer) section(s string) {
	w.pdf.SetFont(w.font, "B", 12)
	w.pdf.CellFormat(0, 7, w.tr(s), "", 1, "L", false, 0, "")
	w.pdf.SetFont(w.font, "", 11)
}

func (w *writer) kv(key, val string) {
	if val == "" {
		val = "-"
	}
	w.pdf.SetFont(w.font, "B", 10)
	w.pdf.CellFormat(45, 6, w.tr(key+":"), "", 0, "L", false, 0, "")
	w.pdf.SetFont(w.font, "", 10)
	w.pdf.MultiCell(0, 6, w.tr(val), "", "L", false)
}

func (w *writer) line(s string) {
	w.pdf.SetFont(w.font, "", 10)
	w.pdf.MultiCell(0, 5, w.tr(s), "", "L", false)
}

func (w *writer) hr() {
	y := w.pdf.GetY() + 1.5
	w.pdf.SetLineWidth(0.2)
	w.pdf.Line(20, y, 190, y)
	w.pdf.SetY(y + 2)
}

func roleFields(p *models.KYCProfile) [][2]string {
	var out [][2]string
	add := func(k, v string) {
		if v != "" {
			out = append(out, [2]string{k, v})
		}
	}
	add("Payment method", p.PreferredPaymentMethod)
	if p.YearsOfExperience != nil {
		add("Experience, years", fmt.Sprint(*p.YearsOfExperience))
	}
	add("Certifications", p.Certifications)
	add("Insurance number", p.InsuranceNumber)
	add("Emergency contact", strings.TrimSpace(p.EmergencyContact+" "+p.EmergencyPhone))
	add("Business name", p.BusinessName)
	add("Registration no.", p.BusinessRegistrationNumber)
	add("Tax ID", p.TaxIdentificationNumber)
	if p.NumberOfEmployees != nil {
		add("Employees", fmt.Sprint(*p.NumberOfEmployees))
	}
	add("Business address", p.BusinessAddress)
	add("Bank", strings.TrimSpace(p.BankName+" "+p.BankAccountNumber))
	add("Account name", p.BankAccountName)
	return out
}

func decodeChecks(notes string) []models.CheckResult {
	if notes == "" {
		return nil
	}
	var checks []models.CheckResult
	if err := json.Unmarshal([]byte(notes), &checks); err != nil {
		return []models.CheckResult{{Name: "notes", Passed: true, Detail: notes}}
	}
	return checks
}

func fmtTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("02.01.2006 15:04")
}

func fmtDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("02.01.2006")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
