package receipts

import (
	_ "embed"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/domain"
)

//go:embed templates/recibo.html
var receiptTemplate string

var placeholder = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

func escapeHTML(s string) string { return htmlEscaper.Replace(s) }

// FormatDate renders an issue date as dd/mm/yyyy.
func FormatDate(t time.Time) string { return t.Format("02/01/2006") }

// FormatAmount renders a numeric amount with two decimals and passes anything
// else through unchanged.
func FormatAmount(a domain.Amount) string {
	s, _ := a.Format()
	return s
}

// Render substitutes {{key}} placeholders in tpl. Values are escaped here;
// unknown keys render empty.
func Render(tpl string, data map[string]string) string {
	return placeholder.ReplaceAllStringFunc(tpl, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		return escapeHTML(data[key])
	})
}

// RenderReceipt produces the receipt document for rec as issued on issued.
func RenderReceipt(rec domain.Receipt, notes string, issued time.Time) []byte {
	data := map[string]string{
		"id":           strconv.FormatInt(rec.ID, 10),
		"fechaEmision": FormatDate(issued),
		"nombre":       rec.ClientName,
		"email":        rec.ClientEmail,
		"metodo":       rec.Method,
		"concepto":     rec.Concept,
		"monto":        FormatAmount(rec.Amount),
		"notas":        notes,
	}
	return []byte(Render(receiptTemplate, data))
}
