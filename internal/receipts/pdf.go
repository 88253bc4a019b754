package receipts

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/diagnosis/pillatuvisa-backoffice/internal/domain"
)

// PDF renders the receipt as an A4 document dated by its creation day.
func (s *Store) PDF(ctx context.Context, id int64) ([]byte, error) {
	rec, err := s.Record(ctx, id)
	if err != nil {
		return nil, err
	}
	return RenderPDF(*rec)
}

func RenderPDF(rec domain.Receipt) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetTitle(fmt.Sprintf("Recibo %d", rec.ID), true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(17, 24, 39)
	pdf.CellFormat(0, 10, "Pilla Tu Visa", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, tr("Comprobante Oficial de Pago"), "", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(107, 114, 128)
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("Recibo N.º %d", rec.ID)), "", 1, "R", false, 0, "")

	y := pdf.GetY() + 3
	pdf.SetDrawColor(220, 38, 38)
	pdf.SetLineWidth(0.8)
	pdf.Line(20, y, 190, y)
	pdf.SetY(y + 8)

	rows := [][2]string{
		{"Fecha de Emisión:", FormatDate(rec.CreatedAt)},
		{"Cliente:", rec.ClientName},
		{"Email:", rec.ClientEmail},
		{"Método de Pago:", rec.Method},
	}
	for _, r := range rows {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetTextColor(107, 114, 128)
		pdf.CellFormat(45, 7, tr(r[0]), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(17, 24, 39)
		pdf.CellFormat(0, 7, tr(r[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(8)

	amount := "$" + FormatAmount(rec.Amount)
	pdf.SetFillColor(249, 250, 251)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetTextColor(107, 114, 128)
	pdf.CellFormat(120, 9, "CONCEPTO DEL SERVICIO", "", 0, "L", true, 0, "")
	pdf.CellFormat(50, 9, "MONTO PAGADO", "", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 12)
	pdf.SetTextColor(17, 24, 39)
	pdf.SetDrawColor(229, 231, 235)
	pdf.SetLineWidth(0.2)
	pdf.CellFormat(120, 10, tr(rec.Concept), "B", 0, "L", false, 0, "")
	pdf.CellFormat(50, 10, tr(amount), "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(107, 114, 128)
	pdf.CellFormat(120, 10, "TOTAL", "", 0, "L", false, 0, "")
	pdf.SetTextColor(17, 24, 39)
	pdf.CellFormat(50, 10, tr(amount), "", 1, "R", false, 0, "")

	pdf.Ln(20)
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(107, 114, 128)
	pdf.MultiCell(0, 5, tr("Gracias por confiar en Pilla Tu Visa. Este comprobante certifica el pago del servicio indicado."), "", "C", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
