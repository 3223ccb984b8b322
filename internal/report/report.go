// Package report renders a completed analysis into a downloadable PDF.
// Rendering happens on demand from the completed record; it is not part
// of the job state machine.
package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/mietcheck/mietcheck/pkg/models"
)

var statusLabels = map[models.FindingStatus]string{
	models.FindingOK:      "In Ordnung",
	models.FindingWarning: "Warnung",
	models.FindingError:   "Fehler",
	models.FindingUnclear: "Unklar",
}

// Render produces the PDF report for a successful analysis.
func Render(result *models.AnalysisResult) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("MietCheck Prüfbericht", true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, tr("MietCheck Prüfbericht"))
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(120, 120, 120)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Erstellt am %s", time.Now().Format("02.01.2006"))))
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(12)

	if result.FloorArea != nil {
		source := "laut Abrechnung"
		if result.FloorArea.Source == models.FloorAreaUserSupplied {
			source = "laut Nutzerangabe"
		}
		pdf.SetFont("Helvetica", "", 10)
		pdf.Cell(0, 6, tr(fmt.Sprintf("Wohnfläche: %.1f m² (%s)", result.FloorArea.SquareMeters, source)))
		pdf.Ln(10)
	}

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, tr("Geprüfte Positionen"))
	pdf.Ln(10)

	for _, f := range result.Findings {
		label, ok := statusLabels[f.Status]
		if !ok {
			label = string(f.Status)
		}

		pdf.SetFont("Helvetica", "B", 10)
		pdf.Cell(0, 6, tr(fmt.Sprintf("%s — %s (%.2f €)", f.Position, label, f.AmountEUR)))
		pdf.Ln(6)

		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(0, 5, tr(f.Explanation), "", "L", false)
		if f.Evidence != "" {
			pdf.SetFont("Helvetica", "I", 8)
			pdf.MultiCell(0, 4, tr(fmt.Sprintf("Beleg: \"%s\"", f.Evidence)), "", "L", false)
		}
		if f.SavingsEUR > 0 {
			pdf.SetFont("Helvetica", "", 9)
			pdf.Cell(0, 5, tr(fmt.Sprintf("Einsparpotenzial: %.2f €", f.SavingsEUR)))
			pdf.Ln(5)
		}
		pdf.Ln(4)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, tr("Zusammenfassung"))
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 5, tr(result.Summary), "", "L", false)
	pdf.Ln(4)

	if result.TotalSavingsEUR > 0 {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(0, 7, tr(fmt.Sprintf("Mögliches Einsparpotenzial insgesamt: %.2f €", result.TotalSavingsEUR)))
		pdf.Ln(7)
	}

	if result.DisputeLetter != "" {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 14)
		pdf.Cell(0, 9, tr("Widerspruchsschreiben (Entwurf)"))
		pdf.Ln(12)
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, tr(result.DisputeLetter), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render report pdf: %w", err)
	}
	return buf.Bytes(), nil
}
