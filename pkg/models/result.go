// Package models contains domain models for mietcheck.
package models

// ValidationStatus is the model's own verdict on whether the uploaded
// statement was usable at all, distinct from the substantive findings.
type ValidationStatus string

const (
	// ValidationOK means the statement was readable and analyzable.
	ValidationOK ValidationStatus = "ok"
	// ValidationUnreadable means the document could not be read.
	ValidationUnreadable ValidationStatus = "nicht_lesbar"
	// ValidationNotAStatement means the document is not a utility-bill statement.
	ValidationNotAStatement ValidationStatus = "keine_abrechnung"
	// ValidationIncomplete means pages or mandatory sections are missing.
	ValidationIncomplete ValidationStatus = "unvollstaendig"
)

// FindingStatus classifies a single line-item finding.
type FindingStatus string

const (
	FindingOK      FindingStatus = "ok"
	FindingWarning FindingStatus = "warnung"
	FindingError   FindingStatus = "fehler"
	FindingUnclear FindingStatus = "unklar"
)

// Finding is one line-item verdict from the analysis.
type Finding struct {
	Position    string        `json:"position"`
	Status      FindingStatus `json:"status"`
	AmountEUR   float64       `json:"amount_eur"`
	Explanation string        `json:"explanation"`
	Evidence    string        `json:"evidence"`
	SavingsEUR  float64       `json:"savings_eur"`
}

// FloorAreaSource marks where a floor area value came from.
type FloorAreaSource string

const (
	FloorAreaDetected     FloorAreaSource = "detected"
	FloorAreaUserSupplied FloorAreaSource = "user"
)

// FloorArea is the apartment floor area used for allocation-key checks.
type FloorArea struct {
	SquareMeters float64         `json:"square_meters"`
	Source       FloorAreaSource `json:"source"`
}

// AnalysisResult is the structured outcome of one statement analysis.
type AnalysisResult struct {
	Validation      ValidationStatus `json:"validation"`
	Findings        []Finding        `json:"findings"`
	Summary         string           `json:"summary"`
	TotalSavingsEUR float64          `json:"total_savings_eur"`
	DisputeLetter   string           `json:"dispute_letter,omitempty"`
	FloorArea       *FloorArea       `json:"floor_area,omitempty"`
}

// Usable reports whether the analysis reached a substantive verdict.
func (r *AnalysisResult) Usable() bool {
	return r.Validation == ValidationOK
}
