// Package messages holds the pre-written, non-technical texts returned
// to polling clients. Every failure kind maps to a fixed template;
// technical detail stays in the server logs.
package messages

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/mietcheck/mietcheck/pkg/models"
)

// Template keys.
const (
	KeyUnreadable    = "validation_nicht_lesbar"
	KeyNotAStatement = "validation_keine_abrechnung"
	KeyIncomplete    = "validation_unvollstaendig"
	KeyAuthFailure   = "error_auth"
	KeyRateLimited   = "error_rate_limit"
	KeyGeneric       = "error_generic"
	KeyRefundIssued  = "refund_issued"
	KeyRefundFailed  = "refund_failed"
	KeyUnknown       = "session_unknown"
)

var defaults = map[string]string{
	KeyUnreadable:    "Ihr Dokument konnte leider nicht gelesen werden. Bitte laden Sie eine besser lesbare Version oder Fotos der einzelnen Seiten hoch.",
	KeyNotAStatement: "Das hochgeladene Dokument scheint keine Nebenkostenabrechnung zu sein. Bitte prüfen Sie, ob Sie die richtige Datei ausgewählt haben.",
	KeyIncomplete:    "Die Abrechnung scheint unvollständig zu sein. Bitte laden Sie alle Seiten des Dokuments hoch.",
	KeyAuthFailure:   "Die Analyse ist derzeit nicht verfügbar. Bitte wenden Sie sich an unseren Support.",
	KeyRateLimited:   "Unser System ist gerade stark ausgelastet. Bitte versuchen Sie es in wenigen Minuten erneut.",
	KeyGeneric:       "Bei der Analyse ist leider ein Fehler aufgetreten. Bitte versuchen Sie es in Kürze erneut.",
	KeyRefundIssued:  "Wir haben Ihnen den Betrag von %.2f € zurückerstattet.",
	KeyRefundFailed:  "Die automatische Rückerstattung ist fehlgeschlagen; unser Support kümmert sich darum.",
	KeyUnknown:       "Zu dieser Sitzung liegen keine Daten mehr vor. Bitte starten Sie eine neue Prüfung.",
}

// Catalog resolves message templates, with optional overrides loaded
// from a YAML file.
type Catalog struct {
	mu   sync.RWMutex
	m    map[string]string
	path string
}

// NewCatalog creates a catalog with the compiled-in defaults.
func NewCatalog() *Catalog {
	m := make(map[string]string, len(defaults))
	for k, v := range defaults {
		m[k] = v
	}
	return &Catalog{m: m}
}

// Load merges overrides from the YAML file at path over the defaults.
func (c *Catalog) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read message catalog: %w", err)
	}

	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parse message catalog: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range overrides {
		c.m[k] = v
	}
	c.path = path

	log.Info().Str("path", path).Int("overrides", len(overrides)).Msg("Message catalog loaded")
	return nil
}

// Get returns the template for key, falling back to the generic error
// text for unknown keys.
func (c *Catalog) Get(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if msg, ok := c.m[key]; ok {
		return msg
	}
	return c.m[KeyGeneric]
}

// ValidationMessage composes the user-facing text for a failed
// validation: the fixed per-kind template plus the model's own
// explanation when it offered one.
func (c *Catalog) ValidationMessage(status models.ValidationStatus, modelSummary string) string {
	var key string
	switch status {
	case models.ValidationUnreadable:
		key = KeyUnreadable
	case models.ValidationNotAStatement:
		key = KeyNotAStatement
	case models.ValidationIncomplete:
		key = KeyIncomplete
	default:
		key = KeyGeneric
	}

	msg := c.Get(key)
	if s := strings.TrimSpace(modelSummary); s != "" {
		msg += " (" + s + ")"
	}
	return msg
}

// RefundLine renders the refund outcome suffix.
func (c *Catalog) RefundLine(succeeded bool, amountCents int64) string {
	if !succeeded {
		return c.Get(KeyRefundFailed)
	}
	return fmt.Sprintf(c.Get(KeyRefundIssued), float64(amountCents)/100)
}
