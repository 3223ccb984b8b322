// Package mailer delivers the finished analysis report by email. Email
// delivery is a best-effort side effect: failures are logged and never
// change a job's outcome.
package mailer

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/jordan-wright/email"
	"github.com/rs/zerolog/log"

	"github.com/mietcheck/mietcheck/pkg/models"
)

const resultSubject = "Ihre Nebenkostenprüfung ist fertig"

var resultTemplate = template.Must(template.New("result").Parse(`<html><body>
<p>Guten Tag,</p>
<p>die Prüfung Ihrer Nebenkostenabrechnung ist abgeschlossen.</p>
<p><b>Ergebnis:</b> {{.Summary}}</p>
{{if gt .TotalSavingsEUR 0.0}}<p><b>Mögliches Einsparpotenzial:</b> {{printf "%.2f" .TotalSavingsEUR}} €</p>{{end}}
<p>Den vollständigen Bericht finden Sie im Anhang.</p>
<p>Ihr MietCheck-Team</p>
</body></html>`))

// Mailer sends result notifications through a pluggable transport.
type Mailer struct {
	Transport Transport
	sender    string
}

// New creates a Mailer with the given sender address and transport.
func New(sender string, transport Transport) *Mailer {
	return &Mailer{Transport: transport, sender: sender}
}

// SendResult emails the analysis outcome with the rendered PDF report
// attached. reportPDF may be nil, in which case no attachment is added.
func (m *Mailer) SendResult(to string, result *models.AnalysisResult, reportPDF []byte) error {
	var body bytes.Buffer
	if err := resultTemplate.Execute(&body, result); err != nil {
		return fmt.Errorf("render result email: %w", err)
	}

	e := email.NewEmail()
	e.From = m.sender
	e.To = []string{to}
	e.Subject = resultSubject
	e.HTML = body.Bytes()

	if len(reportPDF) > 0 {
		if _, err := e.Attach(bytes.NewReader(reportPDF), "mietcheck-bericht.pdf", "application/pdf"); err != nil {
			return fmt.Errorf("attach report: %w", err)
		}
	}

	if err := m.Transport.Send(e); err != nil {
		return fmt.Errorf("send result email: %w", err)
	}

	log.Info().Str("to", to).Msg("Result email delivered")
	return nil
}
