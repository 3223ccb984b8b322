package mailer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mietcheck/mietcheck/pkg/models"
)

func TestSendResult(t *testing.T) {
	mock := NewMock()
	m := New("noreply@mietcheck.example", mock)

	result := &models.AnalysisResult{
		Validation:      models.ValidationOK,
		Summary:         "Zwei Positionen sind zu beanstanden.",
		TotalSavingsEUR: 87.4,
	}

	err := m.SendResult("mieter@example.com", result, []byte("%PDF-1.7 fake"))
	require.NoError(t, err)

	sent := mock.LastSent()
	require.NotNil(t, sent)
	assert.Equal(t, []string{"mieter@example.com"}, sent.To)
	assert.Equal(t, "noreply@mietcheck.example", sent.From)
	assert.Contains(t, string(sent.HTML), "Zwei Positionen")
	assert.Contains(t, string(sent.HTML), "87.40")
	require.Len(t, sent.Attachments, 1)
	assert.Equal(t, "mietcheck-bericht.pdf", sent.Attachments[0].Filename)
}

func TestSendResultWithoutAttachment(t *testing.T) {
	mock := NewMock()
	m := New("noreply@mietcheck.example", mock)

	err := m.SendResult("mieter@example.com", &models.AnalysisResult{
		Validation: models.ValidationOK,
		Summary:    "Alles in Ordnung.",
	}, nil)
	require.NoError(t, err)

	sent := mock.LastSent()
	require.NotNil(t, sent)
	assert.Empty(t, sent.Attachments)
	assert.NotContains(t, string(sent.HTML), "Einsparpotenzial", "zero savings line is omitted")
}

func TestSendResultTransportFailure(t *testing.T) {
	mock := NewMock()
	mock.Err = assert.AnError
	m := New("noreply@mietcheck.example", mock)

	err := m.SendResult("mieter@example.com", &models.AnalysisResult{Validation: models.ValidationOK}, nil)
	assert.Error(t, err)
	assert.Equal(t, 0, mock.SentCount())
}

func TestSMTPConfigConfigured(t *testing.T) {
	assert.False(t, SMTPConfig{}.Configured())
	assert.True(t, SMTPConfig{Host: "smtp.example.com"}.Configured())
}
