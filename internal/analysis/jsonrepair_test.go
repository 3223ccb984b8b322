package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mietcheck/mietcheck/pkg/models"
)

func TestParseResultPlainObject(t *testing.T) {
	raw := `{"validation":"ok","findings":[{"position":"Heizung","status":"ok","amount_eur":420.5,"explanation":"plausibel","evidence":"Heizung 420,50 EUR","savings_eur":0}],"summary":"Alles in Ordnung.","total_savings_eur":0}`

	res, err := ParseResult(raw, false)
	require.NoError(t, err)
	assert.Equal(t, models.ValidationOK, res.Validation)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "Heizung", res.Findings[0].Position)
	assert.InDelta(t, 420.5, res.Findings[0].AmountEUR, 0.001)
}

func TestParseResultSkipsSurroundingProse(t *testing.T) {
	raw := "Hier ist die Analyse:\n```json\n" +
		`{"validation":"ok","findings":[],"summary":"ok","total_savings_eur":0}` +
		"\n```\nViel Erfolg!"

	res, err := ParseResult(raw, false)
	require.NoError(t, err)
	assert.Equal(t, models.ValidationOK, res.Validation)
}

func TestParseResultNoJSON(t *testing.T) {
	_, err := ParseResult("Ich kann dieses Dokument leider nicht analysieren.", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoStructuredOutput)
	assert.Equal(t, KindMalformed, KindOf(err))
}

func TestParseResultTruncatedMidStringDropsTrailingFinding(t *testing.T) {
	// Response cut off mid-string inside the findings array: the
	// half-written finding must be dropped, not closed into a
	// corrupted element.
	raw := `{"validation":"ok","findings":[` +
		`{"position":"Wasser","status":"ok","amount_eur":120,"explanation":"plausibel","evidence":"Wasser 120 EUR","savings_eur":0},` +
		`{"position":"Hausmeister","status":"feh`

	res, err := ParseResult(raw, true)
	require.NoError(t, err)
	assert.Equal(t, models.ValidationOK, res.Validation)
	require.Len(t, res.Findings, 1, "incomplete trailing finding is dropped")
	assert.Equal(t, "Wasser", res.Findings[0].Position)
}

func TestParseResultTruncatedAfterCompleteElement(t *testing.T) {
	raw := `{"validation":"ok","findings":[` +
		`{"position":"Müll","status":"warnung","amount_eur":80,"explanation":"hoch","evidence":"Müll 80 EUR","savings_eur":12},`

	res, err := ParseResult(raw, true)
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "Müll", res.Findings[0].Position)
}

func TestParseResultTruncatedMidKeyInFirstFinding(t *testing.T) {
	raw := `{"validation":"ok","findings":[{"posi`

	res, err := ParseResult(raw, true)
	require.NoError(t, err)
	assert.Empty(t, res.Findings)
}

func TestParseResultTruncatedInTopLevelString(t *testing.T) {
	raw := `{"validation":"ok","findings":[],"summary":"Die Abrechnung ist größtent`

	res, err := ParseResult(raw, true)
	require.NoError(t, err)
	assert.Equal(t, models.ValidationOK, res.Validation)
	assert.Empty(t, res.Summary, "the sliced summary string is dropped")
}

func TestParseResultMissingValidation(t *testing.T) {
	_, err := ParseResult(`{"findings":[],"summary":"?"}`, false)
	require.Error(t, err)
	assert.Equal(t, KindMalformed, KindOf(err))
}

func TestRepairFragmentEscapedQuotes(t *testing.T) {
	raw := `{"validation":"ok","findings":[],"summary":"Er sagte \"gut\"","total_savings_eur":0,"dispute_letter":"Sehr geehrte Da`

	res, err := ParseResult(raw, true)
	require.NoError(t, err)
	assert.Equal(t, `Er sagte "gut"`, res.Summary)
	assert.Empty(t, res.DisputeLetter)
}
