package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mietcheck/mietcheck/pkg/models"
)

// stubExtraction replaces PDF text extraction for the duration of a test.
func stubExtraction(t *testing.T, text string, err error) {
	t.Helper()
	orig := extractPDFText
	extractPDFText = func([]byte) (string, error) { return text, err }
	t.Cleanup(func() { extractPDFText = orig })
}

func pdfFile(size int) models.UploadedFile {
	return models.UploadedFile{
		Name:      "abrechnung.pdf",
		MediaType: "application/pdf",
		Size:      int64(size),
		Data:      make([]byte, size),
	}
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestBuildTextPDF(t *testing.T) {
	stubExtraction(t, strings.Repeat("Betriebskosten 2024 ", 50), nil)

	p, err := Build([]models.UploadedFile{pdfFile(1024)})
	require.NoError(t, err)
	require.Len(t, p.Parts, 1)
	assert.Equal(t, PartText, p.Parts[0].Kind)
	assert.Contains(t, p.Parts[0].Text, "Betriebskosten")
	assert.NotContains(t, p.Parts[0].Text, TruncationMarker)
	assert.Empty(t, p.Note, "single file carries no joint-document note")
}

func TestBuildTruncatesLongText(t *testing.T) {
	// 20k characters of extractable text gets capped with a marker.
	stubExtraction(t, strings.Repeat("a", 20000), nil)

	p, err := Build([]models.UploadedFile{pdfFile(1024)})
	require.NoError(t, err)
	require.Len(t, p.Parts, 1)

	text := p.Parts[0].Text
	assert.True(t, strings.HasSuffix(text, TruncationMarker))
	assert.Len(t, text, MaxPDFTextChars+len(TruncationMarker))
}

func TestBuildTruncationKeepsValidUTF8(t *testing.T) {
	// "a" shifts every two-byte umlaut off the even byte offsets, so the
	// cap lands mid-rune.
	stubExtraction(t, "a"+strings.Repeat("ä", MaxPDFTextChars), nil)

	p, err := Build([]models.UploadedFile{pdfFile(1024)})
	require.NoError(t, err)
	require.Len(t, p.Parts, 1)

	text := p.Parts[0].Text
	assert.True(t, strings.HasSuffix(text, TruncationMarker))
	assert.True(t, utf8.ValidString(text), "truncation must not split a rune")
	body := strings.TrimSuffix(text, TruncationMarker)
	assert.LessOrEqual(t, len(body), MaxPDFTextChars)
	assert.True(t, strings.HasSuffix(body, "ä"))
}

func TestBuildScannedPDFFallsBackToRawBytes(t *testing.T) {
	stubExtraction(t, "kaum text", nil)

	p, err := Build([]models.UploadedFile{pdfFile(2048)})
	require.NoError(t, err)
	require.Len(t, p.Parts, 1)
	assert.Equal(t, PartDocument, p.Parts[0].Kind)
	assert.Equal(t, "application/pdf", p.Parts[0].MediaType)
	assert.Len(t, p.Parts[0].Data, 2048)
}

func TestBuildOversizedScannedPDFDegradesToPlaceholder(t *testing.T) {
	stubExtraction(t, "", nil)

	p, err := Build([]models.UploadedFile{pdfFile(MaxPDFBytes + 1)})
	require.NoError(t, err)
	require.Len(t, p.Parts, 1)
	assert.Equal(t, PartText, p.Parts[0].Kind)
	assert.Equal(t, UnprocessablePlaceholder, p.Parts[0].Text)
}

func TestBuildParseFailureOnOversizedPDFDegradesToPlaceholder(t *testing.T) {
	stubExtraction(t, "", assert.AnError)

	p, err := Build([]models.UploadedFile{pdfFile(MaxPDFBytes + 1)})
	require.NoError(t, err, "parse failure on an oversized PDF must not propagate")
	require.Len(t, p.Parts, 1)
	assert.Equal(t, UnprocessablePlaceholder, p.Parts[0].Text)
}

func TestBuildCompressesImages(t *testing.T) {
	data := testJPEG(t, 3200, 2400)

	p, err := Build([]models.UploadedFile{{
		Name:      "seite1.jpg",
		MediaType: "image/jpeg",
		Size:      int64(len(data)),
		Data:      data,
	}})
	require.NoError(t, err)
	require.Len(t, p.Parts, 1)
	assert.Equal(t, PartImage, p.Parts[0].Kind)
	assert.Equal(t, "image/jpeg", p.Parts[0].MediaType)
	assert.NotEqual(t, data, p.Parts[0].Data, "original bytes are never forwarded")

	img, err := jpeg.Decode(bytes.NewReader(p.Parts[0].Data))
	require.NoError(t, err)
	assert.LessOrEqual(t, img.Bounds().Dx(), MaxImageEdge)
	assert.LessOrEqual(t, img.Bounds().Dy(), MaxImageEdge)
}

func TestBuildSmallImageStaysSmall(t *testing.T) {
	data := testJPEG(t, 400, 300)

	p, err := Build([]models.UploadedFile{{
		Name:      "seite1.jpg",
		MediaType: "image/jpeg",
		Size:      int64(len(data)),
		Data:      data,
	}})
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(p.Parts[0].Data))
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx(), "images below the bound are not upscaled")
}

func TestBuildMultiFileJointNote(t *testing.T) {
	stubExtraction(t, strings.Repeat("Seite ", 100), nil)
	data := testJPEG(t, 100, 100)

	p, err := Build([]models.UploadedFile{
		pdfFile(512),
		{Name: "seite2.jpg", MediaType: "image/jpeg", Size: int64(len(data)), Data: data},
	})
	require.NoError(t, err)
	assert.Len(t, p.Parts, 2)
	assert.NotEmpty(t, p.Note)
}

func TestBuildRejectsUnsupportedType(t *testing.T) {
	_, err := Build([]models.UploadedFile{{
		Name:      "tabelle.xlsx",
		MediaType: "application/vnd.ms-excel",
		Data:      []byte("x"),
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedMediaType)
}

func TestBuildEmptyInput(t *testing.T) {
	_, err := Build(nil)
	assert.Error(t, err)
}
