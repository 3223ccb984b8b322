// Package preprocess normalizes uploaded statement files into a bounded
// content payload for the analysis client. PDFs are reduced to their
// embedded text where possible; scanned documents fall back to raw
// bytes; images are downscaled and re-encoded to bound token cost.
package preprocess

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/mietcheck/mietcheck/pkg/models"
)

// Payload bounds.
const (
	// MaxPDFTextChars caps the extracted text forwarded per PDF.
	MaxPDFTextChars = 15000
	// MinPDFTextChars below which a PDF is treated as scanned.
	MinPDFTextChars = 200
	// MaxPDFBytes caps the raw-bytes fallback for scanned PDFs.
	MaxPDFBytes = 7 << 20
)

// TruncationMarker is appended when extracted text exceeds the cap.
const TruncationMarker = "\n\n[Hinweis: Der Dokumenttext wurde gekürzt, da er die maximale Länge überschreitet.]"

// UnprocessablePlaceholder replaces a scanned PDF that is too large to
// forward. The user is told explicitly instead of silently dropping it.
const UnprocessablePlaceholder = "Dieses PDF-Dokument konnte nicht verarbeitet werden " +
	"(kein auslesbarer Text, Datei zu groß). Bitte laden Sie stattdessen Fotos der einzelnen Seiten hoch."

// jointDocumentNote tells the model multiple uploads form one statement.
const jointDocumentNote = "Die folgenden Dateien sind Seiten eines einzigen zusammenhängenden Abrechnungsdokuments " +
	"und müssen gemeinsam analysiert werden."

// PartKind discriminates payload parts.
type PartKind string

const (
	PartText     PartKind = "text"
	PartImage    PartKind = "image"
	PartDocument PartKind = "document"
)

// Part is one element of the content payload. Text parts carry Text;
// image and document parts carry Data plus its media type.
type Part struct {
	Kind      PartKind
	Text      string
	Data      []byte
	MediaType string
}

// Payload is the bounded content handed to the analysis client.
type Payload struct {
	Parts []Part
	// Note is an extra instruction prepended to the user content.
	Note string
}

// ErrUnsupportedMediaType is returned for files that are neither PDFs
// nor images. The HTTP layer rejects these before preprocessing.
var ErrUnsupportedMediaType = fmt.Errorf("unsupported media type")

// Build converts the uploaded files into a bounded payload. Parse
// failures on oversized PDFs degrade to an explicit placeholder rather
// than propagating.
func Build(files []models.UploadedFile) (*Payload, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files to preprocess")
	}

	p := &Payload{}
	for _, f := range files {
		part, err := buildPart(f)
		if err != nil {
			return nil, fmt.Errorf("preprocess %s: %w", f.Name, err)
		}
		p.Parts = append(p.Parts, part)
	}

	if len(files) > 1 {
		p.Note = jointDocumentNote
	}

	log.Debug().
		Int("files", len(files)).
		Int("parts", len(p.Parts)).
		Int("textTokens", estimateTokens(p.textContent())).
		Msg("Preprocessed upload payload")

	return p, nil
}

func buildPart(f models.UploadedFile) (Part, error) {
	switch {
	case f.MediaType == "application/pdf":
		return buildPDFPart(f), nil
	case strings.HasPrefix(f.MediaType, "image/"):
		return buildImagePart(f)
	default:
		return Part{}, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, f.MediaType)
	}
}

func buildPDFPart(f models.UploadedFile) Part {
	text, err := extractPDFText(f.Data)
	if err != nil {
		log.Warn().Err(err).Str("file", f.Name).Msg("PDF text extraction failed")
	}

	text = strings.TrimSpace(text)
	if err == nil && len(text) >= MinPDFTextChars {
		if len(text) > MaxPDFTextChars {
			// Back up to a rune boundary; umlauts straddling the cap
			// must not turn into invalid UTF-8.
			cut := MaxPDFTextChars
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			text = text[:cut] + TruncationMarker
		}
		return Part{Kind: PartText, Text: text}
	}

	// Scanned or unparseable PDF: forward the raw document unless it
	// blows the size cap, in which case the user gets told explicitly.
	if f.Size > MaxPDFBytes {
		log.Warn().Str("file", f.Name).Int64("size", f.Size).Msg("Scanned PDF exceeds size cap, degrading to placeholder")
		return Part{Kind: PartText, Text: UnprocessablePlaceholder}
	}
	return Part{Kind: PartDocument, Data: f.Data, MediaType: "application/pdf"}
}

func buildImagePart(f models.UploadedFile) (Part, error) {
	compressed, err := compressImage(f.Data)
	if err != nil {
		return Part{}, fmt.Errorf("compress image: %w", err)
	}
	// Always forward the compressed bytes, never the original.
	return Part{Kind: PartImage, Data: compressed, MediaType: "image/jpeg"}, nil
}

func (p *Payload) textContent() string {
	var b strings.Builder
	for _, part := range p.Parts {
		if part.Kind == PartText {
			b.WriteString(part.Text)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
