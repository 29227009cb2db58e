package certificates

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/signintech/gopdf"
)

// Layout of the text overlaid on a landscape letter template, in points from
// the top-left corner.
const (
	pageWidth    = 792.0
	pageHeight   = 612.0
	centerX      = 400.0
	nameY        = 312.0
	identityY    = 352.0
	nameSize     = 24
	identitySize = 14

	identityPrefix = "Identificación: "
	fontName       = "certificate"
)

var ErrInvalidTemplate = errors.New("certificate template is not a PDF")

// Renderer overlays an attendee's name and identity on the first page of a
// PDF template.
type Renderer struct {
	font []byte
}

// NewRenderer loads the TTF font used for the overlay.
func NewRenderer(fontPath string) (*Renderer, error) {
	font, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}
	return &Renderer{font: font}, nil
}

// Render returns the template with the upper-cased name and the identity line
// centered on it.
func (r *Renderer) Render(name, identity string, template []byte) (out []byte, err error) {
	if !IsPDF(template) {
		return nil, ErrInvalidTemplate
	}
	// the PDF importer panics on malformed input
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, rec)
		}
	}()

	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: gopdf.Rect{W: pageWidth, H: pageHeight}})
	pdf.AddPage()

	var source io.ReadSeeker = bytes.NewReader(template)
	tpl := pdf.ImportPageStream(&source, 1, "/MediaBox")
	pdf.UseImportedTemplate(tpl, 0, 0, pageWidth, pageHeight)

	if err := pdf.AddTTFFontData(fontName, r.font); err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}
	pdf.SetTextColor(0, 0, 0)

	if err := drawCentered(pdf, strings.ToUpper(name), nameSize, nameY); err != nil {
		return nil, err
	}
	if err := drawCentered(pdf, identityPrefix+identity, identitySize, identityY); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := pdf.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func drawCentered(pdf *gopdf.GoPdf, text string, size int, y float64) error {
	if err := pdf.SetFont(fontName, "", size); err != nil {
		return fmt.Errorf("failed to set font: %w", err)
	}
	width, err := pdf.MeasureTextWidth(text)
	if err != nil {
		return fmt.Errorf("failed to measure %q: %w", text, err)
	}
	pdf.SetXY(centerX-width/2, y)
	if err := pdf.Cell(nil, text); err != nil {
		return fmt.Errorf("failed to draw %q: %w", text, err)
	}
	return nil
}

// IsPDF reports whether data starts with the PDF header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}
