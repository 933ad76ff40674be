package certificates

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/skip2/go-qrcode"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/nexstream/backend/internal/models"
)

const (
	canvasWidth  = 1600
	canvasHeight = 1130
	qrSize       = 220
	border       = 36
)

var (
	paper  = color.NRGBA{R: 252, G: 249, B: 240, A: 255}
	accent = color.NRGBA{R: 24, G: 60, B: 110, A: 255}
	ink    = color.NRGBA{R: 30, G: 30, B: 30, A: 255}
	muted  = color.NRGBA{R: 110, G: 110, B: 110, A: 255}
)

// Renderer draws certificate images.
type Renderer struct {
	face font.Face
}

// NewRenderer creates a renderer using the built-in bitmap face, scaled per line.
func NewRenderer() *Renderer {
	return &Renderer{face: basicfont.Face7x13}
}

// Render returns the certificate as PNG. verifyURL, when set, is encoded as a QR code.
func (r *Renderer) Render(cert *models.IssuedCertificate, verifyURL string) ([]byte, error) {
	canvas := imaging.New(canvasWidth, canvasHeight, accent)
	canvas = imaging.Paste(canvas, imaging.New(canvasWidth-2*border, canvasHeight-2*border, paper), image.Pt(border, border))

	lines := []struct {
		text  string
		scale int
		y     int
		c     color.Color
	}{
		{"CERTIFICATE OF COMPLETION", 5, 150, accent},
		{"This certifies that", 3, 300, muted},
		{cert.StudentName, 6, 380, ink},
		{"has successfully completed", 3, 520, muted},
		{cert.CourseTitle, 5, 590, ink},
		{"Instructor: " + cert.HostName, 3, 730, ink},
		{"Issued on " + cert.IssuedOn, 3, 790, muted},
		{"Certificate ID: " + cert.ID, 3, 930, accent},
	}
	for _, l := range lines {
		canvas = r.centered(canvas, l.text, l.scale, l.y, l.c)
	}

	if verifyURL != "" {
		qr, err := qrcode.New(verifyURL, qrcode.Medium)
		if err != nil {
			return nil, fmt.Errorf("encode verify qr: %w", err)
		}
		canvas = imaging.Overlay(canvas, qr.Image(qrSize), image.Pt(canvasWidth-border-qrSize-40, canvasHeight-border-qrSize-40), 1.0)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode certificate png: %w", err)
	}
	return buf.Bytes(), nil
}

// centered draws text at scale times the face size, horizontally centred at y.
func (r *Renderer) centered(dst *image.NRGBA, text string, scale, y int, c color.Color) *image.NRGBA {
	text = strings.TrimSpace(text)
	if text == "" {
		return dst
	}
	maxWidth := canvasWidth - 2*border - 80
	width := font.MeasureString(r.face, text).Ceil()
	for scale > 1 && width*scale > maxWidth {
		scale--
	}
	height := r.face.Metrics().Height.Ceil()

	line := image.NewNRGBA(image.Rect(0, 0, width, height))
	d := &font.Drawer{
		Dst:  line,
		Src:  image.NewUniform(c),
		Face: r.face,
		Dot:  fixed.P(0, r.face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)

	scaled := imaging.Resize(line, width*scale, height*scale, imaging.NearestNeighbor)
	x := (canvasWidth - scaled.Bounds().Dx()) / 2
	return imaging.Overlay(dst, scaled, image.Pt(x, y), 1.0)
}
