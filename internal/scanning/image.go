package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// documentKind is how an upload has to be decoded before a model can read it.
type documentKind int

const (
	kindPNG documentKind = iota
	kindPDF
	kindHEIC
	kindImage
)

func classify(data []byte, contentType string) documentKind {
	mime := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case mime == "application/pdf" || bytes.HasPrefix(data, []byte("%PDF-")):
		return kindPDF
	case hasHEICBrand(data) || strings.Contains(mime, "heic") || strings.Contains(mime, "heif"):
		return kindHEIC
	case mime == "image/png" && bytes.HasPrefix(data, []byte("\x89PNG")):
		return kindPNG
	default:
		return kindImage
	}
}

// hasHEICBrand checks the ISO-BMFF ftyp box for a HEIF family brand.
func hasHEICBrand(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// toPNG renders any supported upload as a PNG. PDFs contribute their first page.
func toPNG(data []byte, contentType string) ([]byte, error) {
	var (
		img image.Image
		err error
	)
	switch classify(data, contentType) {
	case kindPNG:
		return data, nil
	case kindPDF:
		img, err = firstPDFPage(data)
	case kindHEIC:
		img, err = heic.Decode(bytes.NewReader(data))
		if err != nil {
			err = fmt.Errorf("decoding HEIC image: %w", err)
		}
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			err = fmt.Errorf("unsupported document (want PDF, PNG, JPEG, GIF or HEIC): %w", err)
		}
	}
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func firstPDFPage(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}
