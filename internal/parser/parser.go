package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"

	"document-qa/internal/config"
	"document-qa/internal/helper"
	"document-qa/internal/models"
)

// FileKind is the closed set of supported document types.
type FileKind int

const (
	KindUnsupported FileKind = iota
	KindPDF
	KindDOCX
	KindPPTX
)

const defaultPageNumber = 1

var ErrUnsupportedFileType = errors.New("unsupported file type")

func (k FileKind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindDOCX:
		return "docx"
	case KindPPTX:
		return "pptx"
	default:
		return "unsupported"
	}
}

// Extensions lists the accepted upload extensions.
func Extensions() []string {
	return []string{".pdf", ".docx", ".pptx"}
}

// KindOf selects the extraction variant by file extension.
func KindOf(name string) FileKind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return KindPDF
	case ".docx":
		return KindDOCX
	case ".pptx":
		return KindPPTX
	default:
		return KindUnsupported
	}
}

// Upload is a user supplied file.
type Upload struct {
	Name string
	Data []byte
}

type extractFunc func(path, source string) ([]models.DocumentUnit, error)

type Loader struct {
	uploadDir  string
	extractors map[FileKind]extractFunc
}

func NewLoader(cfg *config.LoaderConfig) *Loader {
	dir := "."
	if cfg != nil && cfg.UploadDir != "" {
		dir = cfg.UploadDir
	}
	return &Loader{
		uploadDir: dir,
		extractors: map[FileKind]extractFunc{
			KindPDF:  parsePDF,
			KindDOCX: parseDOCX,
			KindPPTX: parsePPTX,
		},
	}
}

// Validate rejects uploads outside the supported set before anything is written.
func Validate(uploads []Upload) error {
	for _, u := range uploads {
		if KindOf(u.Name) == KindUnsupported {
			return fmt.Errorf("%w: %s", ErrUnsupportedFileType, u.Name)
		}
	}
	return nil
}

// Load persists every upload under the upload directory and extracts its text
// units. Output order is upload order, page order within a file.
func (l *Loader) Load(ctx context.Context, uploads []Upload) ([]models.DocumentUnit, error) {
	if err := Validate(uploads); err != nil {
		return nil, err
	}
	if err := helper.CreateFolder(l.uploadDir); err != nil {
		return nil, err
	}

	var units []models.DocumentUnit
	for _, u := range uploads {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := filepath.Base(u.Name)
		path := filepath.Join(l.uploadDir, name)
		if err := os.WriteFile(path, u.Data, 0o644); err != nil {
			return nil, fmt.Errorf("save upload %s: %w", name, err)
		}
		log.Info().Str("file", name).Int("bytes", len(u.Data)).Msg("Uploaded")

		fileUnits, err := l.LoadFile(path)
		if err != nil {
			return nil, err
		}
		units = append(units, fileUnits...)
	}
	return units, nil
}

// LoadFile extracts text units from a file already on disk.
func (l *Loader) LoadFile(path string) ([]models.DocumentUnit, error) {
	kind := KindOf(path)
	extract, ok := l.extractors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, filepath.Base(path))
	}
	units, err := extract(path, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("parse %s %s: %w", kind, filepath.Base(path), err)
	}
	log.Debug().Str("file", path).Int("units", len(units)).Msg("Extracted document")
	return units, nil
}

func parsePDF(filePath, source string) ([]models.DocumentUnit, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	var units []models.DocumentUnit
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}
		units = append(units, models.DocumentUnit{
			Content: pageText,
			Source:  source,
			Page:    i,
		})
	}
	return units, nil
}

func parseDOCX(filePath, source string) ([]models.DocumentUnit, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	// GetContent returns the raw document XML
	text, err := extractXMLText(strings.NewReader(r.Editable().GetContent()), "t", "p")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return []models.DocumentUnit{{
		Content: text,
		Source:  source,
		Page:    defaultPageNumber, // DOCX has no page numbers
	}}, nil
}
