// Package extract downloads a document's PDF and converts it into the
// content model the detector works on.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/nikhilbhutani/pdfaccess/internal/models"
	"github.com/nikhilbhutani/pdfaccess/internal/storage"
	"github.com/nikhilbhutani/pdfaccess/pkg/pdfcontent"
)

var (
	ErrTooLarge   = errors.New("document exceeds the maximum size")
	ErrInvalidPDF = errors.New("document is not a readable PDF")
)

type Config struct {
	Bucket   string
	MaxBytes int64
	// StrictValidation rejects documents pdfcpu only accepts in relaxed mode.
	StrictValidation bool
}

type Extractor struct {
	storage storage.Storage
	cfg     Config
}

func NewExtractor(store storage.Storage, cfg Config) *Extractor {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 100 << 20
	}
	return &Extractor{storage: store, cfg: cfg}
}

func (e *Extractor) Extract(ctx context.Context, doc *models.Document) (*models.DocumentContent, error) {
	rc, err := e.storage.Download(ctx, e.cfg.Bucket, doc.FilePath)
	if err != nil {
		return nil, fmt.Errorf("download document: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, e.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if int64(len(data)) > e.cfg.MaxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, e.cfg.MaxBytes)
	}

	return e.ExtractBytes(data)
}

// ExtractBytes validates data with pdfcpu and reads its structure.
func (e *Extractor) ExtractBytes(data []byte) (*models.DocumentContent, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if e.cfg.StrictValidation {
		conf.ValidationMode = model.ValidationStrict
	}

	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return nil, fmt.Errorf("%w: validate: %w", ErrInvalidPDF, err)
	}
	pageCount, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: count pages: %w", ErrInvalidPDF, err)
	}

	parsed, err := pdfcontent.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPDF, err)
	}
	if len(parsed.Pages) != pageCount {
		slog.Warn("page count mismatch between readers", "pdfcpu", pageCount, "parsed", len(parsed.Pages))
	}

	return ToContent(parsed), nil
}

// ToContent maps parsed PDF structure onto the detector's content model.
func ToContent(doc *pdfcontent.Document) *models.DocumentContent {
	out := &models.DocumentContent{
		Pages: make([]models.PageContent, 0, len(doc.Pages)),
	}
	if doc.Lang != "" {
		lang := doc.Lang
		out.Language = &lang
	}
	if doc.Title != "" {
		title := doc.Title
		out.Title = &title
	}

	for _, p := range doc.Pages {
		pc := models.PageContent{
			Number: p.Number,
			Text:   p.Text,
			Tables: p.Tables,
		}
		for _, img := range p.Images {
			d := models.ImageDescriptor{HasAltText: img.Alt != "", Coverage: img.Coverage}
			if img.Caption != "" {
				caption := img.Caption
				d.Caption = &caption
			}
			pc.Images = append(pc.Images, d)
		}
		for _, h := range p.Headings {
			pc.Headings = append(pc.Headings, models.HeadingDescriptor{Level: h.Level, Text: h.Text})
		}
		for _, f := range p.Fields {
			pc.FormFields = append(pc.FormFields, models.FormField{HasLabel: f.Label != "", Name: f.Name})
		}
		for _, l := range p.Links {
			pc.Links = append(pc.Links, models.LinkDescriptor{Text: l.Text, Target: l.Target})
		}
		out.Pages = append(out.Pages, pc)
	}
	return out
}
