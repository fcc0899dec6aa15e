// Package local extracts text from PDF and DOCX documents in process.
package local

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/ai-candidate-evaluator/internal/observability"
	"github.com/fairyhunter13/ai-candidate-evaluator/pkg/textx"
)

// Extractor implements domain.TextExtractor with unipdf and docx.
type Extractor struct{}

// New returns a local extractor.
func New() *Extractor { return &Extractor{} }

// Extract returns the document text. A document without any text yields "" and no error.
func (e *Extractor) Extract(ctx domain.Context, fileType string, data []byte) (string, error) {
	ctx, span := otel.Tracer("textextractor.local").Start(ctx, "local.Extract")
	defer span.End()
	span.SetAttributes(attribute.String("file_type", fileType), attribute.Int("bytes", len(data)))

	switch strings.ToLower(fileType) {
	case "pdf":
		return e.extractPDF(ctx, data)
	case "docx":
		return e.extractDOCX(data)
	default:
		return "", fmt.Errorf("%w: unsupported file type %q", domain.ErrInvalidArgument, fileType)
	}
}

func (e *Extractor) extractPDF(ctx domain.Context, data []byte) (string, error) {
	reader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("op=local.pdf_read: %w", err)
	}
	numPages, err := reader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("op=local.pdf_pages: %w", err)
	}

	lg := obsctx.LoggerFromContext(ctx)
	var b strings.Builder
	for i := 1; i <= numPages; i++ {
		page, err := reader.GetPage(i)
		if err != nil {
			lg.Warn("pdf page unreadable", slog.Int("page", i), slog.String("error", err.Error()))
			continue
		}
		ex, err := extractor.New(page)
		if err != nil {
			lg.Warn("pdf page extractor failed", slog.Int("page", i), slog.String("error", err.Error()))
			continue
		}
		text, err := ex.ExtractText()
		if err != nil {
			lg.Warn("pdf page text failed", slog.Int("page", i), slog.String("error", err.Error()))
			continue
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	return textx.CleanText(b.String()), nil
}

func (e *Extractor) extractDOCX(data []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("op=local.docx_read: %w", err)
	}
	defer func() { _ = r.Close() }()
	return textx.CleanText(textx.StripXMLTags(r.Editable().GetContent())), nil
}
