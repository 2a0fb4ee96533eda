package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/garyjia/logistics-console/internal/apperrors"
	"github.com/garyjia/logistics-console/internal/application/port"
)

// ExportService renders a loaded document's line items as a spreadsheet
type ExportService struct {
	exporter port.LineItemExporter
	storage  port.FileStorage
	logger   Logger
	now      func() time.Time
}

// NewExportService creates an export service. storage may be nil when
// exports are only streamed.
func NewExportService(exporter port.LineItemExporter, storage port.FileStorage, logger Logger) *ExportService {
	return &ExportService{
		exporter: exporter,
		storage:  storage,
		logger:   loggerOrNop(logger),
		now:      time.Now,
	}
}

// Write renders the form's committed line items to w
func (s *ExportService) Write(w io.Writer, form *DocumentFormController) error {
	sheet, err := ExportSheetFor(form)
	if err != nil {
		return err
	}
	if err := s.exporter.Export(w, sheet); err != nil {
		return fmt.Errorf("failed to export line items: %w", err)
	}
	return nil
}

// Archive renders the form's line items into storage and returns where the
// file was written. Exports within the same second get a numeric suffix.
func (s *ExportService) Archive(ctx context.Context, form *DocumentFormController) (string, error) {
	if s.storage == nil {
		return "", fmt.Errorf("export storage is not configured")
	}

	var buf bytes.Buffer
	if err := s.Write(&buf, form); err != nil {
		return "", err
	}

	dir := path.Join("exports", form.Config().Name, form.DocumentID())
	stamp := s.now().UTC().Format("20060102T150405Z")
	name := path.Join(dir, stamp+".xlsx")
	for n := 2; s.storage.Exists(ctx, name); n++ {
		name = path.Join(dir, fmt.Sprintf("%s-%d.xlsx", stamp, n))
	}
	if err := s.storage.Save(ctx, name, buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to store export: %w", err)
	}

	location := s.storage.Locate(name)
	s.logger.Info("Line items archived", "document_type", form.Config().Name, "document_id", form.DocumentID(), "path", location)
	return location, nil
}

// ExportSheetFor collects the export data of a loaded form
func ExportSheetFor(form *DocumentFormController) (port.ExportSheet, error) {
	if form.State() != StateReady {
		return port.ExportSheet{}, apperrors.ErrNotLoaded
	}

	cfg := form.Config()
	view := form.View()
	title := cfg.Title + " " + view.ID
	if view.Series != missingValue {
		title = cfg.Title + " " + view.Series
	}

	return port.ExportSheet{
		Title: title,
		Header: [][2]string{
			{"Status", view.Status},
			{"Posting Date", view.PostingDate},
			{"Customer", view.Customer},
			{"Supplier", view.Supplier},
			{"Currency", view.Currency},
			{"Service Type", view.ServiceType},
			{"Collection Address", view.CollectionAddress},
			{"Destination Address", view.DestinationAddress},
			{"Total", view.Total},
		},
		Lines:        form.Store().List(),
		Totals:       form.Store().Totals(),
		SalesColumns: cfg.HasSalesRate,
		RateLabel:    splitWords(cfg.RateField),
	}, nil
}

// splitWords turns "SupplierRate" into "Supplier Rate"
func splitWords(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
