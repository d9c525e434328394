package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/conversor-edc/backend/internal/domain/convert/pipeline"
	"github.com/conversor-edc/backend/internal/domain/convert/schema"
	"github.com/conversor-edc/backend/internal/domain/convert/writer"
	"github.com/conversor-edc/backend/internal/domain/extract"
)

const exportFilename = "estado_cuenta"

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload stores one PDF statement under a fresh upload token. The file
// lives in the temporary store until converted or swept.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Uploads.MaxBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing or oversized file field")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		writeError(w, http.StatusUnsupportedMediaType, "only PDF statements are accepted")
		return
	}

	if err := os.MkdirAll(s.cfg.Uploads.Dir, 0o755); err != nil {
		s.logger.Error("failed to create uploads dir", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}

	id := uuid.NewString()
	path := s.uploadPath(id)
	dst, err := os.Create(path)
	if err != nil {
		s.logger.Error("failed to create upload file", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}
	defer dst.Close()

	n, err := io.Copy(dst, file)
	if err != nil {
		os.Remove(path)
		writeError(w, http.StatusBadRequest, "upload interrupted")
		return
	}
	uploadBytes.Observe(float64(n))

	s.logger.Info("statement uploaded",
		slog.String("upload_id", id),
		slog.String("filename", header.Filename),
		slog.Int64("bytes", n))
	writeJSON(w, http.StatusOK, map[string]string{"upload_id": id})
}

// handleConvert converts a previously uploaded statement and streams the
// workbook back. The upload is deleted once the conversion succeeds.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	id := r.FormValue("upload_id")
	ledger, raw, ok := s.convertUpload(w, r, id)
	if !ok {
		return
	}

	buf, err := writer.WriteWorkbook(ledger, writer.WorkbookOptions{Raw: raw})
	if err != nil {
		s.logger.Error("workbook rendering failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not render workbook")
		return
	}

	os.Remove(s.uploadPath(id))

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename+".xlsx"))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Warn("workbook streaming interrupted", slog.Any("error", err))
	}
}

// handleExportCSV converts the statement and streams CSV. The upload is kept
// so the workbook can still be requested; the sweeper removes it later.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uploadID")
	ledger, _, ok := s.convertUpload(w, r, id)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename+".csv"))
	w.WriteHeader(http.StatusOK)
	if err := writer.WriteCSV(ledger, w); err != nil {
		s.logger.Warn("csv streaming interrupted", slog.Any("error", err))
	}
}

// convertUpload runs the pipeline over one stored upload and assembles the
// ledger. On failure it writes the error response and reports ok=false.
func (s *Server) convertUpload(w http.ResponseWriter, r *http.Request, id string) (writer.Ledger, schema.Table, bool) {
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload_id")
		return writer.Ledger{}, schema.Table{}, false
	}

	f, err := os.Open(s.uploadPath(id))
	if err != nil {
		writeError(w, http.StatusNotFound, "upload not found or expired")
		return writer.Ledger{}, schema.Table{}, false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not read upload")
		return writer.Ledger{}, schema.Table{}, false
	}

	start := time.Now()
	table, err := s.pipeline.Convert(r.Context(), f, info.Size())
	conversionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.writeConvertError(w, id, err)
		return writer.Ledger{}, schema.Table{}, false
	}

	ledger := writer.Assemble(table, writer.AssembleOptions{
		RefYear:    s.cfg.Converter.RefYear,
		Categorize: s.categories.Categorize,
	})
	conversionsTotal.WithLabelValues("ok").Inc()
	s.logger.Info("statement converted",
		slog.String("upload_id", id),
		slog.Int("rows", len(ledger.Rows)),
		slog.Duration("duration", time.Since(start)))
	return ledger, table, true
}

func (s *Server) writeConvertError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, pipeline.ErrNoTransactions):
		conversionsTotal.WithLabelValues("no_transactions").Inc()
		writeError(w, http.StatusUnprocessableEntity, "no transactions recognized in the statement")
	case errors.Is(err, extract.ErrTooManyPages):
		conversionsTotal.WithLabelValues("too_many_pages").Inc()
		writeError(w, http.StatusRequestEntityTooLarge, "statement exceeds the page limit")
	case errors.Is(err, extract.ErrDocumentUnreadable):
		conversionsTotal.WithLabelValues("unreadable").Inc()
		writeError(w, http.StatusBadRequest, "document could not be read as a PDF")
	default:
		conversionsTotal.WithLabelValues("error").Inc()
		s.logger.Error("conversion failed", slog.String("upload_id", id), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "conversion failed")
	}
}

func (s *Server) uploadPath(id string) string {
	return filepath.Join(s.cfg.Uploads.Dir, id+".pdf")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
