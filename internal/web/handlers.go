package web

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/charimport/internal/core"
	"github.com/JonMunkholm/charimport/internal/ingest"
)

// healthTimeout bounds the store ping behind /healthz.
const healthTimeout = 2 * time.Second

// DialectInfo describes a registered dialect to API clients.
type DialectInfo struct {
	Name       string   `json:"name"`
	Label      string   `json:"label"`
	Format     string   `json:"format"`
	Extensions []string `json:"extensions,omitempty"`
}

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status   string             `json:"status"`
	Database string             `json:"database"`
	Imports  core.LimiterStatus `json:"imports"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Database: "ok", Imports: s.service.LimiterStatus()}
	status := http.StatusOK
	if err := s.service.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Database = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleListDialects(w http.ResponseWriter, r *http.Request) {
	dialects := s.service.Dialects()
	out := make([]DialectInfo, len(dialects))
	for i, d := range dialects {
		out[i] = DialectInfo{
			Name:       d.Name,
			Label:      d.Label,
			Format:     string(d.Format),
			Extensions: d.Extensions,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.LimiterStatus())
}

// handlePreview ingests the payload and returns the records and report
// without storing anything.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	req, err := s.readImportRequest(w, r)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}

	out, err := s.service.Preview(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err, out)
		return
	}
	s.respondOutcome(w, r, http.StatusOK, out)
}

// handleImport ingests and stores the payload. The response carries the
// run and report; records are left out.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	req, err := s.readImportRequest(w, r)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	out, err := s.service.Import(ctx, req)
	if err != nil {
		s.respondError(w, r, err, out)
		return
	}
	out.Records = nil
	s.respondOutcome(w, r, http.StatusCreated, out)
}

func (s *Server) respondOutcome(w http.ResponseWriter, r *http.Request, status int, out *core.Outcome) {
	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		if err := ReportSummary(out).Render(r.Context(), w); err != nil {
			slog.Error("render report summary", "error", err)
		}
		return
	}
	writeJSON(w, status, out)
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	runs, err := s.service.ListImports(r.Context(),
		parseIntParam(r, "limit", core.DefaultPageSize),
		parseIntParam(r, "offset", 0),
	)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	run, err := s.service.GetImport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListCharacters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := core.CharacterFilter{
		ImportID: q.Get("import"),
		Search:   q.Get("q"),
		Limit:    parseIntParam(r, "limit", core.DefaultPageSize),
		Offset:   parseIntParam(r, "offset", 0),
	}
	if t := q.Get("type"); t != "" {
		f.Type = ingest.ParseType(t)
	}

	chars, err := s.service.ListCharacters(r.Context(), f)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, chars)
}

// readImportRequest reads the payload from a multipart "file" field or
// from the raw body, capped at the configured file size.
func (s *Server) readImportRequest(w http.ResponseWriter, r *http.Request) (core.ImportRequest, error) {
	req := core.ImportRequest{
		Dialect:  chi.URLParam(r, "dialect"),
		FileName: r.URL.Query().Get("filename"),
		Expected: parseIntParam(r, "expected", 0),
	}

	maxSize := s.cfg.Import.MaxFileSize
	if maxSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	}

	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return req, payloadError(err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return req, errNoFile
		}
		defer file.Close()
		if req.FileName == "" {
			req.FileName = header.Filename
		}
		if v := r.FormValue("expected"); v != "" && req.Expected == 0 {
			req.Expected, _ = strconv.Atoi(v)
		}
		body = file
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return req, payloadError(err)
	}
	req.Data = data
	return req, nil
}

// payloadError tags body-size violations with core.ErrFileTooLarge so
// they map to 413 however deeply the multipart reader wrapped them.
func payloadError(err error) error {
	if strings.Contains(err.Error(), "request body too large") {
		return fmt.Errorf("%w: %v", core.ErrFileTooLarge, err)
	}
	return fmt.Errorf("read input: %w", err)
}

// parseIntParam parses a non-negative integer query parameter, falling back
// to def when it is missing or invalid.
func parseIntParam(r *http.Request, name string, def int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return def
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return def
	}
	return i
}
