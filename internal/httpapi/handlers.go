package httpapi

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/ironsheep/uv-coverage/internal/ingest"
	"github.com/ironsheep/uv-coverage/internal/store"
)

// Upload response statuses.
const (
	StatusOK             = "OK"
	StatusAnalysisFailed = "OK (Analysis Failed)"
)

// multipartOverhead is allowed on top of MaxUploadBytes for form boundaries and headers.
const multipartOverhead = 64 << 10

// UploadResponse is the body returned by POST /upload.
type UploadResponse struct {
	Status           string   `json:"status"`
	Percentage       *float64 `json:"percentage,omitempty"`
	OriginalFilename string   `json:"original_filename,omitempty"`
	DetectedFilename *string  `json:"detected_filename,omitempty"`
	Error            string   `json:"error,omitempty"`
}

// HistoryItem is one entry of GET /api/history.
type HistoryItem struct {
	ID               int64    `json:"id"`
	Timestamp        string   `json:"timestamp"`
	Percentage       *float64 `json:"percentage"`
	Status           string   `json:"status"`
	Error            string   `json:"error,omitempty"`
	OriginalFilename string   `json:"original_filename"`
	OriginalImage    *string  `json:"original_image"`
	DetectedImage    *string  `json:"detected_image"`
}

// HostStats is the host section of GET /api/health.
type HostStats struct {
	UptimeSeconds     uint64  `json:"host_uptime_seconds"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
}

// HealthResponse is the body returned by GET /api/health.
type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	*HostStats
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondError(w, "File too large.", http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, "No file received.", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, "No file received.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.opts.MaxUploadBytes+1))
	if err != nil {
		respondError(w, fmt.Sprintf("Failed to read file: %v", err), http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.opts.MaxUploadBytes {
		respondError(w, "File too large.", http.StatusRequestEntityTooLarge)
		return
	}

	out, err := s.svc.Ingest(r.Context(), ingest.Upload{Filename: header.Filename, Data: data})
	if err != nil {
		if errors.Cause(err) == ingest.ErrEmptyUpload {
			respondError(w, "No file received.", http.StatusBadRequest)
			return
		}
		s.logger.Printf("upload %s: %v", header.Filename, err)
		respondError(w, "Failed to save file.", http.StatusInternalServerError)
		return
	}

	if out.Failed() {
		respondJSON(w, UploadResponse{
			Status:           StatusAnalysisFailed,
			OriginalFilename: out.Record.OriginalFilename,
			Error:            out.Record.Error,
		}, http.StatusOK)
		return
	}

	respondJSON(w, UploadResponse{
		Status:           StatusOK,
		Percentage:       out.Record.Percentage,
		OriginalFilename: out.Record.OriginalFilename,
		DetectedFilename: out.Record.AnnotatedFilename,
	}, http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "Camera backend running.",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
	if stats, err := s.stats(r.Context()); err == nil {
		resp.HostStats = stats
	} else if s.opts.Debug {
		s.logger.Printf("host stats unavailable: %v", err)
	}
	respondJSON(w, resp, http.StatusOK)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := s.opts.HistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	recs, err := s.svc.History(r.Context(), ingest.ClampLimit(limit))
	if err != nil {
		s.logger.Printf("history: %v", err)
		respondError(w, "Failed to load history", http.StatusInternalServerError)
		return
	}

	items := make([]HistoryItem, 0, len(recs))
	for _, rec := range recs {
		items = append(items, historyItem(rec))
	}
	respondJSON(w, items, http.StatusOK)
}

func historyItem(rec store.Record) HistoryItem {
	item := HistoryItem{
		ID:               rec.ID,
		Timestamp:        rec.Timestamp.UTC().Format(time.RFC3339Nano),
		Percentage:       rec.Percentage,
		Status:           rec.Status,
		Error:            rec.Error,
		OriginalFilename: rec.OriginalFilename,
	}
	if rec.OriginalFilename != "" {
		u := "/images/" + rec.OriginalFilename
		item.OriginalImage = &u
	}
	if rec.AnnotatedFilename != nil && *rec.AnnotatedFilename != "" {
		u := "/images/" + *rec.AnnotatedFilename
		item.DetectedImage = &u
	}
	return item
}

func (s *Server) handleResultsCSV(w http.ResponseWriter, r *http.Request) {
	recs, err := s.svc.History(r.Context(), ingest.MaxHistoryLimit)
	if err != nil {
		s.logger.Printf("results: %v", err)
		http.Error(w, "Failed to load results", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	cw := csv.NewWriter(w)
	cw.Write([]string{"timestamp", "filename", "percentage", "status"})
	for i := len(recs) - 1; i >= 0; i-- {
		rec := recs[i]
		pct := ""
		if rec.Percentage != nil {
			pct = strconv.FormatFloat(*rec.Percentage, 'f', 4, 64)
		}
		cw.Write([]string{rec.Timestamp.UTC().Format(time.RFC3339), rec.OriginalFilename, pct, rec.Status})
	}
	cw.Flush()
}

var galleryTemplate = template.Must(template.New("gallery").Parse(`<html>
<head>
	<title>Microplastics Detection Gallery</title>
	<style> body { font-family: sans-serif; background: #f0f0f0; padding: 20px; } </style>
</head>
<body>
	<h2>Latest Frames &amp; Detection</h2>
	<p><a href="/results.csv" target="_blank">View All Results (CSV)</a></p>
	<div>
	{{- range .}}
		<div style="margin-bottom: 20px; border-bottom: 1px solid #ccc; padding-bottom: 10px;">
			<p><strong>{{.Original}}</strong></p>
			<div style="display: flex;">
				<img src="/images/{{.Original}}" width="320" style="margin:5px;" />
				{{- if .Annotated}}
				<img src="/images/{{.Annotated}}" width="320" style="margin:5px;" />
				{{- end}}
			</div>
		</div>
	{{- else}}
		<p>No frames yet.</p>
	{{- end}}
	</div>
	<script>
		setTimeout(() => location.reload(), 2000);
	</script>
</body>
</html>
`))

func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	frames, err := s.svc.Frames(s.opts.GalleryLimit)
	if err != nil {
		s.logger.Printf("gallery: %v", err)
		http.Error(w, "Failed to list frames", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := galleryTemplate.Execute(w, frames); err != nil {
		s.logger.Printf("gallery: %v", err)
	}
}

// readHostStats samples host uptime and memory with gopsutil.
func readHostStats(ctx context.Context) (*HostStats, error) {
	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "host uptime")
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "virtual memory")
	}
	return &HostStats{UptimeSeconds: uptime, MemoryUsedPercent: vm.UsedPercent}, nil
}

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}
