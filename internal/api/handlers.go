package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"qrattend/internal/app"
	"qrattend/internal/attendance"
	"qrattend/internal/ledger"
	"qrattend/internal/models"
	"qrattend/internal/qrgen"
	"qrattend/internal/registry"
	"qrattend/internal/scanner"
	"qrattend/internal/utils"
)

// maxUpload is the multipart memory budget; larger parts spill to disk.
const maxUpload = 32 << 20

// maxBody bounds multipart request bodies.
var maxBody int64 = 64 << 20

// parseUpload reads a size-limited multipart form.
func parseUpload(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		return utils.Wrap(utils.KindImageLoad, err, "invalid upload")
	}
	return nil
}

// Handler serves the attendance endpoints.
type Handler struct {
	app    *app.App
	logger *slog.Logger
}

type errorBody struct {
	Error       string               `json:"error"`
	Kind        utils.Kind           `json:"kind,omitempty"`
	Diagnostics *scanner.Diagnostics `json:"diagnostics,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := utils.StatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: utils.KindOf(err)})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return utils.Wrap(utils.KindValidation, err, "invalid request body")
	}
	return nil
}

func readFile(fh *multipart.FileHeader) (scanner.File, error) {
	f, err := fh.Open()
	if err != nil {
		return scanner.File{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return scanner.File{}, err
	}
	return scanner.File{Name: fh.Filename, Type: fh.Header.Get("Content-Type"), Data: data}, nil
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintln(w, "OK")
}

type scanRequest struct {
	Text string `json:"text"`
}

// Scan runs decoded text through the pipeline.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	writeOutcome(w, h.app.Coordinator.Scan(r.Context(), req.Text))
}

func writeOutcome(w http.ResponseWriter, out attendance.Outcome) {
	status := http.StatusOK
	if err := out.Err(); err != nil {
		status = utils.StatusCode(err)
	}
	writeJSON(w, status, out)
}

// ScanImage extracts a payload from the uploaded "file" and scans it.
func (h *Handler) ScanImage(w http.ResponseWriter, r *http.Request) {
	if err := parseUpload(w, r); err != nil {
		h.writeError(w, err)
		return
	}
	fhs := r.MultipartForm.File["file"]
	if len(fhs) == 0 {
		h.writeError(w, utils.New(utils.KindValidation, "missing file"))
		return
	}
	f, err := readFile(fhs[0])
	if err != nil {
		h.writeError(w, utils.Wrap(utils.KindImageLoad, err, scanner.MsgLoadFailed))
		return
	}

	res := h.app.Extractor.ScanImage(f)
	if err := res.Err(); err != nil {
		writeJSON(w, utils.StatusCode(err), errorBody{Error: res.Message, Kind: utils.KindOf(err), Diagnostics: res.Diagnostics})
		return
	}
	writeOutcome(w, h.app.Coordinator.Scan(r.Context(), res.Data))
}

// UploadRegistry registers students from every uploaded "files" image.
func (h *Handler) UploadRegistry(w http.ResponseWriter, r *http.Request) {
	if err := parseUpload(w, r); err != nil {
		h.writeError(w, err)
		return
	}
	fhs := r.MultipartForm.File["files"]
	if len(fhs) == 0 {
		h.writeError(w, utils.New(utils.KindValidation, "no files uploaded"))
		return
	}
	batch := make([]scanner.File, 0, len(fhs))
	for _, fh := range fhs {
		f, err := readFile(fh)
		if err != nil {
			// an unreadable part still gets a per-file failure
			f = scanner.File{Name: fh.Filename}
		}
		batch = append(batch, f)
	}

	sum, err := h.app.Batch.Process(r.Context(), batch, func(cur, total int) {
		h.logger.Debug("batch progress", "current", cur, "total", total)
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// ListRegistry lists registered students, filtered by ?q=.
func (h *Handler) ListRegistry(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Registry.List(r.URL.Query().Get("q")))
}

// Register adds or replaces a student.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var f registry.Fields
	if err := decodeBody(r, &f); err != nil {
		h.writeError(w, err)
		return
	}
	if f.Section == "" {
		f.Section = h.app.Coordinator.ActiveSection()
	}
	entry, outcome, err := h.app.Registry.Register(r.Context(), models.StudentIdentity{ID: f.ID, Name: f.Name, Section: f.Section})
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := http.StatusOK
	if outcome == registry.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, entry)
}

// UpdateRegistry edits the student at {id}; the body may change the ID.
func (h *Handler) UpdateRegistry(w http.ResponseWriter, r *http.Request) {
	var f registry.Fields
	if err := decodeBody(r, &f); err != nil {
		h.writeError(w, err)
		return
	}
	entry, err := h.app.Registry.Update(r.Context(), mux.Vars(r)["id"], f)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// RemoveRegistry unregisters the student at {id}.
func (h *Handler) RemoveRegistry(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Registry.Remove(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type attendanceResponse struct {
	Key     string                   `json:"key"`
	Entries []models.AttendanceEntry `json:"entries"`
}

// ListAttendance returns one bucket. Missing year, month and day default to
// today; a missing section to the active one.
func (h *Handler) ListAttendance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := h.app.Ledger.Now()

	year, month, day, err := ledger.Period{Year: q.Get("year"), Month: q.Get("month"), Day: q.Get("day")}.Resolve(now)
	if err != nil {
		h.writeError(w, err)
		return
	}
	section := q.Get("section")
	if section == "" {
		section = h.app.Coordinator.ActiveSection()
	}

	entries := h.app.Ledger.Search(year, month, day, section, q.Get("q"))
	if entries == nil {
		entries = []models.AttendanceEntry{}
	}
	writeJSON(w, http.StatusOK, attendanceResponse{Key: ledger.Key(year, month, day, section), Entries: entries})
}

// RemoveAttendance deletes entry {index} of bucket {key}.
func (h *Handler) RemoveAttendance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		h.writeError(w, utils.New(utils.KindValidation, "invalid index"))
		return
	}
	removed, err := h.app.Ledger.Remove(r.Context(), vars["key"], index)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, removed)
}

type sectionBody struct {
	Section  string   `json:"section"`
	Sections []string `json:"sections,omitempty"`
}

// GetSection returns the active section and the configured list.
func (h *Handler) GetSection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sectionBody{
		Section:  h.app.Coordinator.ActiveSection(),
		Sections: h.app.Config.Section.List,
	})
}

// SetSection changes the active section.
func (h *Handler) SetSection(w http.ResponseWriter, r *http.Request) {
	var body sectionBody
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.app.Coordinator.SetActiveSection(body.Section); err != nil {
		h.writeError(w, err)
		return
	}
	h.GetSection(w, r)
}

// GenerateQR renders the canonical payload for ?id=&name=&section= as PNG.
func (h *Handler) GenerateQR(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	section := q.Get("section")
	if section == "" {
		section = h.app.Coordinator.ActiveSection()
	}
	size, _ := strconv.Atoi(q.Get("size"))
	png, name, err := qrgen.Generate(q.Get("id"), q.Get("name"), section, size)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	_, _ = w.Write(png)
}

type statsResponse struct {
	UniqueStudents int      `json:"uniqueStudents"`
	Registered     int      `json:"registered"`
	Buckets        []string `json:"buckets"`
	ActiveSection  string   `json:"activeSection"`
}

// Stats summarizes both stores.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		UniqueStudents: h.app.Ledger.UniqueStudents(),
		Registered:     h.app.Registry.Len(),
		Buckets:        h.app.Ledger.Buckets(),
		ActiveSection:  h.app.Coordinator.ActiveSection(),
	})
}
