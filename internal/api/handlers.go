package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"flow-field/internal/config"
	"flow-field/internal/flowfield"
	"flow-field/internal/grid"
	"flow-field/internal/render"
	"flow-field/internal/scenario"
	"flow-field/internal/session"
)

const (
	// maxBodyBytes caps request bodies; a 512-cell layout is about 260 KB
	maxBodyBytes = 1 << 20

	// maxPlotPixels caps the edge of plot.png
	maxPlotPixels = 4096
)

// errBadRequest marks malformed query or body input.
var errBadRequest = errors.New("bad request")

// routerHandlers holds the dependencies of the route handlers.
type routerHandlers struct {
	fields   FieldStore
	notifier Notifier
	limits   config.FieldConfig
}

// fieldDetail is a summary plus the direction grid.
type fieldDetail struct {
	session.Summary
	Directions [][]flowfield.Direction `json:"directions"`
}

type cellResponse struct {
	X         int                 `json:"x"`
	Y         int                 `json:"y"`
	Direction flowfield.Direction `json:"direction"`
	Name      string              `json:"name"`
	Obstacle  bool                `json:"obstacle"`
}

type traceResponse struct {
	Path    []grid.Point `json:"path"`
	Reached bool         `json:"reached"`
	Steps   int          `json:"steps"`
}

type obstaclesRequest struct {
	Set    []grid.Point `json:"set"`
	Clear  []grid.Point `json:"clear"`
	Toggle []grid.Point `json:"toggle"`
}

func (h *routerHandlers) handleCreate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	sc := &scenario.Scenario{}
	if len(bytes.TrimSpace(body)) > 0 {
		if sc, err = scenario.Parse(body); err != nil {
			writeFieldError(w, err)
			return
		}
	}
	if sc.Size == 0 {
		sc.Size = h.limits.DefaultSize
	}
	// Images would be read from the server's disk
	if err := sc.Validate(scenario.Limits{MaxSize: h.limits.MaxSize}); err != nil {
		writeFieldError(w, err)
		return
	}

	m, err := sc.Build()
	if err != nil {
		writeFieldError(w, err)
		return
	}

	s, err := h.fields.Create(m)
	if err != nil {
		writeFieldError(w, err)
		return
	}
	UpdateFieldCount(h.fields.Len())

	summary := s.Summary()
	h.notifier.Broadcast(EventFieldCreated, summary)

	w.Header().Set("Location", "/api/fields/"+summary.ID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(summary)
}

func (h *routerHandlers) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.fields.List())
}

func (h *routerHandlers) handleGet(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var detail fieldDetail
	detail.Summary, detail.Directions = s.Snapshot()
	writeJSON(w, detail)
}

func (h *routerHandlers) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.fields.Delete(id); err != nil {
		writeFieldError(w, err)
		return
	}
	UpdateFieldCount(h.fields.Len())
	h.notifier.Broadcast(EventFieldDeleted, map[string]string{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (h *routerHandlers) handleCell(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	x, y, err := queryPoint(r)
	if err != nil {
		writeFieldError(w, err)
		return
	}

	resp := cellResponse{X: x, Y: y}
	_ = s.View(func(m *grid.Map, f *flowfield.Field) error {
		resp.Direction = f.Direction(x, y)
		resp.Obstacle = m.IsObstacle(x, y)
		return nil
	})
	resp.Name = resp.Direction.Name()
	writeJSON(w, resp)
}

func (h *routerHandlers) handleTrace(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	x, y, err := queryPoint(r)
	if err != nil {
		writeFieldError(w, err)
		return
	}

	var resp traceResponse
	_ = s.View(func(m *grid.Map, f *flowfield.Field) error {
		resp.Path, resp.Reached = f.Trace(x, y, 0)
		return nil
	})
	if resp.Path == nil {
		resp.Path = []grid.Point{}
	}
	if len(resp.Path) > 0 {
		resp.Steps = len(resp.Path) - 1
	}
	writeJSON(w, resp)
}

func (h *routerHandlers) handleObstacles(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req obstaclesRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeFieldError(w, err)
		return
	}

	h.update(w, s, func(m *grid.Map) error {
		for _, p := range req.Set {
			m.SetObstacle(p.X, p.Y)
		}
		for _, p := range req.Clear {
			m.ClearObstacle(p.X, p.Y)
		}
		for _, p := range req.Toggle {
			m.ToggleObstacle(p.X, p.Y)
		}
		return nil
	})
}

func (h *routerHandlers) handleGoal(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var p grid.Point
	if err := decodeBody(w, r, &p); err != nil {
		writeFieldError(w, err)
		return
	}

	h.update(w, s, func(m *grid.Map) error {
		m.SetGoal(p.X, p.Y)
		return nil
	})
}

func (h *routerHandlers) handleStart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var p grid.Point
	if err := decodeBody(w, r, &p); err != nil {
		writeFieldError(w, err)
		return
	}

	h.update(w, s, func(m *grid.Map) error {
		m.SetStart(p.X, p.Y)
		return nil
	})
}

func (h *routerHandlers) update(w http.ResponseWriter, s *session.Session, fn func(m *grid.Map) error) {
	summary, err := s.Update(fn)
	if err != nil {
		writeFieldError(w, err)
		return
	}
	h.notifier.Broadcast(EventFieldUpdated, summary)
	writeJSON(w, summary)
}

func (h *routerHandlers) handleASCII(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	err := s.View(func(m *grid.Map, f *flowfield.Field) error {
		if r.URL.Query().Get("plain") == "true" {
			return render.ASCII(&buf, f)
		}
		return render.ASCIIWithMap(&buf, f, m)
	})
	writeBuffer(w, "text/plain; charset=utf-8", &buf, err)
}

func (h *routerHandlers) handleTexture(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	err := s.View(func(m *grid.Map, f *flowfield.Field) error {
		return render.WriteTexturePNG(&buf, f, m)
	})
	writeBuffer(w, "image/png", &buf, err)
}

func (h *routerHandlers) handlePlot(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	opts := render.PlotOptions{}
	if v := r.URL.Query().Get("cell"); v != "" {
		cell, err := strconv.Atoi(v)
		if err != nil || cell <= 0 {
			writeError(w, "cell must be a positive integer", http.StatusBadRequest)
			return
		}
		opts.CellSize = cell
	}
	_, traceFrom := r.URL.Query()["x"]

	var buf bytes.Buffer
	err := s.View(func(m *grid.Map, f *flowfield.Field) error {
		if opts.CellSize == 0 {
			opts.CellSize = 16
		}
		opts.CellSize = min(opts.CellSize, max(1, maxPlotPixels/m.Size()))
		if traceFrom {
			x, y, err := queryPoint(r)
			if err != nil {
				return err
			}
			opts.Path, _ = f.Trace(x, y, 0)
		}
		return render.WritePlotPNG(&buf, f, m, opts)
	})
	writeBuffer(w, "image/png", &buf, err)
}

func (h *routerHandlers) handleScenario(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	err := s.View(func(m *grid.Map, f *flowfield.Field) error {
		return scenario.FromMap(m).Encode(&buf)
	})
	writeBuffer(w, "application/yaml", &buf, err)
}

func (h *routerHandlers) handleSchema(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	err := scenario.WriteSchema(&buf)
	writeBuffer(w, "application/schema+json", &buf, err)
}

// session resolves the {id} URL parameter, writing 404 when it is unknown.
func (h *routerHandlers) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.fields.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeFieldError(w, err)
		return nil, false
	}
	return s, true
}

func queryPoint(r *http.Request) (x, y int, err error) {
	q := r.URL.Query()
	x, errX := strconv.Atoi(q.Get("x"))
	y, errY := strconv.Atoi(q.Get("y"))
	if errX != nil || errY != nil {
		return 0, 0, fmt.Errorf("%w: x and y must be integers", errBadRequest)
	}
	return x, y, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeBuffer sends buf, or the mapped error when rendering failed.
func writeBuffer(w http.ResponseWriter, contentType string, buf *bytes.Buffer, err error) {
	if err != nil {
		writeFieldError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

// writeFieldError maps domain errors onto status codes.
func writeFieldError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, session.ErrRegistryFull):
		code = http.StatusServiceUnavailable
	case errors.Is(err, flowfield.ErrGoalBlocked):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, scenario.ErrInvalid),
		errors.Is(err, flowfield.ErrSizeMismatch),
		errors.Is(err, errBadRequest):
		code = http.StatusBadRequest
	}

	if code == http.StatusInternalServerError {
		log.WithError(err).Error("Request failed")
	}
	writeError(w, err.Error(), code)
}
