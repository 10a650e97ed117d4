package webui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"alterego/credits"
	"alterego/export"
	"alterego/logging"
	"alterego/metrics"
	"alterego/models"
	"alterego/orchestrator"
	"alterego/styles"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// DefaultMaxUploadBytes caps uploaded source images.
const DefaultMaxUploadBytes = 10 << 20

// ActivitySource serves the persisted activity log. *db.Repository
// satisfies it.
type ActivitySource interface {
	QueryRecentTransformEvents(ctx context.Context, limit int) ([]models.TransformEvent, error)
	QueryTransformEventsByRun(ctx context.Context, runID string) ([]models.TransformEvent, error)
}

// APIConfig configures the JSON API.
type APIConfig struct {
	MaxUploadBytes int64
	DefaultLimit   int
	MaxLimit       int
	Version        string
	Provider       string
}

// API implements the /api endpoints over one orchestrator.
type API struct {
	orch     *orchestrator.Orchestrator
	activity ActivitySource
	metrics  *metrics.Metrics
	clients  func() int64
	config   APIConfig
	logger   *logging.Logger
	started  time.Time
	now      func() time.Time
}

// NewAPI creates the API. activity and m may be nil.
func NewAPI(orch *orchestrator.Orchestrator, activity ActivitySource, m *metrics.Metrics, config APIConfig, logger *logging.Logger) *API {
	if logger == nil {
		logger = logging.NewNop()
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = 20
	}
	if config.MaxLimit < config.DefaultLimit {
		config.MaxLimit = max(100, config.DefaultLimit)
	}
	return &API{
		orch:     orch,
		activity: activity,
		metrics:  m,
		clients:  func() int64 { return 0 },
		config:   config,
		logger:   logger.Named("api"),
		started:  time.Now(),
		now:      time.Now,
	}
}

// RegisterRoutes mounts every endpoint on mux.
func (api *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", api.handleStatus)
	mux.HandleFunc("GET /api/styles", api.handleStyles)

	mux.HandleFunc("GET /api/session", api.handleSnapshot)
	mux.HandleFunc("DELETE /api/session", api.handleReset)
	mux.HandleFunc("POST /api/session/image", api.handleUpload)
	mux.HandleFunc("PUT /api/session/styles", api.handleSelectStyles)
	mux.HandleFunc("POST /api/session/styles/toggle", api.handleToggleStyle)
	mux.HandleFunc("POST /api/session/styles/shuffle", api.handleShuffleStyles)
	mux.HandleFunc("POST /api/session/batch", api.handleStartBatch)
	mux.HandleFunc("DELETE /api/session/batch", api.handleCancelBatch)
	mux.HandleFunc("POST /api/session/regenerate", api.handleRegenerate)
	mux.HandleFunc("GET /api/session/images/{style}", api.handleDownloadImage)
	mux.HandleFunc("GET /api/session/export", api.handleExport)

	mux.HandleFunc("GET /api/history", api.handleHistory)
	mux.HandleFunc("DELETE /api/history", api.handleClearHistory)
	mux.HandleFunc("POST /api/history/{timestamp}/restore", api.handleRestore)

	mux.HandleFunc("GET /api/favorites", api.handleFavorites)
	mux.HandleFunc("POST /api/favorites/toggle", api.handleToggleFavorite)

	mux.HandleFunc("GET /api/credits", api.handleCredits)
	mux.HandleFunc("POST /api/credits/packs", api.handleAddPack)
	mux.HandleFunc("PUT /api/credits/pro", api.handleSetPro)
	mux.HandleFunc("POST /api/credits/welcome", api.handleWelcome)

	mux.HandleFunc("GET /api/activity", api.handleActivity)
	mux.HandleFunc("GET /api/tasks", api.handleTasks)
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Health    string          `json:"health"`
	Version   string          `json:"version"`
	Provider  string          `json:"provider"`
	Uptime    string          `json:"uptime"`
	State     models.AppState `json:"state"`
	Credits   credits.State   `json:"credits"`
	History   int             `json:"history"`
	Favorites int             `json:"favorites"`
	Clients   int64           `json:"clients"`
}

func (api *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Health:   metrics.SystemHealthRunning,
		Version:  api.config.Version,
		Provider: api.config.Provider,
		Uptime:   FormatDuration(api.now().Sub(api.started)),
		State:    api.orch.State(),
		Credits:  api.orch.Ledger().State(),
		History:  api.orch.History().Len(),
		Clients:  api.clients(),
	}
	if api.metrics != nil && api.metrics.Store != nil {
		resp.Health = api.metrics.Store.GetSystemStatus().Health
	}
	if f := api.orch.Favorites(); f != nil {
		resp.Favorites = f.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

// StylesResponse is the body of GET /api/styles.
type StylesResponse struct {
	Defaults []styles.Style `json:"defaults"`
	Pool     []styles.Style `json:"pool"`
	Wildcard string         `json:"wildcard"`
	Surprise []string       `json:"surprise"`
}

func (api *API) handleStyles(w http.ResponseWriter, r *http.Request) {
	c := api.orch.Catalog()
	writeJSON(w, http.StatusOK, StylesResponse{
		Defaults: c.Defaults(),
		Pool:     c.Pool(),
		Wildcard: styles.Wildcard,
		Surprise: c.SurprisePool(),
	})
}

func (api *API) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.orch.Snapshot())
}

func (api *API) handleReset(w http.ResponseWriter, r *http.Request) {
	if !api.orch.ResetSession() {
		api.writeOrchestratorError(w, orchestrator.ErrInvalidState)
		return
	}
	writeJSON(w, http.StatusOK, api.orch.Snapshot())
}

// uploadRequest is the JSON form of an upload. Multipart uploads use the
// "image" file field instead.
type uploadRequest struct {
	ImageDataURL models.ImageHandle `json:"imageDataUrl"`
}

func (api *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, api.config.MaxUploadBytes)

	handle, err := api.readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("image exceeds %d bytes", api.config.MaxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := api.orch.UploadImage(handle); err != nil {
		api.writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.orch.Snapshot())
}

func (api *API) readUpload(r *http.Request) (models.ImageHandle, error) {
	mediaType := r.Header.Get("Content-Type")
	if strings.HasPrefix(mediaType, "multipart/") {
		file, _, err := r.FormFile("image")
		if err != nil {
			return "", fmt.Errorf("missing image file: %w", err)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", err
		}
		return sniffImage(data)
	}
	if strings.HasPrefix(mediaType, "image/") {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return "", err
		}
		return sniffImage(data)
	}

	var req uploadRequest
	if err := decodeJSON(r, &req); err != nil {
		return "", err
	}
	if !req.ImageDataURL.Valid() {
		return "", errors.New("imageDataUrl is not a base64 image data URL")
	}
	return req.ImageDataURL, nil
}

// sniffImage wraps raw bytes in a data URL after checking they are an image.
func sniffImage(data []byte) (models.ImageHandle, error) {
	if len(data) == 0 {
		return "", errors.New("empty image")
	}
	ct := http.DetectContentType(data)
	if !strings.HasPrefix(ct, "image/") {
		return "", fmt.Errorf("unsupported content type %q", ct)
	}
	return models.NewDataURL(ct, data), nil
}

type stylesRequest struct {
	Styles []string `json:"styles"`
}

type styleRequest struct {
	Style string `json:"style"`
}

func (api *API) handleSelectStyles(w http.ResponseWriter, r *http.Request) {
	var req stylesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := api.orch.SelectStyles(req.Styles); err != nil {
		api.writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.orch.Snapshot())
}

func (api *API) handleToggleStyle(w http.ResponseWriter, r *http.Request) {
	var req styleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	selected, err := api.orch.ToggleStyle(req.Style)
	if err != nil {
		api.writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"style": req.Style, "selected": selected})
}

func (api *API) handleShuffleStyles(w http.ResponseWriter, r *http.Request) {
	offer, err := api.orch.ShuffleStyles()
	if err != nil {
		api.writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"styles": offer})
}

// RunResponse describes an accepted batch or regenerate.
type RunResponse struct {
	RunID   string          `json:"runId"`
	Kind    models.RunKind  `json:"kind"`
	Styles  []string        `json:"styles"`
	Cost    int             `json:"cost"`
	Charged int             `json:"charged"`
	Credits credits.State   `json:"credits"`
	State   models.AppState `json:"state"`
}

func (api *API) runResponse(run *orchestrator.Run) RunResponse {
	return RunResponse{
		RunID:   run.ID,
		Kind:    run.Kind,
		Styles:  run.Styles,
		Cost:    run.Cost,
		Charged: run.Charged,
		Credits: api.orch.Ledger().State(),
		State:   api.orch.State(),
	}
}

func (api *API) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	// an empty body runs the current selection
	var req stylesRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	run, err := api.orch.StartBatch(req.Styles)
	if err != nil {
		api.writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, api.runResponse(run))
}

func (api *API) handleCancelBatch(w http.ResponseWriter, r *http.Request) {
	refunded, ok := api.orch.CancelBatch()
	if !ok {
		api.writeOrchestratorError(w, orchestrator.ErrInvalidState)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"refunded": refunded,
		"credits":  api.orch.Ledger().State(),
	})
}

func (api *API) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req styleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	run, err := api.orch.Regenerate(req.Style)
	if err != nil {
		api.writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, api.runResponse(run))
}

func (api *API) handleDownloadImage(w http.ResponseWriter, r *http.Request) {
	caption := r.PathValue("style")
	img, ok := api.orch.Snapshot().Session.Images[caption]
	if !ok {
		writeError(w, http.StatusNotFound, "no such image")
		return
	}
	handle, done := img.URL()
	if !done {
		writeError(w, http.StatusConflict, "image is not finished")
		return
	}
	mime, data, err := handle.Decode()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stored image is corrupt")
		return
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(caption)))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func (api *API) handleExport(w http.ResponseWriter, r *http.Request) {
	now := api.now()
	var buf bytes.Buffer
	n, err := export.WriteZip(&buf, api.orch.Snapshot().Session, now)
	if errors.Is(err, export.ErrNothingToExport) {
		writeError(w, http.StatusNotFound, "no finished images to export")
		return
	}
	if err != nil {
		api.logger.Error("Export failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	api.logger.Info("Exported session", zap.Int("images", n), zap.Int("bytes", buf.Len()))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.ArchiveName(now)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

func (api *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.orch.History().List())
}

func (api *API) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := api.orch.History().Clear(r.Context()); err != nil {
		api.logger.Error("Failed to clear history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to clear history")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *API) handleRestore(w http.ResponseWriter, r *http.Request) {
	ts, err := strconv.ParseInt(r.PathValue("timestamp"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "timestamp must be an integer")
		return
	}
	h, ok := api.orch.History().Get(ts)
	if !ok {
		writeError(w, http.StatusNotFound, "no such history entry")
		return
	}
	if err := api.orch.RestoreSession(h); err != nil {
		api.writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.orch.Snapshot())
}

func (api *API) handleFavorites(w http.ResponseWriter, r *http.Request) {
	f := api.orch.Favorites()
	if f == nil {
		writeJSON(w, http.StatusOK, []models.FavoriteEntry{})
		return
	}
	writeJSON(w, http.StatusOK, f.List())
}

type favoriteRequest struct {
	Image    models.ImageHandle `json:"url"`
	Caption  string             `json:"caption"`
	Original models.ImageHandle `json:"originalUrl"`
}

func (api *API) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	f := api.orch.Favorites()
	if f == nil {
		writeError(w, http.StatusServiceUnavailable, "favorites are disabled")
		return
	}
	var req favoriteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.Image.Valid() {
		writeError(w, http.StatusBadRequest, "url is not a base64 image data URL")
		return
	}
	if req.Original == "" {
		req.Original = api.orch.Snapshot().Session.SourceImage
	}
	added, err := f.Toggle(r.Context(), req.Image, req.Caption, req.Original)
	if err != nil {
		api.logger.Error("Failed to persist favorites", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save favorite")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"favorite": added, "count": f.Len()})
}

// CreditsResponse is the body of the credit endpoints.
type CreditsResponse struct {
	credits.State
	FirstRun bool           `json:"firstRun"`
	Packs    []credits.Pack `json:"packs"`
}

func (api *API) creditsResponse() CreditsResponse {
	l := api.orch.Ledger()
	return CreditsResponse{State: l.State(), FirstRun: l.FirstRun(), Packs: credits.Packs()}
}

func (api *API) handleCredits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.creditsResponse())
}

func (api *API) handleAddPack(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pack credits.Pack `json:"pack"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := api.orch.Ledger().AddPack(req.Pack); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	api.orch.Notify()
	writeJSON(w, http.StatusOK, api.creditsResponse())
}

func (api *API) handleSetPro(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	api.orch.Ledger().SetUnlimited(req.Enabled)
	api.orch.Notify()
	writeJSON(w, http.StatusOK, api.creditsResponse())
}

func (api *API) handleWelcome(w http.ResponseWriter, r *http.Request) {
	welcome := api.orch.Ledger().ConsumeWelcome(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"welcome": welcome, "credits": api.orch.Ledger().State()})
}

func (api *API) handleActivity(w http.ResponseWriter, r *http.Request) {
	if api.activity == nil {
		writeError(w, http.StatusServiceUnavailable, "activity log is disabled")
		return
	}
	var (
		events []models.TransformEvent
		err    error
	)
	if run := r.URL.Query().Get("run"); run != "" {
		events, err = api.activity.QueryTransformEventsByRun(r.Context(), run)
	} else {
		events, err = api.activity.QueryRecentTransformEvents(r.Context(), api.limit(r))
	}
	if err != nil {
		api.logger.Error("Failed to query activity", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to query activity")
		return
	}
	if events == nil {
		events = []models.TransformEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// TasksResponse is the body of GET /api/tasks.
type TasksResponse struct {
	Summary metrics.TaskMetrics  `json:"summary"`
	Recent  []metrics.TaskRecord `json:"recent"`
}

func (api *API) handleTasks(w http.ResponseWriter, r *http.Request) {
	if api.metrics == nil || api.metrics.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics are disabled")
		return
	}
	writeJSON(w, http.StatusOK, TasksResponse{
		Summary: api.metrics.Store.GetTaskMetrics(),
		Recent:  api.metrics.Store.GetRecentTasks(api.limit(r)),
	})
}

// limit reads ?limit=, clamped to [1, MaxLimit].
func (api *API) limit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 1 {
		return api.config.DefaultLimit
	}
	return min(n, api.config.MaxLimit)
}

// creditError is the 402 body of a refused run.
type creditError struct {
	Error     string `json:"error"`
	Needed    int    `json:"needed"`
	Available int    `json:"available"`
}

func (api *API) writeOrchestratorError(w http.ResponseWriter, err error) {
	if ice, ok := orchestrator.IsInsufficientCredits(err); ok {
		writeJSON(w, http.StatusPaymentRequired, creditError{
			Error:     "insufficient credits",
			Needed:    ice.Needed,
			Available: ice.Available,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, orchestrator.ErrNoImage),
		errors.Is(err, orchestrator.ErrEmptySelection),
		errors.Is(err, orchestrator.ErrUnknownStyle),
		errors.Is(err, orchestrator.ErrInvalidImage):
		status = http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrUnknownItem):
		status = http.StatusNotFound
	case errors.Is(err, orchestrator.ErrInvalidState),
		errors.Is(err, orchestrator.ErrItemPending):
		status = http.StatusConflict
	case errors.Is(err, orchestrator.ErrClosed),
		errors.Is(err, orchestrator.ErrShuttingDown):
		status = http.StatusServiceUnavailable
	default:
		api.logger.Error("Unexpected orchestrator error", zap.Error(err))
	}
	writeError(w, status, strings.TrimPrefix(err.Error(), "orchestrator: "))
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
