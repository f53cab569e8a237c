package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/sitereel/internal/engine"
	"github.com/maauso/sitereel/internal/graph"
	"github.com/maauso/sitereel/internal/pipeline"
)

const (
	// defaultMaxBodyBytes caps the JSON request body.
	defaultMaxBodyBytes int64 = 1 << 20
	// defaultStreamTimeout bounds sending the finished mp4.
	defaultStreamTimeout = 10 * time.Minute
)

// Renderer runs a render request to completion.
type Renderer interface {
	Render(ctx context.Context, in pipeline.Input) (*pipeline.Result, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	renderer     Renderer
	validator    *validator.Validate
	logger        *slog.Logger
	maxBodyBytes  int64
	streamTimeout time.Duration
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithMaxBodyBytes limits the size of JSON request bodies.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// WithStreamTimeout sets the write deadline applied once the video is ready,
// replacing the server's WriteTimeout for the streaming phase.
func WithStreamTimeout(d time.Duration) HandlerOption {
	return func(h *Handlers) {
		if d > 0 {
			h.streamTimeout = d
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(renderer Renderer, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		renderer:      renderer,
		validator:     newValidator(),
		logger:        logger,
		maxBodyBytes:  defaultMaxBodyBytes,
		streamTimeout: defaultStreamTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// newValidator returns a validator with the "even" tag registered; the
// h264 encoder with yuv420p needs even frame sizes.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("even", func(fl validator.FieldLevel) bool {
		return fl.Field().Int()%2 == 0
	})
	return v
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Render handles POST /render requests. The response body is the mp4.
func (h *Handlers) Render(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("request_id", RequestIDFromContext(r.Context())))

	var req RenderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes)).Decode(&req); err != nil {
		logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	// Validate request
	if err := h.validator.Struct(req); err != nil {
		logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	res, err := h.renderer.Render(r.Context(), pipeline.Input{
		WebsiteURL: req.WebsiteURL,
		AudioURL:   req.AudioURL,
		LogoURL:    req.LogoURL,
		Copy: graph.Copy{
			BrandLine1: req.BrandLine1,
			BrandLine2: req.BrandLine2,
			CTALine1:   req.CTALine1,
			CTALine2:   req.CTALine2,
		},
		Dims:      graph.Dimensions{Width: req.Width, Height: req.Height},
		RequestID: RequestIDFromContext(r.Context()),
	})
	if err != nil {
		if errors.Is(r.Context().Err(), context.Canceled) {
			logger.Warn("client went away during render", slog.String("error", err.Error()))
		}
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "render failed",
			Code:    "RENDER_FAILED",
			Stage:   string(engine.StageOf(err)),
			Details: err.Error(),
		})
		return
	}
	defer func() {
		if cerr := res.Close(); cerr != nil {
			logger.Warn("failed to clean up render", slog.String("error", cerr.Error()))
		}
	}()

	video, err := res.Open(r.Context())
	if err != nil {
		logger.Error("failed to open rendered video", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read rendered video", "RENDER_FAILED")
		return
	}
	defer func() { _ = video.Close() }()

	// The render may have used most of the server's WriteTimeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Now().Add(h.streamTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.Warn("failed to extend write deadline", slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Length", strconv.FormatInt(res.Size, 10))
	w.Header().Set("Content-Disposition", `attachment; filename="sitereel.mp4"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, video); err != nil {
		logger.Warn("failed to stream video", slog.String("error", err.Error()))
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
