package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sakif/garden-companion/internal/apperror"
	"github.com/sakif/garden-companion/internal/auth"
	"github.com/sakif/garden-companion/internal/model"
	"github.com/sakif/garden-companion/internal/service"
)

// keepAliveInterval is how often an idle garden stream sends an SSE comment,
// so proxies do not close the connection.
const keepAliveInterval = 25 * time.Second

// GardenService is implemented by *service.GardenService.
type GardenService interface {
	AddPlant(ctx context.Context, userID string, plantID int64, in service.AddPlantInput) (*model.GardenEntry, bool, error)
	List(ctx context.Context, userID string) ([]model.GardenEntry, error)
	Watch(ctx context.Context, userID string) (<-chan []model.GardenEntry, error)
	RecordWatering(ctx context.Context, userID, id string) error
	RecordFertilizing(ctx context.Context, userID, id string) error
	UpdateDetails(ctx context.Context, userID, id string, in service.UpdateInput) (*model.UserPlant, error)
	RemovePlant(ctx context.Context, userID, id string) error
	Tasks(ctx context.Context, userID string, limit int) ([]model.Task, error)
}

// GardenHandler serves /api/garden. Every route sits behind
// auth.RequireAuth, so the user ID is always in the request context.
type GardenHandler struct {
	garden GardenService
	logger *slog.Logger
}

func NewGardenHandler(garden GardenService, logger *slog.Logger) *GardenHandler {
	return &GardenHandler{garden: garden, logger: logger}
}

type addPlantRequest struct {
	PlantID      int64      `json:"plantId"`
	Nickname     string     `json:"nickname"`
	PlantingDate *time.Time `json:"plantingDate"`
	PhotoURL     string     `json:"photoUrl"`
	Notes        string     `json:"notes"`
}

type updatePlantRequest struct {
	Nickname     *string    `json:"nickname"`
	Notes        *string    `json:"notes"`
	PhotoURL     *string    `json:"photoUrl"`
	PlantingDate *time.Time `json:"plantingDate"`
}

// HandleList returns the garden joined with catalog records, newest first.
//
// HTTP: GET /api/garden
func (h *GardenHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	entries, err := h.garden.List(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleAdd puts a catalog plant into the garden.
//
// HTTP: POST /api/garden
// REQUEST BODY: {"plantId": 42, "nickname": "Monty", "plantingDate": "2024-05-01T00:00:00Z"}
// RESPONSE: 201 with the new entry, or 200 with the existing one when the
// plant is already in the garden.
func (h *GardenHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req addPlantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.PlantID <= 0 {
		writeError(w, apperror.ValidationFailed("plantId", "plantId is required"))
		return
	}

	in := service.AddPlantInput{
		Nickname: req.Nickname,
		PhotoURL: req.PhotoURL,
		Notes:    req.Notes,
	}
	if req.PlantingDate != nil {
		in.PlantingDate = *req.PlantingDate
	}

	entry, created, err := h.garden.AddPlant(r.Context(), currentUser(r), req.PlantID, in)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, entry)
}

// HandleUpdate edits nickname, notes, photo or planting date. Fields left
// out of the body are unchanged.
//
// HTTP: PATCH /api/garden/{id}
func (h *GardenHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updatePlantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	up, err := h.garden.UpdateDetails(r.Context(), currentUser(r), r.PathValue("id"), service.UpdateInput{
		Nickname:     req.Nickname,
		Notes:        req.Notes,
		PhotoURL:     req.PhotoURL,
		PlantingDate: req.PlantingDate,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, up)
}

// HandleWater records a watering now.
//
// HTTP: POST /api/garden/{id}/water
// RESPONSE: 204 No Content
func (h *GardenHandler) HandleWater(w http.ResponseWriter, r *http.Request) {
	if err := h.garden.RecordWatering(r.Context(), currentUser(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleFertilize records a fertilizing now.
//
// HTTP: POST /api/garden/{id}/fertilize
func (h *GardenHandler) HandleFertilize(w http.ResponseWriter, r *http.Request) {
	if err := h.garden.RecordFertilizing(r.Context(), currentUser(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDelete removes a plant from the garden. Deleting something that is
// already gone still answers 204.
//
// HTTP: DELETE /api/garden/{id}
func (h *GardenHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.garden.RemovePlant(r.Context(), currentUser(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleTasks returns the derived care tasks, most urgent first.
//
// HTTP: GET /api/garden/tasks?limit=3
func (h *GardenHandler) HandleTasks(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, apperror.ValidationFailed("limit", "limit must be a non-negative whole number"))
			return
		}
		limit = n
	}

	tasks, err := h.garden.Tasks(r.Context(), currentUser(r), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// HandleStream pushes the garden to the client as Server-Sent Events: the
// current contents first, then a new snapshot after every change.
//
// HTTP: GET /api/garden/stream
//
// SSE WIRE FORMAT:
//
//	event: garden
//	data: [{"userPlant": {...}, "plant": {...}}, ...]
//
// The stream ends when the client disconnects, which cancels r.Context()
// and with it the service-side subscription.
func (h *GardenHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)
	updates, err := h.garden.Watch(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	// The server's WriteTimeout would cut the stream off; lift it for this
	// response only.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("garden stream: write deadline not adjustable", slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case entries, ok := <-updates:
			if !ok {
				return
			}
			payload, err := json.Marshal(entries)
			if err != nil {
				h.logger.Error("garden stream: encoding snapshot", slog.String("error", err.Error()))
				return
			}
			if _, err := fmt.Fprintf(w, "event: garden\ndata: %s\n\n", payload); err != nil {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			h.logger.Error("garden stream: flush failed",
				slog.String("userID", userID),
				slog.String("error", err.Error()),
			)
			return
		}
	}
}

// currentUser reads the ID RequireAuth stored. An empty string reaches the
// service only if a route was registered without the middleware, and the
// service rejects it.
func currentUser(r *http.Request) string {
	userID, _ := auth.UserIDFromContext(r.Context())
	return userID
}
