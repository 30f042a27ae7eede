package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/sakif/garden-companion/internal/apperror"
	"github.com/sakif/garden-companion/internal/model"
)

// WeatherService is implemented by *service.WeatherService.
type WeatherService interface {
	GetWeather(ctx context.Context, coords *model.Coordinates) (*model.WeatherSnapshot, error)
}

// PlantService is implemented by *service.PlantService.
type PlantService interface {
	GetPlantDetail(ctx context.Context, id int64) (*model.Plant, error)
	Search(ctx context.Context, query string, page int) (*model.PlantPage, error)
}

// CatalogHandler serves the read-only, cache-backed endpoints: current
// weather and the plant catalog. Neither needs a signed-in user.
type CatalogHandler struct {
	weather WeatherService
	plants  PlantService
}

func NewCatalogHandler(weather WeatherService, plants PlantService) *CatalogHandler {
	return &CatalogHandler{weather: weather, plants: plants}
}

// HandleWeather returns the current conditions.
//
// HTTP: GET /api/weather?lat=51.5&lon=-0.12
//
// lat and lon are optional but go together. Without them the configured
// fallback location is used. A cached snapshot up to an hour old is served
// as-is; an older one is served only when the provider is unreachable.
func (h *CatalogHandler) HandleWeather(w http.ResponseWriter, r *http.Request) {
	coords, err := parseCoordinates(r)
	if err != nil {
		writeError(w, err)
		return
	}

	snap, err := h.weather.GetWeather(r.Context(), coords)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleSearch lists catalog plants matching q. Search results are not cached.
//
// HTTP: GET /api/plants?q=fern&page=2
func (h *CatalogHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, apperror.ValidationFailed("page", "page must be a whole number"))
			return
		}
		page = n
	}

	result, err := h.plants.Search(r.Context(), r.URL.Query().Get("q"), page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandlePlantDetail returns one catalog record, fetching it from the
// provider on first use.
//
// HTTP: GET /api/plants/{id}
func (h *CatalogHandler) HandlePlantDetail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, apperror.ValidationFailed("id", "plant id must be a number"))
		return
	}

	plant, err := h.plants.GetPlantDetail(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plant)
}

func parseCoordinates(r *http.Request) (*model.Coordinates, error) {
	q := r.URL.Query()
	latRaw, lonRaw := q.Get("lat"), q.Get("lon")
	if latRaw == "" && lonRaw == "" {
		return nil, nil
	}
	if latRaw == "" || lonRaw == "" {
		return nil, apperror.ValidationFailed("lat", "lat and lon must be given together")
	}

	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return nil, apperror.ValidationFailed("lat", "lat must be a number")
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return nil, apperror.ValidationFailed("lon", "lon must be a number")
	}
	return &model.Coordinates{Lat: lat, Lon: lon}, nil
}
