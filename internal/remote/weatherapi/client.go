// Package weatherapi is a client for the current-conditions endpoint of
// weatherapi.com.
package weatherapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sakif/garden-companion/internal/apperror"
	"github.com/sakif/garden-companion/internal/model"
	"github.com/sakif/garden-companion/internal/remote"
)

const (
	DefaultBaseURL = "https://api.weatherapi.com/v1"
	serviceName    = "weather provider"

	// codeNoLocation is the provider's error code for a query it cannot
	// resolve to a place.
	codeNoLocation = 1006
)

type Client struct {
	http   *resty.Client
	apiKey string
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: remote.NewClient(baseURL, timeout), apiKey: apiKey}
}

// currentResponse mirrors the parts of /current.json we keep. Fields the
// provider omits decode to their zero value.
type currentResponse struct {
	Location struct {
		Name    string `json:"name"`
		Region  string `json:"region"`
		Country string `json:"country"`
	} `json:"location"`
	Current struct {
		LastUpdated string  `json:"last_updated"`
		TempC       float64 `json:"temp_c"`
		TempF       float64 `json:"temp_f"`
		IsDay       int     `json:"is_day"`
		Condition   struct {
			Text string `json:"text"`
			Code int    `json:"code"`
		} `json:"condition"`
		WindKph  float64 `json:"wind_kph"`
		WindDir  string  `json:"wind_dir"`
		PrecipMM float64 `json:"precip_mm"`
		Humidity int     `json:"humidity"`
	} `json:"current"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Current fetches the current conditions for query (a place name or
// "<lat>,<lon>"). The returned snapshot has Query set but no ID or
// CapturedAt; the store assigns those.
func (c *Client) Current(ctx context.Context, query string) (*model.WeatherSnapshot, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"key": c.apiKey, "q": query}).
		Get("/current.json")

	if err == nil && resp.StatusCode() == http.StatusBadRequest {
		var er errorResponse
		if json.Unmarshal(resp.Body(), &er) == nil && er.Error.Code == codeNoLocation {
			return nil, apperror.NotFound("location", query)
		}
	}
	if err := remote.Check(serviceName, resp, err); err != nil {
		return nil, err
	}

	var cr currentResponse
	if err := json.Unmarshal(resp.Body(), &cr); err != nil {
		return nil, fmt.Errorf("weatherapi: decoding response: %w", err)
	}

	return &model.WeatherSnapshot{
		Query:         query,
		LocationName:  cr.Location.Name,
		Region:        cr.Location.Region,
		Country:       cr.Location.Country,
		TempC:         cr.Current.TempC,
		TempF:         cr.Current.TempF,
		ConditionText: cr.Current.Condition.Text,
		ConditionCode: cr.Current.Condition.Code,
		Humidity:      cr.Current.Humidity,
		IsDay:         cr.Current.IsDay == 1,
		WindKph:       cr.Current.WindKph,
		WindDir:       cr.Current.WindDir,
		PrecipMM:      cr.Current.PrecipMM,
		LastUpdated:   cr.Current.LastUpdated,
	}, nil
}
