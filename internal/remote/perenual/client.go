// Package perenual is a client for the perenual.com plant catalog.
package perenual

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sakif/garden-companion/internal/model"
	"github.com/sakif/garden-companion/internal/remote"
)

const (
	DefaultBaseURL = "https://perenual.com/api"
	serviceName    = "plant catalog"
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

type image struct {
	OriginalURL string `json:"original_url"`
	RegularURL  string `json:"regular_url"`
}

func (i *image) url() string {
	if i == nil {
		return ""
	}
	if i.RegularURL != "" {
		return i.RegularURL
	}
	return i.OriginalURL
}

type detailResponse struct {
	ID              int64    `json:"id"`
	CommonName      string   `json:"common_name"`
	ScientificName  []string `json:"scientific_name"`
	Family          string   `json:"family"`
	Genus           string   `json:"genus"`
	DefaultImage    *image   `json:"default_image"`
	Description     string   `json:"description"`
	Cycle           string   `json:"cycle"`
	Watering        string   `json:"watering"`
	Sunlight        []string `json:"sunlight"`
	GrowthRate      string   `json:"growth_rate"`
	DroughtTolerant bool     `json:"drought_tolerant"`
	SaltTolerant    bool     `json:"salt_tolerant"`
	Indoor          bool     `json:"indoor"`
	Flowers         bool     `json:"flowers"`
	Cones           bool     `json:"cones"`
	Fruits          bool     `json:"fruits"`
	Leaf            bool     `json:"leaf"`
	CareLevel       string   `json:"care_level"`
}

type listResponse struct {
	Data []struct {
		ID             int64    `json:"id"`
		CommonName     string   `json:"common_name"`
		ScientificName []string `json:"scientific_name"`
		Cycle          string   `json:"cycle"`
		Watering       string   `json:"watering"`
		Sunlight       []string `json:"sunlight"`
		DefaultImage   *image   `json:"default_image"`
	} `json:"data"`
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// Detail fetches one species. A payload without an id means the catalog
// has no such record, reported as (nil, nil).
func (c *Client) Detail(ctx context.Context, id int64) (*model.Plant, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetPathParam("id", strconv.FormatInt(id, 10)).
		Get("/species/details/{id}")
	if err := remote.Check(serviceName, resp, err); err != nil {
		return nil, err
	}

	var dr detailResponse
	if err := json.Unmarshal(resp.Body(), &dr); err != nil {
		return nil, fmt.Errorf("perenual: decoding species %d: %w", id, err)
	}
	if dr.ID == 0 {
		return nil, nil
	}

	return &model.Plant{
		ID:              dr.ID,
		CommonName:      dr.CommonName,
		ScientificName:  nonNil(dr.ScientificName),
		Family:          dr.Family,
		Genus:           dr.Genus,
		ImageURL:        dr.DefaultImage.url(),
		Description:     dr.Description,
		Cycle:           dr.Cycle,
		Watering:        dr.Watering,
		Sunlight:        nonNil(dr.Sunlight),
		GrowthRate:      dr.GrowthRate,
		DroughtTolerant: dr.DroughtTolerant,
		SaltTolerant:    dr.SaltTolerant,
		Indoor:          dr.Indoor,
		Flowers:         dr.Flowers,
		Cones:           dr.Cones,
		Fruits:          dr.Fruits,
		Leaf:            dr.Leaf,
		CareLevel:       dr.CareLevel,
	}, nil
}

// Search runs a catalog text search. Results are never cached.
func (c *Client) Search(ctx context.Context, query string, page int) (*model.PlantPage, error) {
	if page < 1 {
		page = 1
	}
	params := map[string]string{"key": c.apiKey, "page": strconv.Itoa(page)}
	if query != "" {
		params["q"] = query
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get("/species-list")
	if err := remote.Check(serviceName, resp, err); err != nil {
		return nil, err
	}

	var lr listResponse
	if err := json.Unmarshal(resp.Body(), &lr); err != nil {
		return nil, fmt.Errorf("perenual: decoding species list: %w", err)
	}

	out := &model.PlantPage{
		Items:       make([]model.PlantSummary, 0, len(lr.Data)),
		CurrentPage: lr.CurrentPage,
		LastPage:    lr.LastPage,
		PerPage:     lr.PerPage,
		Total:       lr.Total,
	}
	for _, d := range lr.Data {
		if d.ID == 0 {
			continue
		}
		out.Items = append(out.Items, model.PlantSummary{
			ID:             d.ID,
			CommonName:     d.CommonName,
			ScientificName: nonNil(d.ScientificName),
			Cycle:          d.Cycle,
			Watering:       d.Watering,
			Sunlight:       nonNil(d.Sunlight),
			ImageURL:       d.DefaultImage.url(),
		})
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
