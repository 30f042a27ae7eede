package model

import "time"

// Plant is a catalog record as cached from the plant provider.
//
// Optional provider fields are stored as "" or false rather than NULL, so
// nothing downstream needs to handle nil. ScientificName and Sunlight are
// ordered lists; the repository joins them for storage.
type Plant struct {
	ID              int64     `json:"id"`
	CommonName      string    `json:"commonName"`
	ScientificName  []string  `json:"scientificName"`
	Family          string    `json:"family"`
	Genus           string    `json:"genus"`
	ImageURL        string    `json:"imageUrl"`
	Description     string    `json:"description"`
	Cycle           string    `json:"cycle"`
	Watering        string    `json:"watering"`
	Sunlight        []string  `json:"sunlight"`
	GrowthRate      string    `json:"growthRate"`
	DroughtTolerant bool      `json:"droughtTolerant"`
	SaltTolerant    bool      `json:"saltTolerant"`
	Indoor          bool      `json:"indoor"`
	Flowers         bool      `json:"flowers"`
	Cones           bool      `json:"cones"`
	Fruits          bool      `json:"fruits"`
	Leaf            bool      `json:"leaf"`
	CareLevel       string    `json:"careLevel"`
	CapturedAt      time.Time `json:"capturedAt"`
}

// PlantSummary is one row of a catalog search.
type PlantSummary struct {
	ID             int64    `json:"id"`
	CommonName     string   `json:"commonName"`
	ScientificName []string `json:"scientificName"`
	Cycle          string   `json:"cycle"`
	Watering       string   `json:"watering"`
	Sunlight       []string `json:"sunlight"`
	ImageURL       string   `json:"imageUrl"`
}

// PlantPage is one page of catalog search results.
type PlantPage struct {
	Items       []PlantSummary `json:"items"`
	CurrentPage int            `json:"currentPage"`
	LastPage    int            `json:"lastPage"`
	PerPage     int            `json:"perPage"`
	Total       int            `json:"total"`
}

// HasMore reports whether another page can be requested.
func (p PlantPage) HasMore() bool {
	return p.CurrentPage < p.LastPage
}
