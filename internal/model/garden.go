package model

import "time"

// UserPlant associates a user with a catalog plant they are growing.
//
// A (UserID, PlantID) pair is unique. Deleting either the user or the catalog
// plant cascades to the association.
type UserPlant struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	PlantID        int64      `json:"plantId"`
	Nickname       string     `json:"nickname"`
	PlantingDate   time.Time  `json:"plantingDate"`
	PhotoURL       string     `json:"photoUrl"`
	Notes          string     `json:"notes"`
	LastWatered    *time.Time `json:"lastWatered,omitempty"`
	LastFertilized *time.Time `json:"lastFertilized,omitempty"`
	DateAdded      time.Time  `json:"dateAdded"`
}

// DisplayName is the nickname, or the catalog name when none was given.
func (up UserPlant) DisplayName(p *Plant) string {
	if up.Nickname != "" {
		return up.Nickname
	}
	if p != nil {
		return p.CommonName
	}
	return ""
}

// GardenEntry is a garden row joined with its catalog record.
type GardenEntry struct {
	UserPlant UserPlant `json:"userPlant"`
	Plant     Plant     `json:"plant"`
}
