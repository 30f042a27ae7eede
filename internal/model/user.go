// Package model defines the data structures used throughout the application.
package model

import "time"

// Experience levels a gardener can pick on their profile.
const (
	ExperienceBeginner     = "beginner"
	ExperienceIntermediate = "intermediate"
	ExperienceExpert       = "expert"
)

// User represents a registered gardener account.
//
// Users sign up with email + password, or through GitHub OAuth. Either way the
// internal ID is an xid we generate, so our primary keys never depend on a
// third party's numbering.
//
// WHY GitHubID *int64?
// Most accounts are email/password only. A nil pointer maps to SQL NULL, and
// the UNIQUE index on github_id ignores NULLs, so many users can have no
// GitHub link while each linked GitHub account still maps to one user.
//
// The counters are advisory: the client displays them but nothing enforces
// them against the actual garden rows.
type User struct {
	ID                   string    `json:"id"                   db:"id"`
	Email                string    `json:"email"                db:"email"`
	PasswordHash         string    `json:"-"                    db:"password_hash"`
	GitHubID             *int64    `json:"githubId,omitempty"   db:"github_id"`
	DisplayName          string    `json:"displayName"          db:"display_name"`
	ProfileImage         string    `json:"profileImage"         db:"profile_image"`
	ExperienceLevel      string    `json:"experienceLevel"      db:"experience_level"`
	GardenCount          int       `json:"gardenCount"          db:"garden_count"`
	PlantCount           int       `json:"plantCount"           db:"plant_count"`
	FollowerCount        int       `json:"followerCount"        db:"follower_count"`
	FollowingCount       int       `json:"followingCount"       db:"following_count"`
	NotificationsEnabled bool      `json:"notificationsEnabled" db:"notifications_enabled"`
	CreatedAt            time.Time `json:"createdAt"            db:"created_at"`
	LastActiveAt         time.Time `json:"lastActiveAt"         db:"last_active_at"`
}
