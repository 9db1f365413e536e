package domain

import (
	"strings"
	"time"
	"unicode"
)

// Season is one of the four canonical season labels.
type Season string

const (
	SeasonSpring Season = "Spring"
	SeasonSummer Season = "Summer"
	SeasonAutumn Season = "Autumn"
	SeasonWinter Season = "Winter"
)

// Seasons returns all four season values in calendar order.
func Seasons() []Season {
	return []Season{SeasonSpring, SeasonSummer, SeasonAutumn, SeasonWinter}
}

// ParseSeason normalizes a raw label to title case and validates it against
// the four canonical seasons.
// Parameters:
//   - raw: label text as returned by the model, any case, may carry whitespace.
// Returns:
//   - Season: canonical season value when valid.
//   - bool: false if the label is not one of the four seasons.
func ParseSeason(raw string) (Season, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	// Small models tend to append punctuation despite the one-word prompt
	s = strings.TrimRight(s, ".!")
	if s == "" {
		return "", false
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	switch Season(string(r)) {
	case SeasonSpring:
		return SeasonSpring, true
	case SeasonSummer:
		return SeasonSummer, true
	case SeasonAutumn:
		return SeasonAutumn, true
	case SeasonWinter:
		return SeasonWinter, true
	}
	return "", false
}

// SeasonMembership asserts that a photo belongs to a season's curated set.
// Memberships are non-exclusive: a photo may appear under several seasons.
// The (season, photo_id) pair is unique, re-asserting it is a no-op.
type SeasonMembership struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Season    Season    `gorm:"type:text;not null;uniqueIndex:idx_season_photo" json:"season"`
	PhotoID   uint      `gorm:"not null;uniqueIndex:idx_season_photo" json:"photo_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for SeasonMembership.
func (SeasonMembership) TableName() string {
	return "season_photos"
}
