// Package playbook implements the authoritative store of strategy bullets
// with vector-indexed semantic retrieval.
//
// A playbook is a collection of bullets, each carrying helpful/harmful
// counters that reinforcement and deduplication update over time. Every
// bullet has exactly one vector in the store's index, at the position
// recorded in the id map; the two structures are kept in lockstep by the
// store's single mutation path.
package playbook

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultSection is the section assigned to bullets without a better label.
const DefaultSection = "General"

// Bullet represents a single playbook entry with reinforcement counters.
type Bullet struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Section   string    `json:"section"`
	Helpful   int       `json:"helpful"`
	Harmful   int       `json:"harmful"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
}

// NewBullet creates a bullet with a fresh id and timestamps.
func NewBullet(content, section string) Bullet {
	if section == "" {
		section = DefaultSection
	}
	now := time.Now()
	return Bullet{
		ID:        newBulletID(),
		Content:   content,
		Section:   section,
		CreatedAt: now,
		LastUsed:  now,
	}
}

func newBulletID() string {
	return "ctx-" + uuid.NewString()[:8]
}

// Ratio returns helpful over max(harmful, 1), the score used to pick merge
// winners during deduplication.
func (b *Bullet) Ratio() float64 {
	harmful := b.Harmful
	if harmful < 1 {
		harmful = 1
	}
	return float64(b.Helpful) / float64(harmful)
}

// String formats the bullet header used in the markdown export.
func (b *Bullet) String() string {
	return fmt.Sprintf("[%s] helpful=%d harmful=%d ::", b.ID, b.Helpful, b.Harmful)
}

// Stats aggregates counts over a playbook.
type Stats struct {
	TotalBullets  int            `json:"total_bullets"`
	Sections      map[string]int `json:"sections"`
	HelpfulRatio  float64        `json:"helpful_ratio"`
	RecentBullets int            `json:"recent_bullets"`
	TotalHelpful  int            `json:"total_helpful"`
	TotalHarmful  int            `json:"total_harmful"`
}
