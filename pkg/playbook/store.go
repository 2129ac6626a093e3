package playbook

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/XiaoConstantine/ace-go/pkg/embedding"
	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
)

const (
	metadataFileName = "metadata.json"
	indexFileName    = "index.gob"
	markdownFileName = "playbook.md"

	recentWindow = 7 * 24 * time.Hour
)

// Store owns the bullet collection and its vector index. All mutation goes
// through the store's mutex: concurrent adds, counter updates and dedups are
// serialized, and searches never run concurrently with a write.
type Store struct {
	dir      string
	provider embedding.Provider
	logger   *logging.Logger

	mu      sync.RWMutex
	bullets []Bullet
	idToPos map[string]int
	index   *Index
}

// NewStore opens the playbook at dir, creating it if needed. Bullet metadata
// is loaded from metadata.json; the persisted index is used when it matches,
// otherwise the index is rebuilt by re-embedding every bullet.
func NewStore(dir string, provider embedding.Provider) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, errors.PersistenceFailed, "creating playbook directory")
	}

	s := &Store{
		dir:      dir,
		provider: provider,
		logger:   logging.GetLogger(),
		idToPos:  make(map[string]int),
		index:    NewIndex(provider.Dimensions()),
	}

	if err := s.load(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// embedNormalized embeds text and L2-normalizes the result. Provider failures
// degrade to a zero vector so a flaky embedding backend never blocks a
// mutation; zero vectors simply never match in inner-product search.
func (s *Store) embedNormalized(ctx context.Context, text string) []float32 {
	vec, err := s.provider.Embed(ctx, text)
	if err != nil {
		s.logger.Warn(ctx, "embedding failed, using zero vector: %v", err)
		vec = embedding.ZeroVector(s.provider.Dimensions())
	}
	return embedding.Normalize(vec)
}

// Add creates a bullet, indexes its embedding and persists the playbook.
// The new bullet is immediately retrievable by Search.
func (s *Store) Add(ctx context.Context, content, section string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", errors.New(errors.InvalidInput, "bullet content cannot be empty")
	}
	if err := errors.CheckContext(ctx, "playbook add"); err != nil {
		return "", err
	}

	vec := s.embedNormalized(ctx, content)

	s.mu.Lock()
	defer s.mu.Unlock()

	bullet := NewBullet(content, section)
	s.bullets = append(s.bullets, bullet)
	s.idToPos[bullet.ID] = len(s.bullets) - 1
	if err := s.index.Add(vec); err != nil {
		// Roll the append back so bullets and index stay in lockstep.
		s.bullets = s.bullets[:len(s.bullets)-1]
		delete(s.idToPos, bullet.ID)
		return "", err
	}

	if err := s.save(); err != nil {
		s.logger.Error(ctx, "persisting playbook after add: %v", err)
	}

	s.logger.Debug(ctx, "added bullet %s to section %q", bullet.ID, bullet.Section)
	return bullet.ID, nil
}

// Search returns up to topK bullets relevant to query, ordered by descending
// cosine similarity. Bullets whose harmful count exceeds their helpful count
// are filtered out. An empty store returns nil without calling the embedding
// provider.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]Bullet, error) {
	s.mu.RLock()
	empty := len(s.bullets) == 0
	s.mu.RUnlock()
	if empty || topK <= 0 {
		return nil, nil
	}

	if err := errors.CheckContext(ctx, "playbook search"); err != nil {
		return nil, err
	}

	queryVec := s.embedNormalized(ctx, query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := s.index.Search(queryVec, min(topK, len(s.bullets)))

	results := make([]Bullet, 0, len(matches))
	for _, m := range matches {
		if m.Position >= len(s.bullets) {
			continue
		}
		bullet := s.bullets[m.Position]
		if bullet.Harmful > bullet.Helpful {
			continue
		}
		results = append(results, bullet)
	}

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// UpdateCounters increments the helpful or harmful counter by one and stamps
// LastUsed. Returns false when the id is unknown.
func (s *Store) UpdateCounters(id string, helpful bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.idToPos[id]
	if !ok {
		return false
	}

	bullet := &s.bullets[pos]
	if helpful {
		bullet.Helpful++
	} else {
		bullet.Harmful++
	}
	bullet.LastUsed = time.Now()

	if err := s.save(); err != nil {
		s.logger.Error(context.Background(), "persisting playbook after counter update: %v", err)
	}
	return true
}

// Get returns a copy of the bullet with the given id.
func (s *Store) Get(id string) (Bullet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.idToPos[id]
	if !ok {
		return Bullet{}, false
	}
	return s.bullets[pos], true
}

// Len returns the number of bullets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bullets)
}

// IndexSize returns the number of vectors in the index. Always equal to Len
// unless the lockstep invariant is broken.
func (s *Store) IndexSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Size()
}

// Deduplicate collapses near-duplicate bullets. Bullets are compared pairwise
// in index order; at or above threshold the bullet with the lower
// helpful/max(harmful,1) ratio is absorbed into the other, summing counters.
// First match wins per bullet, chaining across pairs is not attempted. The
// index is rebuilt from the survivors. Returns the number of bullets removed.
//
// This is O(n^2) over stored embeddings, acceptable at playbook scale.
func (s *Store) Deduplicate(ctx context.Context, threshold float64) (int, error) {
	if err := errors.CheckContext(ctx, "playbook deduplicate"); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.bullets) < 2 {
		return 0, nil
	}

	removed := make(map[int]bool)

	for i := range s.bullets {
		if removed[i] {
			continue
		}
		for j := i + 1; j < len(s.bullets); j++ {
			if removed[j] {
				continue
			}

			sim := float64(s.index.Similarity(i, j))
			if sim < threshold {
				continue
			}

			if s.bullets[i].Ratio() >= s.bullets[j].Ratio() {
				s.bullets[i].Helpful += s.bullets[j].Helpful
				s.bullets[i].Harmful += s.bullets[j].Harmful
				removed[j] = true
			} else {
				s.bullets[j].Helpful += s.bullets[i].Helpful
				s.bullets[j].Harmful += s.bullets[i].Harmful
				removed[i] = true
				break
			}
		}
	}

	if len(removed) == 0 {
		return 0, nil
	}

	kept := make([]Bullet, 0, len(s.bullets)-len(removed))
	keptVecs := make([][]float32, 0, len(s.bullets)-len(removed))
	for i, bullet := range s.bullets {
		if removed[i] {
			continue
		}
		kept = append(kept, bullet)
		keptVecs = append(keptVecs, s.index.Vector(i))
	}

	s.bullets = kept
	s.idToPos = make(map[string]int, len(kept))
	for i, bullet := range kept {
		s.idToPos[bullet.ID] = i
	}
	if err := s.index.Rebuild(keptVecs); err != nil {
		return 0, err
	}

	if err := s.save(); err != nil {
		s.logger.Error(ctx, "persisting playbook after dedup: %v", err)
	}

	s.logger.Info(ctx, "deduplicated playbook, removed %d bullets", len(removed))
	return len(removed), nil
}

// Stats returns aggregate playbook counts.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{Sections: make(map[string]int)}
	if len(s.bullets) == 0 {
		return stats
	}

	now := time.Now()
	for _, bullet := range s.bullets {
		stats.Sections[bullet.Section]++
		stats.TotalHelpful += bullet.Helpful
		stats.TotalHarmful += bullet.Harmful
		if now.Sub(bullet.CreatedAt) <= recentWindow {
			stats.RecentBullets++
		}
	}
	stats.TotalBullets = len(s.bullets)

	total := stats.TotalHelpful + stats.TotalHarmful
	if total < 1 {
		total = 1
	}
	stats.HelpfulRatio = float64(stats.TotalHelpful) / float64(total)

	return stats
}

// metadataDocument is the persisted JSON layout.
type metadataDocument struct {
	Bullets      []Bullet  `json:"bullets"`
	LastUpdated  time.Time `json:"last_updated"`
	TotalBullets int       `json:"total_bullets"`
}

// save writes metadata, the markdown export and the index. Callers hold the
// write lock. A failure in any file leaves the in-memory state authoritative;
// the load path detects and repairs divergence.
func (s *Store) save() error {
	doc := metadataDocument{
		Bullets:      s.bullets,
		LastUpdated:  time.Now(),
		TotalBullets: len(s.bullets),
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.PersistenceFailed, "marshaling metadata")
	}
	if err := writeFileAtomic(filepath.Join(s.dir, metadataFileName), data); err != nil {
		return err
	}

	if err := writeFileAtomic(filepath.Join(s.dir, markdownFileName), []byte(s.renderMarkdown(doc.LastUpdated))); err != nil {
		return err
	}

	return s.index.Save(filepath.Join(s.dir, indexFileName))
}

// renderMarkdown produces the human-readable export, grouped by section in
// first-seen order. Derived output only, never read back.
func (s *Store) renderMarkdown(updated time.Time) string {
	var b strings.Builder
	b.WriteString("# ACE Playbook\n\n")
	b.WriteString("Last updated: " + updated.Format(time.RFC3339) + "\n")
	b.WriteString("Total bullets: " + strconv.Itoa(len(s.bullets)) + "\n\n")

	var order []string
	grouped := make(map[string][]Bullet)
	for _, bullet := range s.bullets {
		if _, seen := grouped[bullet.Section]; !seen {
			order = append(order, bullet.Section)
		}
		grouped[bullet.Section] = append(grouped[bullet.Section], bullet)
	}

	for _, section := range order {
		b.WriteString("## " + section + "\n\n")
		for _, bullet := range grouped[section] {
			b.WriteString(bullet.String() + "\n")
			b.WriteString(bullet.Content + "\n\n")
		}
	}
	return b.String()
}

// load restores bullets from metadata.json and the index from index.gob,
// rebuilding the index from scratch when it is missing, unreadable or out of
// step with the metadata.
func (s *Store) load(ctx context.Context) error {
	data, err := os.ReadFile(filepath.Join(s.dir, metadataFileName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, errors.PersistenceFailed, "reading playbook metadata")
	}

	var doc metadataDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(err, errors.PersistenceFailed, "parsing playbook metadata")
	}

	s.bullets = doc.Bullets
	s.idToPos = make(map[string]int, len(s.bullets))
	for i, bullet := range s.bullets {
		s.idToPos[bullet.ID] = i
	}

	index, err := LoadIndex(filepath.Join(s.dir, indexFileName), s.provider.Dimensions())
	if err == nil && index.Size() == len(s.bullets) {
		s.index = index
		s.logger.Info(ctx, "loaded playbook with %d bullets", len(s.bullets))
		return nil
	}
	if err != nil {
		s.logger.Warn(ctx, "index unavailable, rebuilding: %v", err)
	} else {
		s.logger.Warn(ctx, "index size %d diverges from %d bullets, rebuilding", index.Size(), len(s.bullets))
	}

	s.rebuildIndex(ctx)
	s.logger.Info(ctx, "loaded playbook with %d bullets (index rebuilt)", len(s.bullets))
	return nil
}

// rebuildIndex re-embeds every bullet. Per-bullet embedding failures fall
// back to zero vectors so one bad call cannot abort the whole load.
func (s *Store) rebuildIndex(ctx context.Context) {
	s.index = NewIndex(s.provider.Dimensions())
	for _, bullet := range s.bullets {
		// Add on a fresh index with provider-dimension vectors cannot fail.
		_ = s.index.Add(s.embedNormalized(ctx, bullet.Content))
	}
	if err := s.index.Save(filepath.Join(s.dir, indexFileName)); err != nil {
		s.logger.Error(ctx, "persisting rebuilt index: %v", err)
	}
}

func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return errors.Wrap(err, errors.PersistenceFailed, "writing "+filepath.Base(path))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, errors.PersistenceFailed, "replacing "+filepath.Base(path))
	}
	return nil
}
