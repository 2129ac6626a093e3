package curator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

// Merger deterministically applies deltas to the playbook store and archives
// each applied delta to an append-only audit directory.
type Merger struct {
	store      *playbook.Store
	updatesDir string
	logger     *logging.Logger
}

// NewMerger creates a merger writing audit records under updatesDir.
func NewMerger(store *playbook.Store, updatesDir string) (*Merger, error) {
	if err := os.MkdirAll(updatesDir, 0755); err != nil {
		return nil, errors.Wrap(err, errors.PersistenceFailed, "creating updates directory")
	}
	return &Merger{
		store:      store,
		updatesDir: updatesDir,
		logger:     logging.GetLogger(),
	}, nil
}

// Merge applies the delta's operations in list order. UPDATE increments are
// issued as individual unit counter calls, each independently durable. A
// failure mid-list returns an error carrying the failed operation index;
// operations already applied stay applied, there is no rollback.
func (m *Merger) Merge(ctx context.Context, delta Delta) error {
	for i, op := range delta.Operations {
		switch op.Kind {
		case OpAdd:
			section := op.Section
			if section == "" {
				section = playbook.DefaultSection
			}
			id, err := m.store.Add(ctx, op.Content, section)
			if err != nil {
				return errors.WithFields(
					errors.Wrap(err, errors.MergeFailed, "applying ADD operation"),
					errors.Fields{"operation_index": i, "feedback_id": delta.SourceFeedbackID},
				)
			}
			m.logger.Debug(ctx, "merge added bullet %s", id)

		case OpUpdate:
			for n := 0; n < op.HelpfulIncrement; n++ {
				if !m.store.UpdateCounters(op.BulletID, true) {
					m.logger.Warn(ctx, "merge skipped helpful increment for unknown bullet %s", op.BulletID)
					break
				}
			}
			for n := 0; n < op.HarmfulIncrement; n++ {
				if !m.store.UpdateCounters(op.BulletID, false) {
					m.logger.Warn(ctx, "merge skipped harmful increment for unknown bullet %s", op.BulletID)
					break
				}
			}

		default:
			return errors.WithFields(
				errors.New(errors.MergeFailed, "unknown operation kind"),
				errors.Fields{"operation_index": i, "kind": string(op.Kind)},
			)
		}
	}

	if err := m.archive(delta); err != nil {
		// Audit loss is logged, not fatal: the mutations are already durable.
		m.logger.Error(ctx, "archiving delta: %v", err)
	}
	return nil
}

// archive writes the whole delta as one immutable JSON record named by
// timestamp.
func (m *Merger) archive(delta Delta) error {
	data, err := json.MarshalIndent(delta, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.PersistenceFailed, "marshaling delta record")
	}

	name := "update_" + time.Now().Format("20060102_150405.000000000") + ".json"
	path := filepath.Join(m.updatesDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, errors.PersistenceFailed, "writing delta record")
	}
	return nil
}
