package feedback

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

func newTestRecord(id string, rating int, fbType Type) Record {
	return Record{
		FeedbackID:    id,
		UserID:        "user-1",
		Question:      "What is 2+2?",
		ModelResponse: "4",
		UserFeedback:  "good answer",
		FeedbackType:  fbType,
		Rating:        rating,
		Timestamp:     time.Now(),
	}
}

func TestSaveAndGet(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	rec := newTestRecord("fb-1", 5, TypeCorrect)
	require.NoError(t, store.Save(rec))

	got, err := store.Get("fb-1")
	require.NoError(t, err)
	assert.Equal(t, "What is 2+2?", got.Question)
	assert.Equal(t, 5, got.Rating)
}

func TestGetNotFound(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get("fb-missing")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.FeedbackNotFound))
}

func TestSaveRejectsEmptyID(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.Error(t, store.Save(Record{}))
}

func TestListNewestFirst(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	old := newTestRecord("fb-old", 3, TypePartial)
	old.Timestamp = time.Now().Add(-time.Hour)
	require.NoError(t, store.Save(old))
	require.NoError(t, store.Save(newTestRecord("fb-new", 4, TypeCorrect)))

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "fb-new", records[0].FeedbackID)
	assert.Equal(t, "fb-old", records[1].FeedbackID)
}

func TestListSkipsMalformedFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(newTestRecord("fb-1", 4, TypeCorrect)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "raw", "garbage.json"), []byte("{not json"), 0644))

	records, err := store.List()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestPolarityHelpers(t *testing.T) {
	pos := newTestRecord("a", 5, TypeUnspecified)
	assert.True(t, pos.IsPositive())
	assert.False(t, pos.IsNegative())

	neg := newTestRecord("b", 1, TypeUnspecified)
	assert.True(t, neg.IsNegative())
	assert.False(t, neg.IsPositive())

	neutral := newTestRecord("c", 3, TypeUnspecified)
	assert.False(t, neutral.IsPositive())
	assert.False(t, neutral.IsNegative())

	typed := newTestRecord("d", 0, TypeIncorrect)
	assert.True(t, typed.IsNegative())

	praised := newTestRecord("e", 0, TypePositive)
	assert.True(t, praised.IsPositive())
}
