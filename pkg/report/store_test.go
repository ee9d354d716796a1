package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "igaudience/pkg/errors"
	"igaudience/pkg/logger"
)

var saveTime = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

func newTestStore(t *testing.T) (*FileStore, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(saveTime)
	s, err := NewFileStore(filepath.Join(t.TempDir(), "results"), WithClock(clock), WithLogger(logger.NewNopLogger()))
	require.NoError(t, err)
	return s, clock
}

func TestSaveWritesTimestampedFile(t *testing.T) {
	s, _ := newTestStore(t)

	path, err := s.Save("nike", map[string]interface{}{"status": "completed", "count": 3})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir(), "nike_20240309_140507.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"count\": 3")

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "completed", got["status"])

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestSaveIsAppendOnly(t *testing.T) {
	s, clock := newTestStore(t)

	first, err := s.Save("nike", map[string]int{"run": 1})
	require.NoError(t, err)
	second, err := s.Save("nike", map[string]int{"run": 2})
	require.NoError(t, err)
	clock.Advance(time.Second)
	third, err := s.Save("nike", map[string]int{"run": 3})
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, filepath.Join(s.Dir(), "nike_20240309_140507-2.json"), second)
	assert.Equal(t, filepath.Join(s.Dir(), "nike_20240309_140508.json"), third)

	files, err := s.List("nike")
	require.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestSaveError(t *testing.T) {
	s, _ := newTestStore(t)

	cause := errs.New(errs.ErrorTypeNotFound, "instagram.Profile", "profile not found")
	path, err := s.SaveError("ghost_brand", cause, map[string]interface{}{"quality_threshold_used": 30})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir(), "ghost_brand_20240309_140507_error.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec ErrorRecord
	require.NoError(t, json.Unmarshal(data, &rec))

	assert.Equal(t, StatusError, rec.Status)
	assert.Equal(t, "ghost_brand", rec.Key)
	assert.Equal(t, cause.Error(), rec.Error)
	assert.Equal(t, "not_found", rec.ErrorType)
	assert.Equal(t, saveTime, rec.Timestamp)
	assert.Equal(t, float64(30), rec.Meta["quality_threshold_used"])
	_, err = uuid.Parse(rec.RunID)
	assert.NoError(t, err)
}

func TestSaveRejectsEmptyKey(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Save("  ", map[string]int{})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeInvalidArgument))
}

func TestListIgnoresOtherKeys(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Save("nike", 1)
	require.NoError(t, err)
	_, err = s.Save("nike_running", 2)
	require.NoError(t, err)
	_, err = s.SaveError("nike", errs.New(errs.ErrorTypeTimeout, "op", "slow"), nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "nike_notes.txt"), []byte("x"), 0644))

	files, err := s.List("nike")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "nike_20240309_140507.json", filepath.Base(files[0]))
	assert.Equal(t, "nike_20240309_140507_error.json", filepath.Base(files[1]))
}

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "nike", SanitizeKey("@nike"))
	assert.Equal(t, "the.brand_co", SanitizeKey("the.brand_co"))
	assert.Equal(t, "a_b_c", SanitizeKey("a/b c"))
	assert.Equal(t, "", SanitizeKey(" "))
}
