package metadata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igharvest/pkg/models"
)

func record(dir, code string) models.ContentRecord {
	likes := int64(1200)
	return models.ContentRecord{
		ID:            "id-" + code,
		ExternalID:    code,
		URL:           "https://www.instagram.com/p/" + code + "/",
		Kind:          models.KindPost,
		Caption:       "sunrise over the ridge",
		CollectedAt:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		MediaPath:     filepath.Join(dir, code+".jpg"),
		ImageMIMEType: "image/jpeg",
		Likes:         &likes,
	}
}

func TestSidecarRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rec := record(dir, "ABC123")
	require.NoError(t, os.WriteFile(rec.MediaPath, []byte("jpeg"), 0644))

	require.False(t, Exists(rec.MediaPath))
	require.NoError(t, FromRecord(rec, "natgeo").Save(rec.MediaPath))
	require.True(t, Exists(rec.MediaPath))

	got, err := Load(rec.MediaPath)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", got.Shortcode)
	assert.Equal(t, "natgeo", got.Owner)
	require.NotNil(t, got.Likes)
	assert.Equal(t, int64(1200), *got.Likes)
	assert.Nil(t, got.Views)
}

func TestWriteSidecarsSkipsMissingMedia(t *testing.T) {
	dir := t.TempDir()
	present := record(dir, "HAVE")
	require.NoError(t, os.WriteFile(present.MediaPath, []byte("jpeg"), 0644))
	missing := record(dir, "GONE")
	none := record(dir, "NONE")
	none.MediaPath = ""

	n, err := WriteSidecars([]models.ContentRecord{present, missing, none}, "natgeo")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, Exists(present.MediaPath))
	assert.False(t, Exists(missing.MediaPath))
}

func TestExportWriteFile(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	exp := NewExport("natgeo", []models.ContentRecord{record(dir, "A"), record(dir, "B")}, now)

	path := filepath.Join(dir, "out", "natgeo.json")
	require.NoError(t, exp.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got Export
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "natgeo", got.Profile)
	assert.True(t, got.ExportedAt.Equal(now))
	require.Len(t, got.Posts, 2)
	assert.Equal(t, "B", got.Posts[1].Shortcode)
}

func TestFormattedCaption(t *testing.T) {
	assert.Equal(t, "a b c", FormattedCaption("a\n b\tc", 20))
	assert.Equal(t, "héllo w...", FormattedCaption("héllo world again", 10))
	assert.Equal(t, "", FormattedCaption("", 10))
}

func TestCleanOrphaned(t *testing.T) {
	dir := t.TempDir()
	kept := filepath.Join(dir, "A.jpg")
	require.NoError(t, os.WriteFile(kept, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(kept+".json", []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "B.jpg.json"), []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "export.json"), []byte("{}"), 0644))

	n, err := CleanOrphaned(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.FileExists(t, kept+".json")
	assert.FileExists(t, filepath.Join(dir, "export.json"))
	assert.NoFileExists(t, filepath.Join(dir, "B.jpg.json"))
}
