package sidefile

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opendatahub/dataset-crawler/internal/dataset"
)

func TestWriterAppendsNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := NewWriter(dir, "job-1")
	require.NoError(t, err)

	recs := []dataset.Record{
		{Hash: "h1", Title: "Pop 2024", URL: "http://x.test/item/42", Source: "Test Portal"},
		{Hash: "h2", Title: "Health Facilities", URL: "http://x.test/item/43", Source: "Test Portal"},
	}
	for _, rec := range recs {
		require.NoError(t, w.Append(rec))
	}
	require.NoError(t, w.Close())

	f, err := os.Open(filepath.Join(dir, "job-1.ndjson"))
	require.NoError(t, err)
	defer f.Close()

	var got []dataset.Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec dataset.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		got = append(got, rec)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, got, 2)
	require.Equal(t, "Pop 2024", got[0].Title)
	require.Equal(t, "h2", got[1].Hash)
}

func TestWriterDoesNotCreateFileWithoutAppend(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := NewWriter(dir, "job-2")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = os.Stat(w.Path())
	require.True(t, os.IsNotExist(err))
}

func TestWriterAppendAfterCloseReopens(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := NewWriter(dir, "job-3")
	require.NoError(t, err)

	require.NoError(t, w.Append(dataset.Record{Hash: "h1", Title: "A"}))
	require.NoError(t, w.Close())
	require.NoError(t, w.Append(dataset.Record{Hash: "h2", Title: "B"}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	require.Contains(t, string(data), `"h1"`)
	require.Contains(t, string(data), `"h2"`)
}

func TestNewWriterRequiresJobID(t *testing.T) {
	t.Parallel()

	_, err := NewWriter(t.TempDir(), "")
	require.Error(t, err)
}
