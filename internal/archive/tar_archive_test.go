package archive_test

import (
	"archive/tar"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d-zero-dev/nitpicker-go/internal/archive"
)

func TestTarArchiveWritesCatalogAndHTML(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "out.tar")

	a, err := archive.NewTarArchive(outputPath)
	require.Nil(t, err)

	require.Nil(t, a.UpsertPage(archive.Page{URL: "http://h/a", StatusCode: 200, IsTarget: true}))
	require.Nil(t, a.UpsertResource(archive.Resource{URL: "http://h/style.css", StatusCode: 200}))
	require.Nil(t, a.LinkPageToResource("http://h/a", "http://h/style.css"))
	require.Nil(t, a.RecordReferrer("http://h/", "http://h/a", "A", "http://h/a"))
	require.Nil(t, a.WriteHTML("http://h/a", "<html>hi</html>"))
	require.Nil(t, a.Close())

	f, err2 := os.Open(outputPath)
	require.NoError(t, err2)
	defer f.Close()

	reader := tar.NewReader(f)
	found := map[string][]byte{}
	for {
		header, err3 := reader.Next()
		if err3 == io.EOF {
			break
		}
		require.NoError(t, err3)
		data, err4 := io.ReadAll(reader)
		require.NoError(t, err4)
		found[header.Name] = data
	}

	catalogBytes, ok := found["catalog.json"]
	require.True(t, ok)

	var decoded struct {
		Pages     []archive.Page     `json:"pages"`
		Resources []archive.Resource `json:"resources"`
	}
	require.NoError(t, json.Unmarshal(catalogBytes, &decoded))
	require.Len(t, decoded.Pages, 1)
	assert.Equal(t, "http://h/a", decoded.Pages[0].URL)
	require.Len(t, decoded.Resources, 1)

	htmlFound := false
	for name := range found {
		if name != "catalog.json" {
			htmlFound = true
		}
	}
	assert.True(t, htmlFound)
}

func TestTarArchiveCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "out.tar")

	a, err := archive.NewTarArchive(outputPath)
	require.Nil(t, err)
	require.Nil(t, a.Close())
	require.Nil(t, a.Close())
}

func TestUpsertPageReplacesOnSameURL(t *testing.T) {
	dir := t.TempDir()
	outputPath := filepath.Join(dir, "out.tar")

	a, err := archive.NewTarArchive(outputPath)
	require.Nil(t, err)

	require.Nil(t, a.UpsertPage(archive.Page{URL: "http://h/a", StatusCode: 500}))
	require.Nil(t, a.UpsertPage(archive.Page{URL: "http://h/a", StatusCode: 200}))
	require.Nil(t, a.Close())

	f, _ := os.Open(outputPath)
	defer f.Close()
	reader := tar.NewReader(f)
	for {
		header, err2 := reader.Next()
		if err2 == io.EOF {
			break
		}
		if header.Name == "catalog.json" {
			data, _ := io.ReadAll(reader)
			var decoded struct {
				Pages []archive.Page `json:"pages"`
			}
			require.NoError(t, json.Unmarshal(data, &decoded))
			require.Len(t, decoded.Pages, 1)
			assert.Equal(t, 200, decoded.Pages[0].StatusCode)
		}
	}
}
