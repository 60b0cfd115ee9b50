package converter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jkiprotich/medcase-pipeline/internal/models"
	"github.com/jkiprotich/medcase-pipeline/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConverter writes a fixed number of JPEGs per input into the output dir.
type fakeConverter struct {
	pagesPerDoc int
	failOn      string
	calls       []string
}

func (f *fakeConverter) Convert(_ context.Context, inputPath, outputDir string) ([]string, error) {
	f.calls = append(f.calls, filepath.Base(inputPath))

	if f.failOn != "" && filepath.Base(inputPath) == f.failOn {
		return nil, fmt.Errorf("converter failed for %s", f.failOn)
	}

	var out []string
	for i := 1; i <= f.pagesPerDoc; i++ {
		p := filepath.Join(outputDir, fmt.Sprintf("page_%d.jpeg", i))
		if err := os.WriteFile(p, []byte("jpeg"), 0644); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func savedFiles(t *testing.T, dir string, names ...string) []SavedFile {
	t.Helper()

	var files []SavedFile
	for i, name := range names {
		path := filepath.Join(dir, fmt.Sprintf("%03d_%s", i, name))
		require.NoError(t, os.WriteFile(path, []byte("content of "+name), 0644))
		files = append(files, SavedFile{
			Index:    i,
			Filename: name,
			Path:     path,
			Kind:     models.ClassifyFile(name),
		})
	}
	return files
}

func TestConvertAllAssignsSourceIndexFromInputOrder(t *testing.T) {
	dir := t.TempDir()
	files := savedFiles(t, dir, "a.jpg", "b.txt", "c.jpg")

	fake := &fakeConverter{pagesPerDoc: 2}
	a := NewAdapter(fake, utils.NewLogger("error"))

	docs, err := a.ConvertAll(context.Background(), files, filepath.Join(dir, "converted"))
	require.NoError(t, err)

	// b.txt is skipped but its position still counts: indices are 0 and 2.
	require.Len(t, docs, 2)
	assert.Equal(t, 0, docs[0].SourceIndex)
	assert.Equal(t, 2, docs[1].SourceIndex)
	assert.Len(t, docs[0].ImagePaths, 2)
	assert.Len(t, docs[1].ImagePaths, 2)

	assert.Equal(t, []string{"000_a.jpg", "002_c.jpg"}, fake.calls)
}

func TestConvertAllSeparatesOutputPerDocument(t *testing.T) {
	dir := t.TempDir()
	files := savedFiles(t, dir, "a.jpg", "c.jpg")

	a := NewAdapter(&fakeConverter{pagesPerDoc: 1}, utils.NewLogger("error"))

	docs, err := a.ConvertAll(context.Background(), files, filepath.Join(dir, "converted"))
	require.NoError(t, err)

	assert.NotEqual(t, filepath.Dir(docs[0].ImagePaths[0]), filepath.Dir(docs[1].ImagePaths[0]))
}

func TestConvertAllIsAllOrNothing(t *testing.T) {
	dir := t.TempDir()
	files := savedFiles(t, dir, "a.jpg", "bad.jpg", "c.jpg")

	fake := &fakeConverter{pagesPerDoc: 1, failOn: "001_bad.jpg"}
	a := NewAdapter(fake, utils.NewLogger("error"))

	docs, err := a.ConvertAll(context.Background(), files, filepath.Join(dir, "converted"))
	require.Error(t, err)
	assert.Nil(t, docs)
}

func TestConvertAllRejectsRequestsWithoutDocuments(t *testing.T) {
	dir := t.TempDir()
	files := savedFiles(t, dir, "notes.txt")

	a := NewAdapter(&fakeConverter{pagesPerDoc: 1}, utils.NewLogger("error"))

	_, err := a.ConvertAll(context.Background(), files, filepath.Join(dir, "converted"))
	require.Error(t, err)
}

func TestConvertAllRejectsCorruptPDF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "000_broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not a pdf"), 0644))

	files := []SavedFile{{Index: 0, Filename: "broken.pdf", Path: path, Kind: models.KindDocument}}

	fake := &fakeConverter{pagesPerDoc: 1}
	a := NewAdapter(fake, utils.NewLogger("error"))

	_, err := a.ConvertAll(context.Background(), files, filepath.Join(dir, "converted"))
	require.Error(t, err)
	assert.Empty(t, fake.calls, "converter must not run on a file that fails preflight")
}

func TestSupplementaryTextJoinsNotesAndTextFiles(t *testing.T) {
	dir := t.TempDir()
	files := savedFiles(t, dir, "a.jpg", "first.txt", "second.txt")

	a := NewAdapter(&fakeConverter{pagesPerDoc: 1}, utils.NewLogger("error"))

	got := a.SupplementaryText(files, "doctor notes")
	assert.Equal(t, "doctor notes\n\ncontent of first.txt\n\ncontent of second.txt", got)
}

func TestSupplementaryTextEmptyWhenNothingToSay(t *testing.T) {
	dir := t.TempDir()
	files := savedFiles(t, dir, "a.jpg")

	a := NewAdapter(&fakeConverter{pagesPerDoc: 1}, utils.NewLogger("error"))

	assert.Equal(t, "", a.SupplementaryText(files, ""))
	assert.Equal(t, "", a.SupplementaryText(files, "   "))
}
