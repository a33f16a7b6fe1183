package index

import (
	"path/filepath"
	"testing"

	"go-lora-manager/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleModels() []models.ModelItem {
	return []models.ModelItem{
		{FilePath: "/l/ink.safetensors", FileName: "ink", ModelName: "Ink Wash", BaseModel: "SDXL 1.0", Tags: []string{"style"}},
		{FilePath: "/l/knight.safetensors", FileName: "knight", BaseModel: "SD 1.5", Tags: []string{"character"},
			Civitai: map[string]any{"trainedWords": []any{"armored knight"}}},
		{FileName: "no-path"},
	}
}

func TestFromModel(t *testing.T) {
	item := FromModel(models.ModelTypeLora, sampleModels()[1])
	assert.Equal(t, "/l/knight.safetensors", item.ID)
	assert.Equal(t, "knight", item.Name, "falls back to the file name")
	assert.Equal(t, "lora", item.Type)
	assert.Equal(t, []string{"armored knight"}, item.TrainedWords)
}

func TestIndexAndSearch(t *testing.T) {
	idx, err := OpenMem()
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, IndexModels(idx, models.ModelTypeLora, sampleModels()))
	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.EqualValues(t, 2, count, "entries without a path are skipped")

	hits, total, err := SearchIndex(idx, "+tags:character", 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, hits, 1)
	assert.Equal(t, "/l/knight.safetensors", hits[0].FilePath)
	assert.Equal(t, "SD 1.5", hits[0].BaseModel)

	hits, _, err = SearchIndex(idx, "wash", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Ink Wash", hits[0].Name)

	require.NoError(t, RemoveModel(idx, "/l/ink.safetensors"))
	_, total, err = SearchIndex(idx, "wash", 10)
	require.NoError(t, err)
	assert.Zero(t, total)

	_, _, err = SearchIndex(idx, "  ", 10)
	assert.Error(t, err)
}

func TestOpenOrCreateIndexOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.bleve")
	idx, err := OpenOrCreateIndex(path)
	require.NoError(t, err)
	require.NoError(t, IndexModels(idx, models.ModelTypeCheckpoint, sampleModels()[:1]))
	require.NoError(t, idx.Close())

	idx, err = OpenOrCreateIndex(path)
	require.NoError(t, err)
	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	require.NoError(t, idx.Close())

	require.NoError(t, DeleteIndex(path))
	assert.NoDirExists(t, path)
}

func TestReplaceModelsDropsStaleEntries(t *testing.T) {
	idx, err := OpenMem()
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, IndexModels(idx, models.ModelTypeLora, sampleModels()))
	require.NoError(t, IndexModels(idx, models.ModelTypeCheckpoint, []models.ModelItem{
		{FilePath: "/c/base.safetensors", FileName: "base"},
	}))

	removed, err := ReplaceModels(idx, models.ModelTypeLora, sampleModels()[1:2])
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, total, err := SearchIndex(idx, "wash", 10)
	require.NoError(t, err)
	assert.Zero(t, total, "a model gone from the backend is gone from the index")

	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.EqualValues(t, 2, count, "entries of other model types are kept")

	removed, err = ReplaceModels(idx, models.ModelTypeLora, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	count, err = idx.DocCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
