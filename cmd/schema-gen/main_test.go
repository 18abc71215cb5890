package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateGroupSchema(t *testing.T) {
	want := map[string][]string{
		"school":   {"School"},
		"manifest": {"Manifest", "Entry"},
		"reports":  {"RunResult", "ValidationResult", "BrokenLink", "Report", "Result", "Quality"},
	}

	for _, group := range groups() {
		t.Run(group.Name, func(t *testing.T) {
			schema := generateGroupSchema(group)
			defs, ok := schema["$defs"].(map[string]any)
			require.True(t, ok)
			for _, name := range want[group.Name] {
				assert.Contains(t, defs, name)
			}
		})
	}
}

func TestWriteSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "school.json")
	require.NoError(t, writeSchema(generateGroupSchema(groups()[0]), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		ID   string                     `json:"$id"`
		Defs map[string]json.RawMessage `json:"$defs"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "https://sekolah-pseo.dev/schemas/school.json", doc.ID)
	assert.Contains(t, string(doc.Defs["School"]), `"npsn"`)
}
