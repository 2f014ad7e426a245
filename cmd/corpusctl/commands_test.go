package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCorpus = `[
	{"text":"The LORD is my shepherd; I shall not want.","reference":"Psalm 23:1","embedding":[1,0]},
	{"text":"He maketh me to lie down in green pastures.","reference":"Psalm 23:2","embedding":[0,1]},
	{"text":"He restoreth my soul.","reference":"Psalm 23:3","embedding":[0.5,0.5]}
]`

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeCorpus(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kjv.json")
	require.NoError(t, os.WriteFile(path, []byte(testCorpus), 0o644))
	return path
}

func TestInspect(t *testing.T) {
	path := writeCorpus(t)

	out, err := runCmd(t, "inspect", path, "--sample", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "records:    3")
	assert.Contains(t, out, "dimensions: 2")
	assert.Contains(t, out, "[1] Psalm 23:2")
	assert.NotContains(t, out, "[2]")
}

func TestInspect_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"text":"x"}]`), 0o644))

	_, err := runCmd(t, "inspect", path)
	require.ErrorContains(t, err, "malformed corpus record")
}

func TestSearch_Vector(t *testing.T) {
	path := writeCorpus(t)

	out, err := runCmd(t, "search", "--cache", path, "--vector", "0.9,0.1", "-k", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Psalm 23:1")
	assert.NotContains(t, out, "Psalm 23:2")
}

func TestSearch_RequiresQuery(t *testing.T) {
	path := writeCorpus(t)

	_, err := runCmd(t, "search", "--cache", path)
	require.Error(t, err)
}

func TestFetch_FromFileURL(t *testing.T) {
	src := writeCorpus(t)
	cache := filepath.Join(t.TempDir(), "cache", "kjv.json")
	t.Setenv("CORPUS_URL", "file://"+src)

	out, err := runCmd(t, "fetch", "--cache", cache)
	require.NoError(t, err)
	assert.Contains(t, out, "3 records, 2 dimensions (cached)")

	data, err := os.ReadFile(cache)
	require.NoError(t, err)
	assert.Equal(t, testCorpus, string(data))
}

func TestParseVector(t *testing.T) {
	v, err := parseVector("[1, -0.5,2]")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, -0.5, 2}, v)

	_, err = parseVector("1,two")
	require.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
