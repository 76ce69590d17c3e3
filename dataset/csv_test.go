package dataset

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeTemp(t, "trials.csv", "rt,cond,score\n0.5,a,1\n0.7,b,\n0.9,a,3\n")

	tbl, err := LoadCSV(path)
	require.NoError(t, err)

	assert.Equal(t, 3, tbl.NumRows())
	assert.Equal(t, []string{"rt", "cond", "score"}, tbl.Names())

	rt, err := tbl.Numeric("rt")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.7, 0.9}, rt)

	cond, err := tbl.Labels("cond")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "a"}, cond)

	score, err := tbl.Numeric("score")
	require.NoError(t, err)
	assert.Equal(t, 1.0, score[0])
	assert.True(t, math.IsNaN(score[1]), "empty cell is missing")
	assert.Equal(t, 3.0, score[2])
}

func TestLoadCSVRaggedRow(t *testing.T) {
	// encoding/csv itself rejects rows with the wrong field count.
	path := writeTemp(t, "bad.csv", "a,b\n1,2\n3\n")
	_, err := LoadCSV(path)
	assert.Error(t, err)
}

func TestLoadCSVMissingFile(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestLoadMatrixCSVWithHeader(t *testing.T) {
	path := writeTemp(t, "sig.csv", "t0,t1,t2\n1,2,3\n4,,6\n")

	m, err := LoadMatrixCSV(path)
	require.NoError(t, err)

	rows, cols := m.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 3, cols)
	assert.Equal(t, 1.0, m.At(0, 0))
	assert.True(t, math.IsNaN(m.At(1, 1)))
	assert.Equal(t, 6.0, m.At(1, 2))
}

func TestLoadMatrixCSVHeaderless(t *testing.T) {
	path := writeTemp(t, "sig.csv", "1,2\n3,4\n")

	m, err := LoadMatrixCSV(path)
	require.NoError(t, err)

	rows, cols := m.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 2, cols)
	assert.Equal(t, 4.0, m.At(1, 1))
}

func TestLoadMatrixCSVEmpty(t *testing.T) {
	path := writeTemp(t, "empty.csv", "")
	_, err := LoadMatrixCSV(path)
	assert.Error(t, err)
}
