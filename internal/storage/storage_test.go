package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Symbol string `json:"symbol"`
	Trades int    `json:"trades"`
}

func TestNewStorage_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session.json")

	s, err := NewStorage(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewStorage_EmptyPath(t *testing.T) {
	_, err := NewStorage("")
	assert.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	s, err := NewJSONStorage(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, err)

	require.NoError(t, s.Save(snapshot{Symbol: "SPY", Trades: 1}))
	require.NoError(t, s.Save(snapshot{Symbol: "SPY", Trades: 2}))

	var got snapshot
	require.NoError(t, s.Load(&got))
	assert.Equal(t, snapshot{Symbol: "SPY", Trades: 2}, got, "the latest save wins")

	_, err = os.Stat(s.Path() + ".tmp")
	assert.ErrorIs(t, err, os.ErrNotExist, "temp file is renamed away")
}

func TestLoad_Missing(t *testing.T) {
	s, err := NewJSONStorage(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, err)

	var got snapshot
	assert.ErrorIs(t, s.Load(&got), ErrNoSnapshot)
}

func TestLoad_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	s, err := NewJSONStorage(path)
	require.NoError(t, err)

	var got snapshot
	err = s.Load(&got)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSnapshot)
}
