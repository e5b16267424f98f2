package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectedGamesRoundTrip(t *testing.T) {
	db := testDB(t)

	require.NoError(t, db.AddSelectedGame("u1", "cond-1"))
	require.NoError(t, db.AddSelectedGame("u1", "cond-2"))
	// Re-adding is a no-op.
	require.NoError(t, db.AddSelectedGame("u1", "cond-1"))

	gs, err := db.GetOrCreateSettings("u1", GlobalSettings{})
	require.NoError(t, err)
	assert.Equal(t, []string{"cond-1", "cond-2"}, gs.SelectedGames())

	require.NoError(t, db.RemoveSelectedGame("u1", "cond-1"))
	gs, err = db.GetOrCreateSettings("u1", GlobalSettings{})
	require.NoError(t, err)
	assert.Equal(t, []string{"cond-2"}, gs.SelectedGames())
}

func TestSelectedGamesMalformedJSON(t *testing.T) {
	gs := &GlobalSettings{BotConfigJSON: "{not json"}
	assert.Nil(t, gs.SelectedGames())

	gs.BotConfigJSON = ""
	assert.Nil(t, gs.SelectedGames())
}
