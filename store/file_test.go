package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
)

func TestFileStoreSessionRoundTrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	session := core.NewSession("tester")
	session.Model = "test-model"
	session.Messages = []core.Message{
		{Role: core.RoleSystem, Content: "be helpful"},
		{Role: core.RoleUser, Content: "hi"},
		{Role: core.RoleAssistant, Content: "hello", Reasoning: []map[string]any{{"text": "t"}}},
		{Role: core.RoleUser, ToolResults: []core.ToolResult{{ID: "c1", Name: "echo", Content: "x", IsError: true}}},
	}

	require.NoError(t, fs.Save(session))

	loaded, err := fs.LoadAll()
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	got := loaded[0]
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "hello", got.Messages[2].Content)
	assert.True(t, got.Messages[3].ToolResults[0].IsError)

	require.NoError(t, fs.Delete(session.ID))

	loaded, err = fs.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestFileStoreProfileRoundTrip(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	profiles := fs.Profiles()

	temp := 0.7
	profile := core.Profile{
		Name:          "researcher",
		Prompt:        "research things",
		Tools:         []string{"fetch_html"},
		Temperature:   &temp,
		MaxIterations: 5,
	}

	require.NoError(t, profiles.Save(profile))

	loaded, err := profiles.LoadAll()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, profile.Name, loaded[0].Name)
	require.NotNil(t, loaded[0].Temperature)
	assert.Equal(t, 0.7, *loaded[0].Temperature)

	require.NoError(t, profiles.Delete("researcher"))

	loaded, err = profiles.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestFileStoreDeleteUnknownIsNoop(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, fs.Delete("missing"))
	assert.NoError(t, fs.Profiles().Delete("missing"))
}

func TestInMemoryStores(t *testing.T) {
	sessions := NewInMemorySessionStore()
	profiles := NewInMemoryProfileStore()

	session := core.NewSession("tester")
	require.NoError(t, sessions.Save(session))

	loaded, err := sessions.LoadAll()
	require.NoError(t, err)
	assert.Len(t, loaded, 1)

	require.NoError(t, sessions.Delete(session.ID))
	loaded, err = sessions.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, loaded)

	require.NoError(t, profiles.Save(core.Profile{Name: "p"}))
	got, err := profiles.LoadAll()
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
