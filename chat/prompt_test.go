package chat

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptStore_Fallback(t *testing.T) {
	p, err := NewPromptStore("", "be brief", quietLogger())
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, "be brief", p.Prompt())
}

func TestPromptStore_LoadsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("first prompt\n"), 0o600))

	p, err := NewPromptStore(path, "fallback", quietLogger())
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, "first prompt", p.Prompt())

	require.NoError(t, os.WriteFile(path, []byte("second prompt"), 0o600))
	assert.Eventually(t, func() bool {
		return p.Prompt() == "second prompt"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestPromptStore_KeepsPromptOnEmptyReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("stable"), 0o600))

	p, err := NewPromptStore(path, "", quietLogger())
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, os.WriteFile(path, []byte("   "), 0o600))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, "stable", p.Prompt())
}

func TestPromptStore_MissingFile(t *testing.T) {
	_, err := NewPromptStore(filepath.Join(t.TempDir(), "absent.txt"), "", quietLogger())
	assert.Error(t, err)
}

func TestPromptStore_CloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	p, err := NewPromptStore(path, "", quietLogger())
	require.NoError(t, err)
	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())
}
