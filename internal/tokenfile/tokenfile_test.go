package tokenfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  "access-abc",
		RefreshToken: "refresh-def",
		TokenType:    "Bearer",
		Expiry:       time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/var/lib/hive", "onedrive", "token.json"), Path("/var/lib/hive", "onedrive"))
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoad_MissingTokenField(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"scopes":["a"]}`), FilePerms))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing token field")
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), FilePerms))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func TestSave_CreatesDirectoryWithPerms(t *testing.T) {
	path := Path(t.TempDir(), "onedrive")

	require.NoError(t, Save(path, testToken(), []string{"Files.ReadWrite"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, dirInfo.IsDir())
}

func TestSave_Load(t *testing.T) {
	path := Path(t.TempDir(), "onedrive")
	require.NoError(t, Save(path, testToken(), []string{"offline_access", "Files.ReadWrite"}))

	tf, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "access-abc", tf.Token.AccessToken)
	assert.Equal(t, "refresh-def", tf.Token.RefreshToken)
	assert.False(t, tf.SavedAt.IsZero())

	assert.True(t, tf.ScopesMatch([]string{"Files.ReadWrite", "offline_access"}))
	assert.False(t, tf.ScopesMatch([]string{"Files.ReadWrite.All"}))
}

func TestSave_NilToken(t *testing.T) {
	require.Error(t, Save(filepath.Join(t.TempDir(), FileName), nil, nil))
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(filepath.Join(dir, FileName), testToken(), nil))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, FileName, entries[0].Name())
}

func TestRemove_Idempotent(t *testing.T) {
	path := Path(t.TempDir(), "onedrive")
	require.NoError(t, Save(path, testToken(), nil))

	require.NoError(t, Remove(path))
	require.NoError(t, Remove(path))

	_, err := Load(path)
	require.ErrorIs(t, err, ErrNotFound)
}
