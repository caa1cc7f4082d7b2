package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoot(sub *cobra.Command) (*cobra.Command, *bytes.Buffer) {
	root := &cobra.Command{Use: "smptweaks", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().StringP("config", "c", "config.yml", "")
	root.AddCommand(sub)
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	return root, out
}

func TestInitConfigWritesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yml")

	root, out := newTestRoot(InitConfigCmd())
	root.SetArgs([]string{"init-config", "--config", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "wrote")
	_, err := os.Stat(path)
	require.NoError(t, err)

	root, out = newTestRoot(InitConfigCmd())
	root.SetArgs([]string{"init-config", "--config", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "already exists")
}

func TestCheckEmbeddedStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	yml := "log_mode: test\ndata_dir: " + filepath.Join(dir, "data") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	root, out := newTestRoot(CheckCmd())
	root.SetArgs([]string{"check", "-c", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "embedded store ready")
	_, err := os.Stat(filepath.Join(dir, "data", "smptweaks.db"))
	assert.NoError(t, err)
}

func TestCheckUnreachableStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	yml := `log_mode: test
data_dir: ` + dir + `
store:
  kind: networked
  dialect: postgres
  host: 127.0.0.1
  port: 1
  database: mc
  username: mc
  connect_timeout: 1s
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	root, out := newTestRoot(CheckCmd())
	root.SetArgs([]string{"check", "-c", path})
	require.Error(t, root.Execute())
	assert.Contains(t, out.String(), "networked store")
}
