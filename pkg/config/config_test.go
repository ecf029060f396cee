package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fenio/zed-csi/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zed-csi.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o640))
	return path
}

func TestLoadMissingFileReturnsEmptyConfig(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	require.NoError(t, err)
	tc, err := cfg.TransportConfig()
	require.NoError(t, err)
	assert.Equal(t, transport.Config{Kind: transport.Local, Sudo: false}, tc)
}

func TestLoadLocalWithSudo(t *testing.T) {
	path := writeConfig(t, `
node:
  control_mode:
    type: local
    sudo: "true"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	tc, err := cfg.TransportConfig()
	require.NoError(t, err)
	assert.Equal(t, transport.Config{Kind: transport.Local, Sudo: true}, tc)
}

func TestLoadChrootMissingPath(t *testing.T) {
	path := writeConfig(t, `
node:
  control_mode:
    type: chroot
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	_, err = cfg.TransportConfig()
	assert.Error(t, err)
}

func TestLoadChroot(t *testing.T) {
	path := writeConfig(t, `
node:
  control_mode:
    type: chroot
    path: /mnt/host
    sudo: "1"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	tc, err := cfg.TransportConfig()
	require.NoError(t, err)
	assert.Equal(t, transport.Config{Kind: transport.Chroot, Sudo: true, ChrootPath: "/mnt/host"}, tc)
}

func TestLoadSSHMissingFieldsInOrder(t *testing.T) {
	cases := []string{
		"node:\n  control_mode:\n    type: ssh\n",
		"node:\n  control_mode:\n    type: ssh\n    user: root\n",
		"node:\n  control_mode:\n    type: ssh\n    user: root\n    host: storage.example\n",
		"node:\n  control_mode:\n    type: ssh\n    user: root\n    host: storage.example\n    port: \"22\"\n",
	}
	for _, body := range cases {
		path := writeConfig(t, body)
		cfg, err := Load(path)
		require.NoError(t, err)
		_, err = cfg.TransportConfig()
		assert.Error(t, err)
	}
}

func TestLoadSSH(t *testing.T) {
	path := writeConfig(t, `
node:
  control_mode:
    type: ssh
    user: root
    host: storage.example
    port: "22"
    private_key: "-----BEGIN KEY-----\nabc\n-----END KEY-----"
    sudo: "true"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	tc, err := cfg.TransportConfig()
	require.NoError(t, err)
	require.NotNil(t, tc.SSH)
	assert.Equal(t, transport.SSH, tc.Kind)
	assert.True(t, tc.Sudo)
	assert.Equal(t, "root", tc.SSH.User)
	assert.Equal(t, "storage.example", tc.SSH.Host)
	assert.Equal(t, "22", tc.SSH.Port)
}

func TestLoadUnknownType(t *testing.T) {
	path := writeConfig(t, `
node:
  control_mode:
    type: carrier-pigeon
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	_, err = cfg.TransportConfig()
	assert.Error(t, err)
}
