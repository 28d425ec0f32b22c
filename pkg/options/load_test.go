package options

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWhenNoFileGiven(t *testing.T) {
	o, err := Load("")
	require.NoError(t, err)
	require.Equal(t, NewDefaultOptions(), o)
}

func TestLoadParsesJWCCOverridingOnlyGivenFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ignite.jwcc")
	contents := `{
		// cache listener
		"server": { "socket_addr": ":9999" },
		"seg": { "eviction": "fifo" },
	}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	o, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9999", o.Server.SocketAddr)
	require.Equal(t, "fifo", o.Seg.Eviction)
	require.Equal(t, DefaultHeapSize, o.Seg.HeapSize) // untouched field keeps its default
}

func TestLoadAppliesOverridesAfterFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ignite.jwcc")
	require.NoError(t, os.WriteFile(path, []byte(`{"server": {"socket_addr": ":9999"}}`), 0o644))

	o, err := Load(path, WithSocketAddr(":7000"), WithWorkerThreads(4))
	require.NoError(t, err)
	require.Equal(t, ":7000", o.Server.SocketAddr)
	require.Equal(t, 4, o.Worker.Threads)
}

func TestLoadRejectsUnknownEvictionPolicy(t *testing.T) {
	_, err := Load("", WithEviction("bogus"))
	require.Error(t, err)
}

func TestValidateRejectsPartialTLSConfig(t *testing.T) {
	o := NewDefaultOptions()
	o.TLS.CertPath = "/tmp/cert.pem"
	require.Error(t, Validate(o))
}

func TestValidateAcceptsFullTLSConfig(t *testing.T) {
	o := NewDefaultOptions()
	o.TLS.CertPath = "/tmp/cert.pem"
	o.TLS.ChainPath = "/tmp/chain.pem"
	o.TLS.KeyPath = "/tmp/key.pem"
	require.NoError(t, Validate(o))
}

func TestEvictionPolicyMapsEveryName(t *testing.T) {
	for _, name := range []string{"", "none", "random", "fifo", "cte", "util", "merge"} {
		_, err := EvictionPolicy(name)
		require.NoError(t, err, name)
	}
}

