package integrity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "integrity.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadManifest(t *testing.T) {
	path := writeManifest(t, `
resources:
  - name: core.bin
    sha256: aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa
    severity: critical
  - name: config.yaml
    sha256: bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb
    severity: medium
`)

	r, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	hash, severity, ok := r.Expected("core.bin")
	require.True(t, ok)
	assert.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", hash)
	assert.Equal(t, ThreatCritical, severity)

	_, severity, ok = r.Expected("config.yaml")
	require.True(t, ok)
	assert.Equal(t, ThreatMedium, severity)
}

func TestLoadManifest_UnknownSeverity(t *testing.T) {
	path := writeManifest(t, `
resources:
  - name: core.bin
    sha256: aaaa
    severity: apocalyptic
`)

	_, err := LoadManifest(path)
	assert.ErrorContains(t, err, "unknown severity")
}

func TestLoadManifest_MissingFields(t *testing.T) {
	path := writeManifest(t, `
resources:
  - name: core.bin
    severity: low
`)

	_, err := LoadManifest(path)
	assert.ErrorContains(t, err, "required")
}

func TestLoadManifest_AbsentFile(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRegistry_RegisterUnregister(t *testing.T) {
	r := NewRegistry()

	r.Register("a.bin", "hash-a", ThreatLow)
	r.Register("b.bin", "hash-b", ThreatHigh)
	assert.ElementsMatch(t, []string{"a.bin", "b.bin"}, r.Names())

	r.Register("a.bin", "hash-a2", ThreatMedium)
	hash, severity, ok := r.Expected("a.bin")
	require.True(t, ok)
	assert.Equal(t, "hash-a2", hash)
	assert.Equal(t, ThreatMedium, severity)

	r.Unregister("a.bin")
	_, _, ok = r.Expected("a.bin")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestParseThreatLevel(t *testing.T) {
	tests := []struct {
		in   string
		want ThreatLevel
		ok   bool
	}{
		{"none", ThreatNone, true},
		{"low", ThreatLow, true},
		{"medium", ThreatMedium, true},
		{"high", ThreatHigh, true},
		{"critical", ThreatCritical, true},
		{"apocalyptic", ThreatNone, false},
	}
	for _, tc := range tests {
		got, ok := ParseThreatLevel(tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
	}
}

func TestThreatLevel_Ordering(t *testing.T) {
	assert.True(t, ThreatNone < ThreatLow)
	assert.True(t, ThreatLow < ThreatMedium)
	assert.True(t, ThreatMedium < ThreatHigh)
	assert.True(t, ThreatHigh < ThreatCritical)
}
