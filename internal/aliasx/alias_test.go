package aliasx

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivedID_Deterministic(t *testing.T) {
	a := DerivedID("report")
	b := DerivedID("report")
	assert.Equal(t, a, b)

	raw, err := hex.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, derivedIDBytes)
}

func TestDerivedID_DistinctNames(t *testing.T) {
	names := []string{"report", "report2", "Report", "report ", "", "a/b"}
	seen := make(map[string]string, len(names))
	for _, n := range names {
		id := DerivedID(n)
		if prev, ok := seen[id]; ok {
			t.Fatalf("collision: %q and %q both derive %s", prev, n, id)
		}
		seen[id] = n
	}
}

func TestPrefixes(t *testing.T) {
	assert.True(t, strings.HasPrefix(KeyAlias("report"), "storage_key_"))
	assert.True(t, strings.HasPrefix(MetadataKey("report"), "file_meta_"))
	assert.Equal(t,
		strings.TrimPrefix(KeyAlias("report"), "storage_key_"),
		strings.TrimPrefix(MetadataKey("report"), "file_meta_"),
		"both keys share the same derived id")
}
