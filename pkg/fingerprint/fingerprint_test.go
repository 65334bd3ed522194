package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate_KeyOrderIndependent(t *testing.T) {
	a := map[string]any{"keys": []string{"p:margaux", "s:M622"}, "country": "FR", "limit": 200}
	b := map[string]any{"limit": 200, "country": "FR", "keys": []string{"p:margaux", "s:M622"}}

	assert.Equal(t, Generate(a), Generate(b))
	assert.NotEqual(t, Generate(a), Generate(map[string]any{"country": "IT", "keys": []string{"p:margaux", "s:M622"}, "limit": 200}))
	assert.Len(t, Generate(a), 64)
}

func TestBucket(t *testing.T) {
	first := Bucket("import-1", "7")
	assert.Equal(t, first, Bucket("import-1", "7"))
	assert.GreaterOrEqual(t, first, 0.0)
	assert.Less(t, first, 1.0)

	// roughly uniform over many keys
	below := 0
	for i := 0; i < 4000; i++ {
		if Bucket("import-1", string(rune('a'+i%26)), string(rune(i))) < 0.25 {
			below++
		}
	}
	assert.InDelta(t, 1000, below, 150)
}

func TestStrings_SeparatesParts(t *testing.T) {
	assert.NotEqual(t, Strings("ab", "c"), Strings("a", "bc"))
}
