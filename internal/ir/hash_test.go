package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() RegistrySnapshot {
	return RegistrySnapshot{
		Components: []ComponentDef{
			{Name: "Position", Properties: []Property{{Name: "x", Type: TypeNumber}}},
		},
		Systems: []SystemDef{
			{Name: "Move", RequiredComponents: []string{"Position"}, Logic: "// noop"},
		},
	}
}

func TestRegistryHashDeterministic(t *testing.T) {
	h1, err := RegistryHash(sampleSnapshot())
	require.NoError(t, err)
	h2, err := RegistryHash(sampleSnapshot())
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestRegistryHashIgnoresRuntimeState(t *testing.T) {
	base, err := RegistryHash(sampleSnapshot())
	require.NoError(t, err)

	ran := sampleSnapshot()
	ran.Systems[0].RunCount = 12
	ran.Systems[0].LastError = &ErrorRecord{Kind: CodeRuntimeFault, Message: "x"}
	after, err := RegistryHash(ran)
	require.NoError(t, err)

	assert.Equal(t, base, after)
	assert.Equal(t, int64(12), ran.Systems[0].RunCount, "input must not be mutated")
}

func TestRegistryHashSensitiveToLogic(t *testing.T) {
	base, err := RegistryHash(sampleSnapshot())
	require.NoError(t, err)

	changed := sampleSnapshot()
	changed.Systems[0].Logic = "// other"
	after, err := RegistryHash(changed)
	require.NoError(t, err)

	assert.NotEqual(t, base, after)
}

func TestDomainSeparation(t *testing.T) {
	logic := LogicHash("x")
	content, err := ContentHash(DomainWorld, "x")
	require.NoError(t, err)
	assert.NotEqual(t, logic, content)
}
