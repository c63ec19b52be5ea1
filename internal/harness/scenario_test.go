package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: parse-check
description: two steps
steps:
  - intern: {key: cpu0, label: CPU 0}
  - begin: {entity: cpu0, handle: a, start: 5}
    expect: SOME_CODE
`))
	require.NoError(t, err)
	assert.Equal(t, "parse-check", s.Name)
	require.Len(t, s.Steps, 2)
	require.NotNil(t, s.Steps[0].Intern)
	assert.Equal(t, "cpu0", s.Steps[0].Intern.Key)
	require.NotNil(t, s.Steps[1].Begin)
	assert.Equal(t, "SOME_CODE", s.Steps[1].Expect)
}

func TestParseScenario_Rejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"unknown field", "name: x\nbogus: true\nsteps: []"},
		{"missing name", "steps:\n  - prune: {before: 1}"},
		{"empty step", "name: x\nsteps:\n  - expect: OOPS"},
		{"two ops in one step", "name: x\nsteps:\n  - intern: {key: a}\n    prune: {before: 1}"},
		{"not yaml", "{{{"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tc.in))
			assert.Error(t, err)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/does-not-exist.yaml")
	assert.Error(t, err)
}

func TestStepOp(t *testing.T) {
	op, err := Step{Wake: &WakeStep{From: "a", To: "b"}}.op()
	require.NoError(t, err)
	assert.Equal(t, "wake", op)

	_, err = Step{}.op()
	assert.Error(t, err)
}
