package wizard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRules_Default(t *testing.T) {
	rules, err := LoadRules("")
	require.NoError(t, err)

	required, err := rules.Required(StepOrgInfo, mapFields{})
	require.NoError(t, err)
	assert.Equal(t, []string{"organizationName", "organizationTypes", "contactName", "contactEmail"}, required)
}

func TestLoadRules_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `
steps:
  orgInfo:
    fields:
      - name: organizationName
      - name: contactPhone
        when: len(organizationTypes) > 1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	rules, err := LoadRules(path)
	require.NoError(t, err)

	required, err := rules.Required(StepOrgInfo, mapFields{"organizationTypes": []string{"a"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"organizationName"}, required)

	required, err = rules.Required(StepOrgInfo, mapFields{"organizationTypes": []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"organizationName", "contactPhone"}, required)
}

func TestParseRules_Errors(t *testing.T) {
	cases := map[string]string{
		"unknown step": `
steps:
  payment:
    fields:
      - name: eventName
`,
		"unknown field": `
steps:
  orgInfo:
    fields:
      - name: budget
`,
		"bad condition": `
steps:
  orgInfo:
    fields:
      - name: contactPhone
        when: eventMode +
`,
		"non-bool condition": `
steps:
  orgInfo:
    fields:
      - name: contactPhone
        when: eventMode
`,
		"role on two steps": `
steps:
  orgInfo:
    files: [gpoa]
  reporting:
    files: [gpoa]
`,
		"not yaml": "steps: [",
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRules([]byte(content))
			assert.Error(t, err)
		})
	}
}

func TestCompletion(t *testing.T) {
	m := NewMachine(nil)

	pct, err := m.Completion(mapFields{})
	require.NoError(t, err)
	assert.Equal(t, 0, pct)

	// school path, offline: 1 + 4 + 7 + 2 = 14 required; 5 populated
	pct, err = m.Completion(orgInfoComplete("school-based"))
	require.NoError(t, err)
	assert.Equal(t, 35, pct)

	// online drops eventVenue: 13 required; 6 populated
	fields := orgInfoComplete("school-based")
	fields["eventMode"] = "online"
	pct, err = m.Completion(fields)
	require.NoError(t, err)
	assert.Equal(t, 46, pct)
}

func TestMonotonic(t *testing.T) {
	assert.Equal(t, 40, Monotonic(40, 25))
	assert.Equal(t, 60, Monotonic(40, 60))
	assert.Equal(t, 100, Monotonic(0, 140))
	assert.Equal(t, 0, Monotonic(-5, -1))
}
