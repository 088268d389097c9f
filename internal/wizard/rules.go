// rules.go
//
// Draft identity and hybrid persistence service for event proposals
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of proposaldb.
// proposaldb is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// proposaldb is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with proposaldb.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package wizard

import (
	"fmt"
	"os"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"

	"github.com/localnerve/proposaldb/data"
)

// fieldKinds holds a zero value of the right type for every field a rule may name.
// Conditions are type-checked against it at load time.
var fieldKinds = map[string]any{
	"organizationName":  "",
	"organizationTypes": []string{},
	"contactName":       "",
	"contactEmail":      "",
	"contactPhone":      "",
	"eventType":         "",
	"eventName":         "",
	"eventVenue":        "",
	"eventCategory":     "",
	"eventStartDate":    "",
	"eventEndDate":      "",
	"eventMode":         "",
	"targetAudience":    []string{},
	"reportDescription": "",
	"attendanceCount":   0,
}

// KnownField reports whether name may appear in the rules table.
func KnownField(name string) bool {
	_, ok := fieldKinds[name]
	return ok
}

// Requirement is one required field, optionally conditional.
type Requirement struct {
	Field string
	When  string

	program *vm.Program
}

// StepRules are the requirements attached to one wizard step.
type StepRules struct {
	Fields []Requirement
	Files  []string
}

// Rules is the central required-field table.
type Rules struct {
	steps map[Step]*StepRules
}

type rulesFile struct {
	Steps map[string]struct {
		Fields []struct {
			Name string `yaml:"name"`
			When string `yaml:"when"`
		} `yaml:"fields"`
		Files []string `yaml:"files"`
	} `yaml:"steps"`
}

// LoadRules reads the table from path, or the embedded default when path is empty.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return ParseRules(data.RequiredFields)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	return ParseRules(raw)
}

// DefaultRules returns the embedded table. It panics if the embedded file is invalid.
func DefaultRules() *Rules {
	r, err := ParseRules(data.RequiredFields)
	if err != nil {
		panic(fmt.Sprintf("wizard: embedded rules invalid: %v", err))
	}
	return r
}

// ParseRules decodes and compiles a YAML rules table.
func ParseRules(raw []byte) (*Rules, error) {
	var file rulesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}

	rules := &Rules{steps: make(map[Step]*StepRules, len(file.Steps))}
	seenRoles := map[string]Step{}

	for name, def := range file.Steps {
		step := Step(name)
		if !step.Valid() {
			return nil, fmt.Errorf("rules: unknown step %q", name)
		}

		sr := &StepRules{}
		for _, f := range def.Fields {
			if !KnownField(f.Name) {
				return nil, fmt.Errorf("rules: step %s: unknown field %q", name, f.Name)
			}
			req := Requirement{Field: f.Name, When: f.When}
			if f.When != "" {
				program, err := expr.Compile(f.When, expr.Env(fieldKinds), expr.AsBool())
				if err != nil {
					return nil, fmt.Errorf("rules: step %s: field %s: condition %q: %w", name, f.Name, f.When, err)
				}
				req.program = program
			}
			sr.Fields = append(sr.Fields, req)
		}

		for _, role := range def.Files {
			if role == "" {
				return nil, fmt.Errorf("rules: step %s: empty file role", name)
			}
			// the same role may be offered by sibling event sections only
			if prev, ok := seenRoles[role]; ok && !(prev.isEventStep() && step.isEventStep()) {
				return nil, fmt.Errorf("rules: file role %q declared by both %s and %s", role, prev, step)
			}
			seenRoles[role] = step
			sr.Files = append(sr.Files, role)
		}

		rules.steps[step] = sr
	}

	return rules, nil
}

// Required returns the fields of step that apply to the current data.
func (r *Rules) Required(step Step, fields Fields) ([]string, error) {
	sr, ok := r.steps[step]
	if !ok {
		return nil, nil
	}

	var env map[string]any
	out := make([]string, 0, len(sr.Fields))
	for _, req := range sr.Fields {
		if req.program != nil {
			if env == nil {
				env = conditionEnv(fields)
			}
			result, err := expr.Run(req.program, env)
			if err != nil {
				return nil, fmt.Errorf("rules: evaluate %q: %w", req.When, err)
			}
			if applies, _ := result.(bool); !applies {
				continue
			}
		}
		out = append(out, req.Field)
	}
	return out, nil
}

// Missing returns the applicable required fields of step that are not present.
func (r *Rules) Missing(step Step, fields Fields) ([]string, error) {
	required, err := r.Required(step, fields)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, name := range required {
		if !fields.Present(name) {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

// FileRoles returns the attachment roles accepted while step is active.
func (r *Rules) FileRoles(step Step) []string {
	if sr, ok := r.steps[step]; ok {
		return append([]string(nil), sr.Files...)
	}
	return nil
}

// StepForRole returns the step on path that accepts role.
func (r *Rules) StepForRole(role string, path []Step) (Step, bool) {
	for _, step := range path {
		for _, candidate := range r.FileRoles(step) {
			if candidate == role {
				return step, true
			}
		}
	}
	return "", false
}

func conditionEnv(fields Fields) map[string]any {
	env := make(map[string]any, len(fieldKinds))
	for name, zero := range fieldKinds {
		value := fields.Value(name)
		if value == nil {
			value = zero
		}
		env[name] = value
	}
	return env
}
