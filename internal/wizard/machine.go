package wizard

import (
	"fmt"

	"github.com/localnerve/proposaldb/internal/types"
)

// Step is a wizard page. Unlike types.Section it includes the transient
// event type selection page, which persists as the overview section.
type Step string

const (
	StepOverview           Step = "overview"
	StepEventTypeSelection Step = "eventTypeSelection"
	StepOrgInfo            Step = "orgInfo"
	StepSchoolEvent        Step = "schoolEvent"
	StepCommunityEvent     Step = "communityEvent"
	StepReporting          Step = "reporting"
)

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	switch s {
	case StepOverview, StepEventTypeSelection, StepOrgInfo, StepSchoolEvent, StepCommunityEvent, StepReporting:
		return true
	}
	return false
}

func (s Step) isEventStep() bool {
	return s == StepSchoolEvent || s == StepCommunityEvent
}

// Section maps the step onto the persisted closed set.
func (s Step) Section() types.Section {
	if s == StepEventTypeSelection {
		return types.SectionOverview
	}
	return types.Section(s)
}

// StepFor maps a persisted section back to its step.
func StepFor(section types.Section) Step {
	return Step(section)
}

// Fields is the read-only view of proposal data the machine guards on.
type Fields interface {
	Present(field string) bool
	Value(field string) any
	SelectedEventType() types.EventType
}

// Machine is the section state machine. It performs no I/O.
type Machine struct {
	rules *Rules
}

// NewMachine returns a machine guarded by rules.
func NewMachine(rules *Rules) *Machine {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Machine{rules: rules}
}

// Rules returns the required-field table the machine uses.
func (m *Machine) Rules() *Rules {
	return m.rules
}

// Next returns the step after from. The transition is rejected with a ValidationError
// naming every missing required field of from; the caller's step is then unchanged.
func (m *Machine) Next(from Step, fields Fields) (Step, error) {
	if !from.Valid() {
		return from, &types.StateTransitionError{From: string(from), To: "next", Guard: "unknown step"}
	}
	if from == StepReporting {
		return from, &types.StateTransitionError{From: string(from), To: "next", Guard: "reporting is the last section; submit the proposal"}
	}

	missing, err := m.rules.Missing(from, fields)
	if err != nil {
		return from, err
	}

	var to Step
	switch from {
	case StepOverview:
		to = StepEventTypeSelection
	case StepEventTypeSelection:
		to = StepOrgInfo
	case StepOrgInfo:
		eventStep := Step(fields.SelectedEventType().Section())
		if !eventStep.Valid() {
			missing = appendUnique(missing, "eventType")
		}
		to = eventStep
	case StepSchoolEvent, StepCommunityEvent:
		if Step(fields.SelectedEventType().Section()) != from {
			return from, &types.StateTransitionError{
				From:  string(from),
				To:    string(StepReporting),
				Guard: fmt.Sprintf("section %s does not match event type %q", from, fields.SelectedEventType()),
			}
		}
		to = StepReporting
	}

	if len(missing) > 0 {
		return from, types.MissingFields(string(from), missing...)
	}
	return to, nil
}

// Previous mirrors the forward edges. An unknown event type on the way back from
// reporting falls back to orgInfo.
func (m *Machine) Previous(from Step, eventType types.EventType) (Step, error) {
	switch from {
	case StepEventTypeSelection:
		return StepOverview, nil
	case StepOrgInfo:
		return StepEventTypeSelection, nil
	case StepSchoolEvent, StepCommunityEvent:
		return StepOrgInfo, nil
	case StepReporting:
		if step := Step(eventType.Section()); step.Valid() {
			return step, nil
		}
		return StepOrgInfo, nil
	}
	return from, &types.StateTransitionError{From: string(from), To: "previous", Guard: "no previous section"}
}

// SelectEventType applies the event type choice. Unknown selections fail closed:
// the wizard moves to orgInfo and no event type is recorded.
func (m *Machine) SelectEventType(raw string) (types.EventType, Step, bool) {
	eventType, ok := types.ParseEventType(raw)
	if !ok {
		return "", StepOrgInfo, false
	}
	return eventType, StepOrgInfo, true
}

// Path returns the ordered steps for an event type. Without a supported event type
// the school branch is assumed.
func (m *Machine) Path(eventType types.EventType) []Step {
	eventStep := Step(eventType.Section())
	if !eventStep.Valid() {
		eventStep = StepSchoolEvent
	}
	return []Step{StepOverview, StepEventTypeSelection, StepOrgInfo, eventStep, StepReporting}
}

// CanEnter checks that target is on the path and not beyond current.
func (m *Machine) CanEnter(current, target Step, eventType types.EventType) error {
	path := m.Path(eventType)
	ci, ti := indexOf(path, current), indexOf(path, target)

	if target.isEventStep() && Step(eventType.Section()) != target {
		return &types.StateTransitionError{
			From:  string(current),
			To:    string(target),
			Guard: fmt.Sprintf("section %s is not on the path for event type %q", target, eventType),
		}
	}
	if ti < 0 {
		return &types.StateTransitionError{From: string(current), To: string(target), Guard: "section is not on the wizard path"}
	}
	if ci < 0 {
		return &types.StateTransitionError{From: string(current), To: string(target), Guard: "current section is not on the wizard path"}
	}
	if ti > ci {
		return &types.StateTransitionError{From: string(current), To: string(target), Guard: "section is not unlocked yet"}
	}
	return nil
}

// Furthest returns whichever of a and b comes later on the path for eventType.
// Steps off the path never win over steps on it.
func (m *Machine) Furthest(eventType types.EventType, a, b Step) Step {
	path := m.Path(eventType)
	if indexOf(path, b) > indexOf(path, a) {
		return b
	}
	return a
}

// ValidateComplete checks every step on the path, as required before submission.
func (m *Machine) ValidateComplete(fields Fields) error {
	var missing []string
	for _, step := range m.Path(fields.SelectedEventType()) {
		stepMissing, err := m.rules.Missing(step, fields)
		if err != nil {
			return err
		}
		for _, f := range stepMissing {
			missing = appendUnique(missing, f)
		}
	}
	if len(missing) > 0 {
		return types.MissingFields("submission", missing...)
	}
	return nil
}

// FileRoles returns the attachment roles accepted anywhere on the path.
func (m *Machine) FileRoles(eventType types.EventType) []string {
	var roles []string
	for _, step := range m.Path(eventType) {
		roles = append(roles, m.rules.FileRoles(step)...)
	}
	return roles
}

func indexOf(path []Step, step Step) int {
	for i, s := range path {
		if s == step {
			return i
		}
	}
	return -1
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
