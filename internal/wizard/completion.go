package wizard

// Completion returns the share of applicable required fields on the proposal's path
// that are populated, as an integer percentage in [0,100].
func (m *Machine) Completion(fields Fields) (int, error) {
	total, populated := 0, 0
	for _, step := range m.Path(fields.SelectedEventType()) {
		required, err := m.rules.Required(step, fields)
		if err != nil {
			return 0, err
		}
		for _, name := range required {
			total++
			if fields.Present(name) {
				populated++
			}
		}
	}
	if total == 0 {
		return 0, nil
	}
	return populated * 100 / total, nil
}

// Monotonic keeps a stored completion percentage from going down.
func Monotonic(stored, computed int) int {
	if computed < stored {
		computed = stored
	}
	if computed < 0 {
		return 0
	}
	if computed > 100 {
		return 100
	}
	return computed
}
