package indicator

// Multi combines multiple Indicator implementations.
type Multi struct {
	indicators []Indicator
}

// Locked implements Indicator.Locked.
func (m *Multi) Locked() {
	for _, ind := range m.indicators {
		ind.Locked()
	}
}

// Unlocked implements Indicator.Unlocked.
func (m *Multi) Unlocked() {
	for _, ind := range m.indicators {
		ind.Unlocked()
	}
}

// Busy implements Indicator.Busy.
func (m *Multi) Busy() {
	for _, ind := range m.indicators {
		ind.Busy()
	}
}

// Fault implements Indicator.Fault.
func (m *Multi) Fault() {
	for _, ind := range m.indicators {
		ind.Fault()
	}
}

// ConnectionLost implements Indicator.ConnectionLost.
func (m *Multi) ConnectionLost() {
	for _, ind := range m.indicators {
		ind.ConnectionLost()
	}
}

// Shutdown implements Indicator.Shutdown.
func (m *Multi) Shutdown() {
	for _, ind := range m.indicators {
		ind.Shutdown()
	}
}

// Release implements Indicator.Release.
func (m *Multi) Release() error {
	var lastErr error
	for _, ind := range m.indicators {
		if err := ind.Release(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
