package indicator

// Noop implements Indicator but does nothing.
// Used when no indicators are configured.
type Noop struct{}

// Locked implements Indicator.Locked.
func (n *Noop) Locked() {}

// Unlocked implements Indicator.Unlocked.
func (n *Noop) Unlocked() {}

// Busy implements Indicator.Busy.
func (n *Noop) Busy() {}

// Fault implements Indicator.Fault.
func (n *Noop) Fault() {}

// ConnectionLost implements Indicator.ConnectionLost.
func (n *Noop) ConnectionLost() {}

// Shutdown implements Indicator.Shutdown.
func (n *Noop) Shutdown() {}

// Release implements Indicator.Release.
func (n *Noop) Release() error {
	return nil
}
