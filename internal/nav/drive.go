package nav

type motionKind int

const (
	motionStopped motionKind = iota
	motionForward
)

// drive serializes wheel commands from the navigation worker and remembers
// the last one so a pause can restore it.
type drive struct {
	act  MotionActuator
	kind motionKind
	duty int
}

func newDrive(act MotionActuator) *drive {
	return &drive{act: act}
}

func (d *drive) forward(duty int) error {
	if err := d.act.Forward(duty); err != nil {
		return err
	}
	d.kind, d.duty = motionForward, duty
	return nil
}

func (d *drive) stop() error {
	if err := d.act.Stop(); err != nil {
		return err
	}
	d.kind = motionStopped
	return nil
}

// Halt implements Drive.
func (d *drive) Halt() error {
	return d.act.Stop()
}

// Restore implements Drive.
func (d *drive) Restore() error {
	switch d.kind {
	case motionForward:
		return d.act.Forward(d.duty)
	default:
		return nil
	}
}
