//go:build !linux

package uinput

// Device is unavailable off Linux.
type Device struct{}

func Create(path string, caps Capabilities) (*Device, error) {
	return nil, ErrUnsupported
}

func (d *Device) Emit(events ...Event) error {
	return ErrUnsupported
}

func (d *Device) Close() error {
	return nil
}
