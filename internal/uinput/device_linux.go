//go:build linux

package uinput

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// Device is a created uinput device. Emit is safe for concurrent use.
type Device struct {
	mu   sync.Mutex
	file *os.File
}

// Create opens path (usually /dev/uinput), registers the capabilities in
// caps and creates the device.
func Create(path string, caps Capabilities) (*Device, error) {
	if path == "" {
		path = DefaultPath
	}

	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0660)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := register(f, caps); err != nil {
		f.Close()
		return nil, err
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.NativeEndian, caps.userDev()); err != nil {
		f.Close()
		return nil, fmt.Errorf("encode device description: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return nil, fmt.Errorf("write device description: %w", err)
	}

	if err := unix.IoctlSetInt(int(f.Fd()), uiDevCreate, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("create device: %w", err)
	}

	// udev needs a moment before the new node accepts events.
	time.Sleep(50 * time.Millisecond)

	return &Device{file: f}, nil
}

func register(f *os.File, caps Capabilities) error {
	fd := int(f.Fd())

	set := func(req uint, value uint16, what string) error {
		if err := unix.IoctlSetInt(fd, req, int(value)); err != nil {
			return fmt.Errorf("register %s 0x%x: %w", what, value, err)
		}
		return nil
	}

	if len(caps.Keys) > 0 {
		if err := set(uiSetEvBit, EvKey, "event type"); err != nil {
			return err
		}
		for _, k := range caps.Keys {
			if err := set(uiSetKeyBit, k, "key"); err != nil {
				return err
			}
		}
	}

	if len(caps.Abs) > 0 {
		if err := set(uiSetEvBit, EvAbs, "event type"); err != nil {
			return err
		}
		for _, a := range caps.Abs {
			if err := set(uiSetAbsBit, a.Code, "axis"); err != nil {
				return err
			}
		}
	}

	for _, p := range caps.Props {
		if err := set(uiSetPropBit, p, "property"); err != nil {
			return err
		}
	}

	return nil
}

// Emit writes events as one batch. Callers end the batch with Syn().
func (d *Device) Emit(events ...Event) error {
	var buf bytes.Buffer
	now := unix.NsecToTimeval(time.Now().UnixNano())
	for _, e := range events {
		ev := inputEvent{Time: now, Type: e.Type, Code: e.Code, Value: e.Value}
		if err := binary.Write(&buf, binary.NativeEndian, ev); err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return os.ErrClosed
	}
	if _, err := d.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	return nil
}

// Close destroys the device. Safe to call more than once.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return nil
	}

	destroyErr := unix.IoctlSetInt(int(d.file.Fd()), uiDevDestroy, 0)
	closeErr := d.file.Close()
	d.file = nil

	if destroyErr != nil {
		return fmt.Errorf("destroy device: %w", destroyErr)
	}
	return closeErr
}
