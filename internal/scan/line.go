package scan

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// LineDevice reads one decoded text per line, as emitted by HID or serial QR
// scanners.
type LineDevice struct {
	id   string
	open func() (io.ReadCloser, error)
}

// NewFileDevice reads from path; "-" means standard input.
func NewFileDevice(path string) *LineDevice {
	return &LineDevice{id: path, open: func() (io.ReadCloser, error) {
		if path == "-" {
			return io.NopCloser(os.Stdin), nil
		}
		return os.Open(path)
	}}
}

// NewReaderDevice wraps an already open reader.
func NewReaderDevice(id string, r io.Reader) *LineDevice {
	return &LineDevice{id: id, open: func() (io.ReadCloser, error) {
		if rc, ok := r.(io.ReadCloser); ok {
			return rc, nil
		}
		return io.NopCloser(r), nil
	}}
}

func (d *LineDevice) ID() string { return d.id }

func (d *LineDevice) Open(ctx context.Context) (Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := d.open()
	if err != nil {
		return nil, err
	}
	c := &lineCapture{
		rc:     rc,
		frames: make(chan Frame),
		done:   make(chan struct{}),
	}
	go c.read()
	return c, nil
}

type lineCapture struct {
	rc     io.ReadCloser
	frames chan Frame
	done   chan struct{}
	once   sync.Once
}

func (c *lineCapture) Frames() <-chan Frame { return c.frames }

func (c *lineCapture) read() {
	defer close(c.frames)
	sc := bufio.NewScanner(c.rc)
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		select {
		case c.frames <- Frame{Text: text, At: time.Now()}:
		case <-c.done:
			return
		}
	}
}

func (c *lineCapture) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.rc.Close()
	})
	return err
}
