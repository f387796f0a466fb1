// Package capture provides camera enumeration and continuous frame capture using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"gocv.io/x/gocv"

	"github.com/ayusman/drishti/internal/logging"
)

// Default camera settings
const (
	DefaultWidth  = 640
	DefaultHeight = 480

	// readRetryDelay bounds how fast the reader retries after a failed read.
	readRetryDelay = 10 * time.Millisecond
)

var (
	// ErrCameraNotOpen is returned when reading from a source that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrDeviceUnavailable is returned when no camera matches or it cannot be opened.
	ErrDeviceUnavailable = errors.New("camera device unavailable")
	// ErrPermissionDenied is returned when the OS refuses camera access.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrNotReady is returned by CurrentFrame before the first frame arrives.
	ErrNotReady = errors.New("no frame captured yet")
)

// VideoCapture is the stream half of a camera device.
type VideoCapture interface {
	Read(m *gocv.Mat) bool
	SetProperty(prop gocv.VideoCaptureProperties, value float64)
	Close() error
}

// CaptureOpener acquires a stream for an enumerated device.
type CaptureOpener func(dev Device) (VideoCapture, error)

// Options configures a Source.
type Options struct {
	Lister DeviceLister
	Opener CaptureOpener
	Width  int
	Height int
	FPS    int
	// Mirror flips frames horizontally, as a selfie view does.
	Mirror bool
	Logger *log.Logger
}

// Source wraps a camera device and keeps the most recent frame current.
type Source struct {
	opts   Options
	logger *log.Logger

	mu      sync.Mutex
	capture VideoCapture
	device  Device
	latest  *Frame
	running bool
	stopCh  chan struct{}
	done    chan struct{}
	frames  uint64
}

// NewSource creates a Source. Nil Lister and Opener default to sysfs
// enumeration and GoCV capture.
func NewSource(opts Options) *Source {
	if opts.Lister == nil {
		opts.Lister = SysfsLister{}
	}
	if opts.Opener == nil {
		opts.Opener = OpenGoCV
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = DefaultWidth, DefaultHeight
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.WithPrefix("capture")
	}
	return &Source{opts: opts, logger: logger}
}

// Open selects a device by facing preference and starts capturing.
// Opening an already open source is a no-op.
func (s *Source) Open(facing Facing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	devices, err := s.opts.Lister.VideoInputs()
	if err != nil {
		return fmt.Errorf("%w: enumerate devices: %v", ErrDeviceUnavailable, err)
	}
	for i, d := range devices {
		s.logger.Debug("video input", "n", i, "id", d.ID, "label", d.Label)
	}

	dev, err := SelectDevice(devices, facing)
	if err != nil {
		return err
	}
	return s.start(dev)
}

// OpenDevice starts capturing from the device with the given id.
func (s *Source) OpenDevice(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	devices, err := s.opts.Lister.VideoInputs()
	if err != nil {
		return fmt.Errorf("%w: enumerate devices: %v", ErrDeviceUnavailable, err)
	}
	for _, d := range devices {
		if d.ID == id {
			return s.start(d)
		}
	}
	return fmt.Errorf("%w: no device with id %q", ErrDeviceUnavailable, id)
}

// start must be called with s.mu held.
func (s *Source) start(dev Device) error {
	c, err := s.opts.Opener(dev)
	if err != nil {
		return err
	}

	c.SetProperty(gocv.VideoCaptureFrameWidth, float64(s.opts.Width))
	c.SetProperty(gocv.VideoCaptureFrameHeight, float64(s.opts.Height))
	if s.opts.FPS > 0 {
		c.SetProperty(gocv.VideoCaptureFPS, float64(s.opts.FPS))
	}

	s.capture = c
	s.device = dev
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	go s.readLoop(c, s.stopCh, s.done)

	s.logger.Info("camera opened", "id", dev.ID, "label", dev.Label)
	return nil
}

// readLoop keeps s.latest current until stop is closed.
func (s *Source) readLoop(c VideoCapture, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	mat := gocv.NewMat()
	defer mat.Close()

	for {
		select {
		case <-stop:
			return
		default:
		}

		if ok := c.Read(&mat); !ok || mat.Empty() {
			select {
			case <-stop:
				return
			case <-time.After(readRetryDelay):
			}
			continue
		}

		s.publish(mat)
	}
}

func (s *Source) publish(mat gocv.Mat) {
	var owned gocv.Mat
	if s.opts.Mirror {
		owned = gocv.NewMat()
		gocv.Flip(mat, &owned, 1)
	} else {
		owned = mat.Clone()
	}
	frame := NewFrame(owned, time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		frame.Close()
		return
	}
	if s.latest != nil {
		s.latest.Close()
	}
	s.latest = frame
	s.frames++
}

// CurrentFrame returns a copy of the most recent frame. The caller owns
// the copy and must Close it.
func (s *Source) CurrentFrame() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, ErrCameraNotOpen
	}
	if s.latest == nil {
		return nil, ErrNotReady
	}
	return s.latest.Clone(), nil
}

// Close stops capturing and releases the device. It is safe to call repeatedly.
func (s *Source) Close() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	c, stop, done := s.capture, s.stopCh, s.done
	s.capture = nil
	s.mu.Unlock()

	close(stop)
	<-done
	err := c.Close()

	s.mu.Lock()
	if s.latest != nil {
		s.latest.Close()
		s.latest = nil
	}
	s.mu.Unlock()

	s.logger.Info("camera closed", "id", s.device.ID)
	return err
}

// Device returns the device selected by the last Open.
func (s *Source) Device() Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// FrameCount returns how many frames have been captured since creation.
func (s *Source) FrameCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// IsOpen returns true if the source is currently capturing.
func (s *Source) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// gocvCapture adapts *gocv.VideoCapture to VideoCapture.
type gocvCapture struct {
	vc *gocv.VideoCapture
}

func (g *gocvCapture) Read(m *gocv.Mat) bool {
	return g.vc.Read(m)
}

func (g *gocvCapture) SetProperty(prop gocv.VideoCaptureProperties, value float64) {
	g.vc.Set(prop, value)
}

func (g *gocvCapture) Close() error {
	return g.vc.Close()
}

// OpenGoCV opens dev with OpenCV. On Linux the device node is probed first
// so a refused open surfaces as ErrPermissionDenied rather than a generic failure.
func OpenGoCV(dev Device) (VideoCapture, error) {
	if strings.HasPrefix(dev.ID, "/dev/") {
		f, err := os.OpenFile(dev.ID, os.O_RDWR, 0)
		switch {
		case errors.Is(err, fs.ErrPermission):
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, dev.ID)
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, dev.ID)
		case err == nil:
			f.Close()
		}
	}

	vc, err := gocv.OpenVideoCapture(dev.Index)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: device %d did not open", ErrDeviceUnavailable, dev.Index)
	}
	return &gocvCapture{vc: vc}, nil
}
