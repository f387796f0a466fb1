package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"gocv.io/x/gocv"

	"github.com/ayusman/drishti/internal/logging"
)

const (
	serviceScript = "vision_service.py"

	// shutdownGrace is how long Close waits for the service to exit on EOF
	// before killing it.
	shutdownGrace = 500 * time.Millisecond

	// notReadyCode is the error the service reports while the model loads.
	notReadyCode = "not_ready"
)

// MediaPipeDetector implements Detector using a Python MediaPipe subprocess.
//
// Each request is a 4-byte big-endian length followed by a JPEG frame; each
// response is one JSON line.
type MediaPipeDetector struct {
	config Config
	logger *log.Logger

	// ioMu serializes request/response exchanges.
	ioMu sync.Mutex

	// mu guards the process lifecycle. It is never held during I/O so Close
	// can kill the service while a Detect call is blocked on it.
	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Reader
	started bool
	closed  bool
}

// NewMediaPipeDetector creates a new MediaPipe detector.
// The Python process is started by Open, or lazily on first detection.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	if findServiceScript() == "" {
		return nil, fmt.Errorf("%s not found", serviceScript)
	}

	return &MediaPipeDetector{
		config: config,
		logger: logging.WithPrefix("detector"),
	}, nil
}

// Open starts the Python service.
func (d *MediaPipeDetector) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	return d.ensureStarted()
}

// Detect sends the frame to the service and returns its result.
func (d *MediaPipeDetector) Detect(ctx context.Context, frame *gocv.Mat) (*Result, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}

	d.ioMu.Lock()
	defer d.ioMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	if err := d.ensureStarted(); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	stdin, stdout := d.stdin, d.stdout
	d.mu.Unlock()

	// Encode frame as JPEG
	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()

	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := stdin.Write(length); err != nil {
		return nil, d.ioError("write length", err)
	}
	if _, err := stdin.Write(data); err != nil {
		return nil, d.ioError("write data", err)
	}

	line, err := stdout.ReadBytes('\n')
	if err != nil {
		return nil, d.ioError("read response", err)
	}

	return decodeResponse(line, d.config)
}

// ioError reports ErrClosed for failures caused by a concurrent Close.
func (d *MediaPipeDetector) ioError(op string, err error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Close shuts down the Python process. Further Detect calls return ErrClosed.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.shutdown()
}

// ensureStarted must be called with d.mu held.
func (d *MediaPipeDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	scriptPath := findServiceScript()
	if scriptPath == "" {
		return fmt.Errorf("%s not found", serviceScript)
	}

	// Use virtual environment Python if available
	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	d.cmd = exec.Command(pythonPath, append([]string{scriptPath}, serviceArgs(d.config)...)...)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start vision service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true

	d.logger.Info("vision service started", "mode", d.config.Mode, "pid", d.cmd.Process.Pid)
	return nil
}

// shutdown must be called with d.mu held.
func (d *MediaPipeDetector) shutdown() error {
	if !d.started {
		return nil
	}

	d.stdin.Close()

	waitCh := make(chan error, 1)
	go func() { waitCh <- d.cmd.Wait() }()

	var err error
	select {
	case err = <-waitCh:
	case <-time.After(shutdownGrace):
		d.cmd.Process.Kill()
		<-waitCh
		err = nil
	}

	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	d.logger.Info("vision service stopped")
	return err
}

func serviceArgs(cfg Config) []string {
	args := []string{
		"--mode", cfg.Mode.String(),
		"--max-hands", strconv.Itoa(cfg.MaxHands),
		"--min-detection-confidence", strconv.FormatFloat(cfg.MinConfidence, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(cfg.MinTrackingConf, 'f', -1, 64),
	}
	if cfg.RunningMode != "" {
		args = append(args, "--running-mode", string(cfg.RunningMode))
	}
	if cfg.ModelAsset != "" {
		args = append(args, "--model", cfg.ModelAsset)
	}
	return args
}

// serviceResponse is the JSON line written by the Python service.
type serviceResponse struct {
	Hands      []jsonHand  `json:"hands"`
	Detections []Detection `json:"detections"`
	Error      string      `json:"error,omitempty"`
}

func decodeResponse(line []byte, cfg Config) (*Result, error) {
	var response serviceResponse
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	switch response.Error {
	case "":
	case notReadyCode:
		return nil, ErrNotReady
	default:
		return nil, fmt.Errorf("vision service: %s", response.Error)
	}

	result := &Result{Mode: cfg.Mode, Timestamp: time.Now()}

	switch cfg.Mode {
	case ModeHands:
		hands := response.Hands
		if cfg.MaxHands > 0 && len(hands) > cfg.MaxHands {
			hands = hands[:cfg.MaxHands]
		}
		result.Hands = make([]HandLandmarks, 0, len(hands))
		for _, h := range hands {
			if len(h.Points) < NumLandmarks {
				continue
			}
			result.Hands = append(result.Hands, h.toHandLandmarks())
		}
	case ModeObjects:
		result.Objects = FilterObjects(response.Detections, cfg.MinConfidence)
	}

	return result, nil
}

func findServiceScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", serviceScript),
		filepath.Join("..", "scripts", serviceScript),
		filepath.Join(execDir, "scripts", serviceScript),
		filepath.Join(os.Getenv("HOME"), ".drishti", "scripts", serviceScript),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".drishti/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonHand represents a hand as sent by the Python service.
type jsonHand struct {
	Points     []Point3D `json:"points"`
	Handedness string    `json:"handedness"`
	Score      float64   `json:"score"`
}

func (h jsonHand) toHandLandmarks() HandLandmarks {
	lm := HandLandmarks{
		Handedness: h.Handedness,
		Score:      h.Score,
	}
	copy(lm.Points[:], h.Points)
	return lm
}
