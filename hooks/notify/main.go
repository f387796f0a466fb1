// Command notify is an engagement hook that raises a desktop notification.
// Build it into its hook directory with:
//
//	go build -o hooks/notify/notify ./hooks/notify
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// event is the subset of the hook event this command reads.
type event struct {
	Kind   string  `json:"kind"`
	Hand   int     `json:"hand"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Config struct {
		Title string `json:"title"`
	} `json:"config"`
}

type response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func main() {
	var ev event
	if err := json.NewDecoder(os.Stdin).Decode(&ev); err != nil {
		reply(fmt.Errorf("failed to decode event: %w", err))
		return
	}

	title := ev.Config.Title
	if title == "" {
		title = "Drishti"
	}
	reply(notify(title, message(ev)))
}

func message(ev event) string {
	verb := "engaged"
	if ev.Kind == "leave" {
		verb = "left"
	}
	return fmt.Sprintf("Hand %d %s at (%.0f, %.0f)", ev.Hand, verb, ev.X, ev.Y)
}

func notify(title, body string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("osascript", "-e", fmt.Sprintf("display notification %q with title %q", body, title))
	default:
		cmd = exec.Command("notify-send", title, body)
	}
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %s", err, output)
	}
	return nil
}

func reply(err error) {
	resp := response{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
