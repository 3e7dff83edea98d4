package observability

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	colorReset    = "\033[0m"
	colorBold     = "\033[1m"
	colorPurple   = "\033[35m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
)

var spinnerFrames = []string{"◜", "◝", "◞", "◟"}

// termMu serializes log writes with the status line so the cursor
// save/restore pair is never split.
var termMu sync.Mutex

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// IsTerminal reports whether stdout is an interactive terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

type termWriter struct {
	out io.Writer
}

func (tw termWriter) Write(p []byte) (n int, err error) {
	termMu.Lock()
	defer termMu.Unlock()
	return tw.out.Write(p)
}

// NewTermWriter returns an io.Writer for log.SetOutput that never
// interleaves with PrintLiveStatus.
func NewTermWriter() io.Writer {
	return termWriter{out: os.Stderr}
}

func PrintBanner() {
	fmt.Print("\033[2J\033[H")

	banner := `
 _____           _ _ _                    _
|_   _| __ __ _ (_) | |__   ___  __ _  __| |
  | || '__/ _' || | | '_ \ / _ \/ _' |/ _' |
  | || | | (_| || | | | | |  __/ (_| | (_| |
  |_||_|  \__,_||_|_|_| |_|\___|\__,_|\__,_|

        >> guided tours for any web app <<
`
	width := termWidth()
	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Printf("%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan+l, colorReset)
	}
}

// InitializeTerminal keeps lines 1-10 for the banner and status line and
// scrolls logs below them.
func InitializeTerminal() {
	fmt.Print("\033[12;r")
	fmt.Print("\033[12;1H")
}

func CleanupTerminal() {
	fmt.Print("\033[r\033[2J\033[H")
}

// StatusLine renders snapshots of a Status on line 10.
type StatusLine struct {
	status *Status
	frame  int
}

func NewStatusLine(status *Status) *StatusLine {
	return &StatusLine{status: status}
}

// Render formats the current snapshot without cursor control.
func (l *StatusLine) Render() string {
	s := l.status.Snapshot()

	stateColor := colorReset
	spinner := " "
	switch s.State {
	case "advancing":
		stateColor = colorPurple
		spinner = spinnerFrames[l.frame%len(spinnerFrames)]
		l.frame++
	case "showing":
		stateColor = colorNeonCyan
	case "cancelled":
		stateColor = colorNeonMag
	}

	tourName := s.Tour
	if tourName == "" {
		tourName = "no tour yet"
	}
	if len(tourName) > 28 {
		tourName = tourName[:25] + "..."
	}

	return fmt.Sprintf("%s[%s] %s%s%-10s%s %s | step %d | %s %s| done %d, dismissed %d",
		colorReset,
		s.LastChange.Format("15:04:05"),
		colorBold, stateColor, s.State, colorReset,
		tourName,
		s.Step,
		spinner, colorReset,
		s.Completed, s.Cancelled,
	)
}

// Print draws the status line in place.
func (l *StatusLine) Print() {
	line := fmt.Sprintf("\033[s\033[10;1H\033[K%s\033[u", l.Render())
	termMu.Lock()
	fmt.Print(line)
	termMu.Unlock()
}

// Run redraws the status line every interval until done is closed.
func (l *StatusLine) Run(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			l.Print()
		}
	}
}
