// Package cliui provides terminal styling and step indicators for voicenotes
// CLI commands.
package cliui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/papercomputeco/voicenotes/pkg/memo"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	SuccessMark  = successStyle.Render("✓")
	FailMark     = failStyle.Render("✗")
	StepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	KeyStyle     = lipgloss.NewStyle().Bold(true)
	ValueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	DimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))

	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// DisableColor switches every style to plain text, for --no-color and NO_COLOR.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
	SuccessMark = successStyle.Render("✓")
	FailMark = failStyle.Render("✗")
}

var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// Step prints an animated spinner while fn runs, then replaces it with
// a ✓ or ✗ checkmark and elapsed time.
func Step(w io.Writer, msg string, fn func() error) error {
	done := make(chan struct{})
	var mu sync.Mutex

	go func() {
		frame := 0
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for {
			mu.Lock()
			fmt.Fprintf(w, "\r  %s %s",
				spinnerStyle.Render(spinnerFrames[frame%len(spinnerFrames)]),
				msg,
			)
			mu.Unlock()

			select {
			case <-done:
				return
			case <-ticker.C:
				frame++
			}
		}
	}()

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	close(done)

	mu.Lock()
	fmt.Fprintf(w, "\r  %s %s %s\n",
		Mark(err),
		msg,
		StepStyle.Render(fmt.Sprintf("(%s)", FormatDuration(elapsed))),
	)
	mu.Unlock()

	return err
}

// Mark returns a ✓ for nil errors or ✗ for non-nil errors.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// FormatDuration formats a duration for display (e.g. "12ms" or "3.2s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// Status renders a memo status in its color.
func Status(s memo.Status) string {
	switch s {
	case memo.StatusCompleted:
		return completedStyle.Render(string(s))
	case memo.StatusFailed:
		return failedStyle.Render(string(s))
	default:
		return pendingStyle.Render(string(s))
	}
}
