// Package progress provides progress indicators for long-running operations.
package progress

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/klauern/bkup/internal/logging"
	"github.com/klauern/bkup/internal/ui"
)

// Bar wraps progressbar functionality with integration to bkup's UI and logging.
type Bar struct {
	bar     *progressbar.ProgressBar
	enabled bool
	desc    string
	log     *slog.Logger
}

// Options configures the progress bar behavior.
type Options struct {
	// Max is the maximum value for the progress bar (total steps).
	Max int64
	// Description is the prefix text shown before the progress bar.
	Description string
	// Writer is the output destination. Defaults to os.Stderr.
	Writer io.Writer
	// ShowElapsed shows elapsed time on completion.
	ShowElapsed bool
	// ShowCount shows current/total count (e.g., "5/10").
	ShowCount bool
	// Disabled turns the bar off regardless of the terminal.
	Disabled bool
	// Logger receives start and finish messages when the bar is hidden.
	Logger *slog.Logger
}

// New creates a new progress bar with the given options.
// The bar is only shown if:
//   - It is not disabled by the caller (--no-progress)
//   - Colors are enabled (respects NO_COLOR and --no-color)
//   - Output is a terminal
//   - Not in debug mode (to avoid interfering with logs)
func New(opts Options) *Bar {
	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}
	log := logging.OrDefault(opts.Logger)

	b := &Bar{
		enabled: !opts.Disabled && shouldShowProgress(opts.Writer, log),
		desc:    opts.Description,
		log:     log,
	}

	if !b.enabled {
		// Log start at debug level instead
		log.Debug(fmt.Sprintf("%s started", opts.Description), logging.Count(int(opts.Max)))
		return b
	}

	barOpts := []progressbar.Option{
		progressbar.OptionSetDescription(opts.Description),
		progressbar.OptionSetWriter(opts.Writer),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(15),
		progressbar.OptionThrottle(65 * time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprint(opts.Writer, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionEnableColorCodes(ui.IsColorEnabled()),
	}
	if opts.ShowCount {
		barOpts = append(barOpts, progressbar.OptionShowCount())
	}
	if opts.ShowElapsed {
		barOpts = append(barOpts, progressbar.OptionShowElapsedTimeOnFinish())
	}
	b.bar = progressbar.NewOptions64(opts.Max, barOpts...)

	return b
}

// Enabled reports whether the bar is rendered.
func (b *Bar) Enabled() bool {
	return b.enabled
}

// Add increments the progress bar by n steps.
func (b *Bar) Add(n int) error {
	if !b.enabled {
		return nil
	}
	return b.bar.Add(n)
}

// Describe updates the progress bar description.
func (b *Bar) Describe(desc string) {
	b.desc = desc
	if !b.enabled {
		return
	}
	b.bar.Describe(desc)
}

// Finish completes the progress bar and logs completion.
func (b *Bar) Finish() error {
	if !b.enabled {
		b.log.Debug(fmt.Sprintf("%s completed", b.desc))
		return nil
	}
	return b.bar.Finish()
}

// IsFinished returns true if the progress bar has reached its max value.
func (b *Bar) IsFinished() bool {
	if !b.enabled {
		return false
	}
	return b.bar.IsFinished()
}

// shouldShowProgress determines if progress bars should be displayed.
// Progress is disabled if:
//   - Colors are disabled (NO_COLOR, --no-color)
//   - Writing to a file that is not a terminal
//   - Logger is at debug level (to avoid interfering with debug output)
func shouldShowProgress(w io.Writer, log *slog.Logger) bool {
	// Check if colors are enabled (respects NO_COLOR)
	if !ui.IsColorEnabled() {
		return false
	}

	// Pipes and regular files get no bar
	if f, ok := w.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		return false
	}

	// Disable progress if at debug level (avoid interfering with logs)
	return !log.Enabled(context.Background(), logging.LevelDebug)
}

// ForSync returns a bar counting sync actions.
func ForSync(total int, w io.Writer, disabled bool, log *slog.Logger) *Bar {
	return New(Options{
		Max:         int64(total),
		Description: "Syncing",
		Writer:      w,
		ShowElapsed: true,
		ShowCount:   true,
		Disabled:    disabled,
		Logger:      log,
	})
}
