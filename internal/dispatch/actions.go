package dispatch

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

// TextPlaceholder in a popup command argument is replaced by the message
// text.
const TextPlaceholder = "{text}"

// Actions perform the local side effects of a fresh message.
type Actions interface {
	OpenURL(ctx context.Context, url string) error
	ShowText(ctx context.Context, text string) error
}

// Runner starts an external command without waiting for it to finish.
type Runner func(ctx context.Context, name string, args ...string) error

// startCommand launches the command detached from ctx, so a browser or
// popup outlives the dispatcher.
func startCommand(_ context.Context, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// SystemActions opens URLs with the desktop's URL handler and shows text by
// logging it and, when configured, running a popup command.
type SystemActions struct {
	openURLs     bool
	popupCommand []string
	goos         string
	run          Runner
	logger       zerolog.Logger
}

// SystemOption configures SystemActions.
type SystemOption func(*SystemActions)

// WithRunner replaces command execution, mainly for tests.
func WithRunner(r Runner) SystemOption {
	return func(a *SystemActions) { a.run = r }
}

// WithGOOS overrides the platform used to pick the URL opener.
func WithGOOS(goos string) SystemOption {
	return func(a *SystemActions) { a.goos = goos }
}

// NewSystemActions returns actions for this machine. With openURLs false,
// URLs are only logged. popupCommand may contain TextPlaceholder.
func NewSystemActions(openURLs bool, popupCommand []string, logger zerolog.Logger, opts ...SystemOption) *SystemActions {
	a := &SystemActions{
		openURLs:     openURLs,
		popupCommand: append([]string(nil), popupCommand...),
		goos:         runtime.GOOS,
		run:          startCommand,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OpenURL hands url to the platform URL opener.
func (a *SystemActions) OpenURL(ctx context.Context, url string) error {
	a.logger.Info().Str("event", "action.open_url").Str("url", url).Msg("opening URL")
	if !a.openURLs {
		return nil
	}

	name, args, err := urlOpener(a.goos, url)
	if err != nil {
		return err
	}
	return a.run(ctx, name, args...)
}

// ShowText logs text and runs the popup command, if any.
func (a *SystemActions) ShowText(ctx context.Context, text string) error {
	a.logger.Info().Str("event", "action.show_text").Str("text", text).Msg("showing popup")
	if len(a.popupCommand) == 0 {
		return nil
	}

	args := make([]string, len(a.popupCommand)-1)
	for i, arg := range a.popupCommand[1:] {
		args[i] = strings.ReplaceAll(arg, TextPlaceholder, text)
	}
	return a.run(ctx, a.popupCommand[0], args...)
}

func urlOpener(goos, url string) (string, []string, error) {
	switch goos {
	case "darwin":
		return "open", []string{url}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{url}, nil
	default:
		return "", nil, fmt.Errorf("no URL opener for %s", goos)
	}
}
