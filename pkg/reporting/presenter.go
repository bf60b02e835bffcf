package reporting

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/core-tools/hsu-backend-shell/pkg/errors"
	"github.com/core-tools/hsu-backend-shell/pkg/logging"
)

// Presenter shows a blocking error message to the user. ShowError returns
// once the message has been acknowledged.
type Presenter interface {
	ShowError(title, message string) error
}

type consolePresenter struct {
	mutex sync.Mutex
	out   io.Writer
}

// NewConsolePresenter writes the message to out, typically stderr.
func NewConsolePresenter(out io.Writer) Presenter {
	return &consolePresenter{out: out}
}

func (p *consolePresenter) ShowError(title, message string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	rule := strings.Repeat("=", len(title))
	if _, err := fmt.Fprintf(p.out, "\n%s\n%s\n%s\n\n", rule, title, rule); err != nil {
		return errors.NewIOError("failed to write error message", err)
	}
	if _, err := fmt.Fprintf(p.out, "%s\n\n", message); err != nil {
		return errors.NewIOError("failed to write error message", err)
	}
	return nil
}

const dialogTimeout = 10 * time.Minute

// CommandFunc builds the command that displays a dialog.
type CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

type dialogPresenter struct {
	goos     string
	command  CommandFunc
	fallback Presenter
	logger   logging.Logger
}

// NewDialogPresenter shows a native dialog through the platform's scripting
// tool (osascript, zenity or PowerShell) and falls back when that fails.
func NewDialogPresenter(fallback Presenter, logger logging.Logger) Presenter {
	return newDialogPresenter(runtime.GOOS, exec.CommandContext, fallback, logger)
}

func newDialogPresenter(goos string, command CommandFunc, fallback Presenter, logger logging.Logger) *dialogPresenter {
	return &dialogPresenter{
		goos:     goos,
		command:  command,
		fallback: fallback,
		logger:   logger,
	}
}

func (p *dialogPresenter) ShowError(title, message string) error {
	name, args, ok := dialogCommand(p.goos, title, message)
	if !ok {
		return p.fallback.ShowError(title, message)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialogTimeout)
	defer cancel()

	if err := p.command(ctx, name, args...).Run(); err != nil {
		p.logger.Warnf("Native dialog unavailable, tool: %s, error: %v", name, err)
		return p.fallback.ShowError(title, message)
	}
	return nil
}

func dialogCommand(goos, title, message string) (string, []string, bool) {
	switch goos {
	case "darwin":
		script := fmt.Sprintf("display alert %s message %s as critical buttons {\"OK\"} default button \"OK\"",
			appleScriptQuote(title), appleScriptQuote(message))
		return "osascript", []string{"-e", script}, true
	case "linux":
		return "zenity", []string{"--error", "--no-markup", "--title", title, "--text", message}, true
	case "windows":
		script := fmt.Sprintf("Add-Type -AssemblyName PresentationFramework; [System.Windows.MessageBox]::Show(%s, %s, 'OK', 'Error') | Out-Null",
			powerShellQuote(message), powerShellQuote(title))
		return "powershell", []string{"-NoProfile", "-NonInteractive", "-Command", script}, true
	default:
		return "", nil, false
	}
}

func appleScriptQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func powerShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
