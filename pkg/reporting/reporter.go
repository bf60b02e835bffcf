package reporting

import (
	"fmt"
	"strings"

	"github.com/core-tools/hsu-backend-shell/pkg/domain"
	"github.com/core-tools/hsu-backend-shell/pkg/logging"
	"github.com/core-tools/hsu-backend-shell/pkg/startup"
)

// FailureTitle is the title of every startup failure message.
const FailureTitle = "Backend start failed"

// DialogReporter turns a startup failure into a user facing message.
type DialogReporter struct {
	presenter Presenter
	logger    logging.Logger
}

var _ startup.FailureReporter = (*DialogReporter)(nil)

func NewDialogReporter(presenter Presenter, logger logging.Logger) *DialogReporter {
	return &DialogReporter{
		presenter: presenter,
		logger:    logger,
	}
}

// Report blocks until the presenter returns.
func (r *DialogReporter) Report(failure *startup.Failure) {
	if failure == nil {
		return
	}
	if err := r.presenter.ShowError(FailureTitle, FormatFailure(failure)); err != nil {
		r.logger.Errorf("Failed to present startup failure: %v, failure: %v", err, failure)
	}
}

// FormatFailure renders the failure for a human. The launch description and
// the hint depend on whether a bundled executable or an interpreter was used.
func FormatFailure(failure *startup.Failure) string {
	var b strings.Builder
	b.WriteString("The backend service could not be started.\n\n")

	command := failure.Command
	switch {
	case command.Path == "":
		// Failed before a command was resolved
	case command.Bundled:
		fmt.Fprintf(&b, "- Backend executable: %s\n", command.Path)
	default:
		fmt.Fprintf(&b, "- Interpreter: %s\n", command.Path)
		if len(command.Args) > 0 {
			fmt.Fprintf(&b, "- Script: %s\n", command.Args[0])
		}
	}
	if failure.LogPath != "" {
		fmt.Fprintf(&b, "- Backend log: %s\n", failure.LogPath)
	}
	if failure.Exit != nil {
		fmt.Fprintf(&b, "- Backend exited: %s\n", failure.Exit)
	}
	b.WriteString("\n")

	if hint := hintFor(command); hint != "" {
		b.WriteString(hint)
		b.WriteString("\n\n")
	}

	b.WriteString(failure.Error())
	return b.String()
}

func hintFor(command domain.BackendCommand) string {
	switch {
	case command.Path == "":
		return ""
	case command.Bundled:
		return "Check that the executable exists and is not blocked by the operating system " +
			"(macOS Gatekeeper, Windows Defender or similar)."
	default:
		return fmt.Sprintf("Check that the interpreter and the backend dependencies are installed "+
			"and that this command runs: %s -V", command.Path)
	}
}
