package device

import (
	"fmt"
	"strconv"
	"strings"
)

// Phase is one step of the update lifecycle.
type Phase string

// Lifecycle phases in rollout order. Disconnected is a meta-state: a device
// can drop into it from any phase and re-enters at Connected.
const (
	PhaseConnected    Phase = "connected"
	PhaseOffered      Phase = "offered"
	PhaseDownloading  Phase = "downloading"
	PhaseVerifying    Phase = "verifying"
	PhaseInstalling   Phase = "installing"
	PhaseSuccess      Phase = "success"
	PhaseFailed       Phase = "failed"
	PhaseDisconnected Phase = "disconnected"
)

// Installer exit codes reported by devices after an install attempt.
const (
	ExitCodeSuccess     = 0
	ExitCodeVerifyFail  = 102
	ExitCodeInstallFail = 103
)

// failedPrefix is the wire rendering of a failure status; the installer
// exit code follows the prefix.
const failedPrefix = "failed:install_code_"

// Status is a point in the update lifecycle. Code is meaningful only when
// Phase is PhaseFailed, where it carries the installer's exit code.
type Status struct {
	Phase Phase
	Code  int
}

// StatusFor wraps a bare phase in a Status.
func StatusFor(phase Phase) Status {
	return Status{Phase: phase}
}

// FailedStatus builds a failure status carrying the installer exit code.
func FailedStatus(code int) Status {
	return Status{Phase: PhaseFailed, Code: code}
}

// StatusFromExitCode maps an installer exit code onto a terminal status:
// zero means the install succeeded, anything else is a failure that keeps
// the code.
func StatusFromExitCode(code int) Status {
	if code == ExitCodeSuccess {
		return StatusFor(PhaseSuccess)
	}
	return FailedStatus(code)
}

// String renders the status as stored and reported: the bare phase name, or
// "failed:install_code_N" for failures.
func (s Status) String() string {
	if s.Phase == PhaseFailed {
		return failedPrefix + strconv.Itoa(s.Code)
	}
	return string(s.Phase)
}

// IsTerminal reports whether the status ends an update attempt.
func (s Status) IsTerminal() bool {
	return s.Phase == PhaseSuccess || s.Phase == PhaseFailed
}

// MarshalJSON renders the status as its display string.
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(s.String())), nil
}

// UnmarshalJSON parses a status from its display string.
func (s *Status) UnmarshalJSON(data []byte) error {
	raw, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, data)
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus parses a display string back into a Status. It accepts every
// phase name plus the "failed:install_code_N" failure form.
func ParseStatus(raw string) (Status, error) {
	if code, ok := strings.CutPrefix(raw, failedPrefix); ok {
		n, err := strconv.Atoi(code)
		if err != nil {
			return Status{}, fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
		}
		return FailedStatus(n), nil
	}

	switch Phase(raw) {
	case PhaseConnected, PhaseOffered, PhaseDownloading, PhaseVerifying,
		PhaseInstalling, PhaseSuccess, PhaseDisconnected:
		return StatusFor(Phase(raw)), nil
	case PhaseFailed:
		// Bare "failed" with no code: treat as a generic failure.
		return FailedStatus(0), nil
	}
	return Status{}, fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}
