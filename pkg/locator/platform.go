package locator

import "runtime"

// Platform is an operating system family as reported by runtime.GOOS.
type Platform string

const (
	PlatformWindows Platform = "windows"
	PlatformDarwin  Platform = "darwin"
	PlatformLinux   Platform = "linux"
)

func CurrentPlatform() Platform {
	return Platform(runtime.GOOS)
}

func (p Platform) IsWindows() bool {
	return p == PlatformWindows
}

// ExecutableExt is the suffix appended to bundled executables.
func (p Platform) ExecutableExt() string {
	if p.IsWindows() {
		return ".exe"
	}
	return ""
}

// DefaultInterpreter is used when neither the override variable nor the
// configuration names an interpreter.
func (p Platform) DefaultInterpreter() string {
	if p.IsWindows() {
		return "python"
	}
	return "python3"
}
