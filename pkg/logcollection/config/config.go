package config

import (
	"fmt"
	"strings"
)

type OutputType string

const (
	OutputTypeFile    OutputType = "file"
	OutputTypeConsole OutputType = "console"
)

// DefaultFileName is the backend output file inside the per-user log directory.
const DefaultFileName = "backend.log"

// OutputConfig defines where backend output is captured.
type OutputConfig struct {
	Type OutputType `yaml:"type"` // "file", "console"
	Path string     `yaml:"path"` // file target, resolved against the user log dir when relative
}

func DefaultOutputConfig() OutputConfig {
	return OutputConfig{
		Type: OutputTypeFile,
		Path: DefaultFileName,
	}
}

func (c OutputConfig) Validate() error {
	switch c.Type {
	case OutputTypeFile:
		if strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("file output requires a path")
		}
	case OutputTypeConsole:
	default:
		return fmt.Errorf("invalid output type: %q, must be one of: file, console", c.Type)
	}
	return nil
}
