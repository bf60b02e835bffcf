package logcollection

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// outputWriter is the destination a sink writes raw bytes to.
type outputWriter interface {
	Write(p []byte) error
	Flush() error
	Close() error
	Location() string
}

// streamWriter writes to an already open stream such as stderr
type streamWriter struct {
	w        io.Writer
	location string
}

func (s *streamWriter) Write(p []byte) error {
	_, err := s.w.Write(p)
	return err
}

func (s *streamWriter) Flush() error {
	return nil
}

func (s *streamWriter) Close() error {
	return nil
}

func (s *streamWriter) Location() string {
	return s.location
}

// fileWriter appends to a file with automatic directory creation
type fileWriter struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	mutex  sync.Mutex
}

func (f *fileWriter) Write(p []byte) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if err := f.ensureFileOpen(); err != nil {
		return err
	}

	if _, err := f.writer.Write(p); err != nil {
		return fmt.Errorf("failed to write to %s: %w", f.path, err)
	}
	// Output must be on disk when the process dies without warning
	if err := f.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", f.path, err)
	}

	return nil
}

func (f *fileWriter) Flush() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.writer != nil {
		return f.writer.Flush()
	}
	return nil
}

func (f *fileWriter) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.writer != nil {
		f.writer.Flush()
	}
	if f.file != nil {
		err := f.file.Close()
		f.file = nil
		f.writer = nil
		return err
	}
	return nil
}

func (f *fileWriter) Location() string {
	return f.path
}

// ensureFileOpen creates the directory and opens the file if not already open
func (f *fileWriter) ensureFileOpen() error {
	if f.file != nil {
		return nil
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", f.path, err)
	}

	f.file = file
	f.writer = bufio.NewWriter(file)
	return nil
}
