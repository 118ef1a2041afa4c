// Package crontab locates and reads the schedule line.
package crontab

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the crontab looked up in the home directory.
const FileName = ".crontab.txt"

// ErrEmpty is returned when the crontab holds no schedule line.
var ErrEmpty = errors.New("crontab is empty")

// DefaultPath returns $HOME/.crontab.txt.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, FileName), nil
}

// ReadLine opens path and returns its first line.
func ReadLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open the crontab file: %w", err)
	}
	defer f.Close()

	line, err := FirstLine(f)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return line, nil
}

// FirstLine returns the first line of r without its line terminator,
// whatever its length.
func FirstLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return "", ErrEmpty
	}
	return line, nil
}
