// Package program loads G-code files into program piles.
package program

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/gwiz/internal/config"
	"github.com/mattjoyce/gwiz/internal/gcode"
	"github.com/mattjoyce/gwiz/internal/pile"
)

// Extension is required on every program file.
const Extension = ".gcode"

var (
	// ErrNotGCode is returned for paths without the .gcode extension.
	ErrNotGCode = errors.New("file does not have .gcode extension")
	// ErrNotFile is returned for directories and other non-regular files.
	ErrNotFile = errors.New("not a regular file")
)

// Program is a loaded G-code file.
type Program struct {
	Path     string
	Name     string
	Commands []gcode.Command
	// Fingerprint is the BLAKE3 digest of the file as read.
	Fingerprint string
}

// Check validates path without reading it.
func Check(path string) error {
	if !strings.HasSuffix(strings.ToLower(strings.TrimSpace(path)), Extension) {
		return fmt.Errorf("%s: %w", path, ErrNotGCode)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s: %w", path, ErrNotFile)
	}
	return nil
}

// Load reads a program. Empty lines are dropped and tabs become spaces;
// everything else, comments included, is kept verbatim.
func Load(path string) (*Program, error) {
	if err := Check(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read program: %w", err)
	}

	var cmds []gcode.Command
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		cmds = append(cmds, gcode.Command(strings.ReplaceAll(line, "\t", " ")))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan program %s: %w", path, err)
	}

	return &Program{
		Path:        path,
		Name:        filepath.Base(path),
		Commands:    cmds,
		Fingerprint: config.HashBytes(data),
	}, nil
}

// Pile wraps the program for dispatch.
func (p *Program) Pile(displayLen int) *pile.Pending {
	return pile.NewProgram(p.Name, p.Commands, displayLen)
}
