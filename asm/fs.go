// Package asm drives GBA assembly: directive dispatch, symbol scopes, struct
// layout, and section emission.
package asm

import (
	"fmt"
	"os"
	"path"
	"strings"
)

// FSType classifies a path for the filesystem callback
type FSType int

const (
	FSNone FSType = iota
	FSFile
	FSDir
)

// FileSystem supplies file access to the assembler. Paths are absolute,
// normalized, and use / separators.
type FileSystem interface {
	Type(p string) FSType
	ReadText(p string) (string, error)
	ReadBinary(p string) ([]byte, error)
}

// SayFunc receives one logical output line per call (.printf, script say)
type SayFunc func(string)

// OSFileSystem adapts the host OS to the FileSystem interface
type OSFileSystem struct{}

func (OSFileSystem) Type(p string) FSType {
	info, err := os.Stat(p)
	if err != nil {
		return FSNone
	}
	if info.IsDir() {
		return FSDir
	}
	return FSFile
}

func (OSFileSystem) ReadText(p string) (string, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (OSFileSystem) ReadBinary(p string) ([]byte, error) {
	return os.ReadFile(p)
}

// ResolvePath resolves a possibly-relative include path against the directory
// of the including file
func ResolvePath(from, rel string) string {
	if path.IsAbs(rel) {
		return path.Clean(rel)
	}
	return path.Join(path.Dir(from), rel)
}

// MemFileSystem is an in-memory FileSystem used by tests and by embedders
// that do not touch the host disk
type MemFileSystem struct {
	Files map[string][]byte
}

func (m *MemFileSystem) Type(p string) FSType {
	if _, ok := m.Files[p]; ok {
		return FSFile
	}
	prefix := strings.TrimSuffix(p, "/") + "/"
	for name := range m.Files {
		if strings.HasPrefix(name, prefix) {
			return FSDir
		}
	}
	return FSNone
}

func (m *MemFileSystem) ReadText(p string) (string, error) {
	b, ok := m.Files[p]
	if !ok {
		return "", fmt.Errorf("no such file: %s", p)
	}
	return string(b), nil
}

func (m *MemFileSystem) ReadBinary(p string) ([]byte, error) {
	b, ok := m.Files[p]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", p)
	}
	return b, nil
}
