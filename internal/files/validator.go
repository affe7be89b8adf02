// Package files checks outgoing files before a transfer starts.
package files

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/Candyboy02/bridge-link/internal/transfer"
)

const defaultMIMEType = "application/octet-stream"

// FileInfo describes a file that passed validation.
type FileInfo struct {
	// Path is the absolute path to the file
	Path string
	// Name is the base name announced to the peer
	Name string
	Size int64
	// Type is the MIME type guessed from the extension
	Type string
}

// ValidateFiles checks that every path is an existing, readable regular
// file. All problems are reported together.
func ValidateFiles(paths []string) ([]FileInfo, error) {
	if len(paths) == 0 {
		return nil, errors.New("no files specified")
	}

	var infos []FileInfo
	var problems []string
	for _, path := range paths {
		info, err := Validate(path)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		infos = append(infos, info)
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("file validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return infos, nil
}

// Validate checks a single path.
func Validate(path string) (FileInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return FileInfo{}, fmt.Errorf("%s: file does not exist", path)
		}
		return FileInfo{}, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}
	if stat.IsDir() {
		return FileInfo{}, fmt.Errorf("%s: is a directory", path)
	}
	if !stat.Mode().IsRegular() {
		return FileInfo{}, fmt.Errorf("%s: not a regular file", path)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}
	f.Close()

	return FileInfo{
		Path: absPath,
		Name: filepath.Base(absPath),
		Size: stat.Size(),
		Type: MIMEType(absPath),
	}, nil
}

// MIMEType guesses the content type of path from its extension.
func MIMEType(path string) string {
	t := mime.TypeByExtension(filepath.Ext(path))
	if t == "" {
		return defaultMIMEType
	}
	return t
}

// Open opens the file as a transfer source. The caller closes the
// returned file once the send finishes.
func (fi FileInfo) Open() (transfer.Source, *os.File, error) {
	f, err := os.Open(fi.Path)
	if err != nil {
		return transfer.Source{}, nil, transfer.NewFileError("open", fi.Name, err)
	}
	return transfer.Source{
		Name:   fi.Name,
		Type:   fi.Type,
		Size:   fi.Size,
		Reader: f,
	}, f, nil
}

// TotalSize returns the combined size of infos.
func TotalSize(infos []FileInfo) int64 {
	var total int64
	for _, fi := range infos {
		total += fi.Size
	}
	return total
}
