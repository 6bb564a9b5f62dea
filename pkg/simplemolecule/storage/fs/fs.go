package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/spf13/afero"
	"github.com/tendant/simple-molecule/pkg/simplemolecule"
)

// Source is a filesystem implementation of simplemolecule.FallbackSource.
// Files live at {BaseDir}/{folder}/{filename}.
type Source struct {
	fs      afero.Fs
	baseDir string
}

// Config options for the filesystem source
type Config struct {
	BaseDir string   // Input root of the host application
	Fs      afero.Fs // Optional filesystem, defaults to the OS filesystem
}

// New creates a new filesystem fallback source
func New(config Config) (*Source, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if config.Fs == nil {
		config.Fs = afero.NewOsFs()
	}

	if err := config.Fs.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Source{
		fs:      config.Fs,
		baseDir: config.BaseDir,
	}, nil
}

// Name returns "fs"
func (s *Source) Name() string {
	return "fs"
}

// Read looks for filename and then for the identifier's disambiguated name.
func (s *Source) Read(ctx context.Context, folder, filename, identifier string) (*simplemolecule.SourceObject, error) {
	for _, name := range simplemolecule.CandidateNames(filename, identifier) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		key, err := simplemolecule.SourceKey(folder, name)
		if err != nil {
			return nil, s.fail("read", name, err)
		}
		filePath := filepath.Join(s.baseDir, filepath.FromSlash(key))

		info, err := s.fs.Stat(filePath)
		if os.IsNotExist(err) {
			continue
		} else if err != nil {
			return nil, s.fail("read", key, fmt.Errorf("failed to get file info: %w", err))
		}
		if info.IsDir() {
			continue
		}

		data, err := afero.ReadFile(s.fs, filePath)
		if err != nil {
			return nil, s.fail("read", key, fmt.Errorf("failed to read file: %w", err))
		}
		if !utf8.Valid(data) {
			return nil, s.fail("read", key, simplemolecule.ErrDecode)
		}

		return &simplemolecule.SourceObject{
			Path:    filePath,
			Content: string(data),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}, nil
	}

	return nil, s.fail("read", folder+"/"+filename, simplemolecule.ErrSourceNotFound)
}

// Write stores content under the identifier's disambiguated name.
func (s *Source) Write(ctx context.Context, folder, filename, identifier, content string) (string, error) {
	key, err := simplemolecule.SourceKey(folder, simplemolecule.DisambiguatedName(filename, identifier))
	if err != nil {
		return "", s.fail("write", filename, err)
	}
	filePath := filepath.Join(s.baseDir, filepath.FromSlash(key))

	// Create directory structure if it doesn't exist
	if err := s.fs.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return "", s.fail("write", key, fmt.Errorf("failed to create directory: %w", err))
	}
	if err := afero.WriteFile(s.fs, filePath, []byte(content), 0644); err != nil {
		return "", s.fail("write", key, fmt.Errorf("failed to write file: %w", err))
	}
	return filePath, nil
}

func (s *Source) fail(op, key string, err error) error {
	return &simplemolecule.FallbackError{Source: s.Name(), Key: key, Op: op, Err: err}
}
