package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tendant/simple-molecule/pkg/simplemolecule"
)

type object struct {
	content string
	modTime time.Time
}

// Source is an in-memory implementation of simplemolecule.FallbackSource
type Source struct {
	mu      sync.RWMutex
	objects map[string]object
}

// New creates a new in-memory fallback source
func New() *Source {
	return &Source{
		objects: make(map[string]object),
	}
}

// Name returns "memory"
func (s *Source) Name() string {
	return "memory"
}

// Put seeds a file at folder/filename.
func (s *Source) Put(folder, filename, content string) error {
	key, err := simplemolecule.SourceKey(folder, filename)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{content: content, modTime: time.Now()}
	return nil
}

// Keys returns every stored key.
func (s *Source) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}

// Read returns the first candidate name present.
func (s *Source) Read(ctx context.Context, folder, filename, identifier string) (*simplemolecule.SourceObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, name := range simplemolecule.CandidateNames(filename, identifier) {
		key, err := simplemolecule.SourceKey(folder, name)
		if err != nil {
			return nil, &simplemolecule.FallbackError{Source: s.Name(), Key: name, Op: "read", Err: err}
		}
		if obj, ok := s.objects[key]; ok {
			return &simplemolecule.SourceObject{
				Path:    key,
				Content: obj.content,
				Size:    int64(len(obj.content)),
				ModTime: obj.modTime,
			}, nil
		}
	}
	return nil, &simplemolecule.FallbackError{Source: s.Name(), Key: folder + "/" + filename, Op: "read", Err: simplemolecule.ErrSourceNotFound}
}

// Write stores content under the identifier's disambiguated name
func (s *Source) Write(ctx context.Context, folder, filename, identifier, content string) (string, error) {
	key, err := simplemolecule.SourceKey(folder, simplemolecule.DisambiguatedName(filename, identifier))
	if err != nil {
		return "", &simplemolecule.FallbackError{Source: s.Name(), Key: filename, Op: "write", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{content: content, modTime: time.Now()}
	return key, nil
}
