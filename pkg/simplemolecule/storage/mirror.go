// Package storage holds the fallback sources of the resolver and the Mirror
// subscriber that keeps a fallback tree in sync with the content store.
package storage

import (
	"context"
	"log/slog"

	"github.com/tendant/simple-molecule/pkg/simplemolecule"
)

// Mirror writes every stored or edited record to a fallback source under its
// disambiguated name. Deletions are not mirrored: the files on disk are the
// host application's and outlive the cache.
type Mirror struct {
	target simplemolecule.FallbackSource
	logger *slog.Logger
}

// NewMirror creates a mirror writing to target.
func NewMirror(target simplemolecule.FallbackSource, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{target: target, logger: logger}
}

// HandleEvent implements simplemolecule.Subscriber.
func (m *Mirror) HandleEvent(ctx context.Context, event simplemolecule.Event) error {
	if event.Record == nil {
		return nil
	}
	switch event.ChangeType {
	case simplemolecule.ChangeUpdated, simplemolecule.ChangeEdited:
	default:
		return nil
	}
	// Content that came from the fallback tree is already there.
	if event.Origin == simplemolecule.OriginFilesystem {
		return nil
	}

	rec := event.Record
	path, err := m.target.Write(ctx, rec.Folder, rec.Filename, rec.Identifier, rec.Content)
	if err != nil {
		return err
	}
	m.logger.Debug("record mirrored", "identifier", rec.Identifier, "source", m.target.Name(), "path", path)
	return nil
}
