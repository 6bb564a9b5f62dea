package main

import "github.com/tendant/simple-molecule/pkg/simplemolecule"

// InspectResult describes one local file.
type InspectResult struct {
	Path       string                   `json:"path"`
	Format     simplemolecule.Format    `json:"format"`
	FormatName string                   `json:"format_name"`
	Sniffed    bool                     `json:"sniffed,omitempty"`
	Kind       simplemolecule.InputKind `json:"input_kind"`
	Stats      simplemolecule.Stats     `json:"stats"`
}

// EditResult is the outcome of an edit applied to a local file.
type EditResult struct {
	Path        string                     `json:"path"`
	Identifier  string                     `json:"identifier"`
	Description string                     `json:"description"`
	Before      simplemolecule.Stats       `json:"before"`
	After       simplemolecule.Stats       `json:"after"`
	Content     string                     `json:"-"`
	History     []simplemolecule.EditEntry `json:"history"`
}
