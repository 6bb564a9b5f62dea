package simplemolecule

import (
	"time"
)

// Format is the short code of a molecular file format, derived from a filename
// extension or sniffed from content.
type Format string

const (
	FormatPDB     Format = "pdb"
	FormatMOL     Format = "mol"
	FormatSDF     Format = "sdf"
	FormatXYZ     Format = "xyz"
	FormatMOL2    Format = "mol2"
	FormatCIF     Format = "cif"
	FormatGRO     Format = "gro"
	FormatFASTA   Format = "fasta"
	FormatUnknown Format = "unknown"
)

// Origin describes what produced the current content of a record.
type Origin string

const (
	OriginUpload       Origin = "upload"
	OriginCrossSession Origin = "cross-session"
	OriginFilesystem   Origin = "filesystem"
	OriginEdit         Origin = "edit"
)

// Stats is a derived, read-only summary of a record's content.
type Stats struct {
	Bytes     int `json:"bytes"`
	Chars     int `json:"chars"`
	Lines     int `json:"lines"`
	Atoms     int `json:"atoms"`
	Sequences int `json:"sequences,omitempty"`
}

// EditEntry is one element of a record's append-only edit history.
type EditEntry struct {
	Type        EditType  `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
}

// Record is one cached molecular payload.
type Record struct {
	Identifier     string      `json:"identifier"`
	SessionID      string      `json:"session_id,omitempty"`
	NodeID         string      `json:"node_id,omitempty"`
	Filename       string      `json:"filename"`
	Folder         string      `json:"folder"`
	Format         Format      `json:"format"`
	FormatName     string      `json:"format_name"`
	Content        string      `json:"content"`
	Stats          Stats       `json:"stats"`
	Origin         Origin      `json:"origin"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	LastAccessedAt time.Time   `json:"last_accessed_at"`
	AccessCount    int64       `json:"access_count"`
	EditHistory    []EditEntry `json:"edit_history"`
}

func (r *Record) clone() *Record {
	c := *r
	if r.EditHistory != nil {
		c.EditHistory = make([]EditEntry, len(r.EditHistory))
		copy(c.EditHistory, r.EditHistory)
	}
	return &c
}

func (r *Record) summary() RecordSummary {
	return RecordSummary{
		Identifier:     r.Identifier,
		SessionID:      r.SessionID,
		NodeID:         r.NodeID,
		Filename:       r.Filename,
		Folder:         r.Folder,
		Format:         r.Format,
		FormatName:     r.FormatName,
		Atoms:          r.Stats.Atoms,
		Bytes:          r.Stats.Bytes,
		CreatedAt:      r.CreatedAt,
		LastAccessedAt: r.LastAccessedAt,
		AccessCount:    r.AccessCount,
	}
}

// RecordSummary is the content-free view of a record returned by Status and Search.
type RecordSummary struct {
	Identifier     string    `json:"identifier"`
	SessionID      string    `json:"session_id,omitempty"`
	NodeID         string    `json:"node_id,omitempty"`
	Filename       string    `json:"filename"`
	Folder         string    `json:"folder"`
	Format         Format    `json:"format"`
	FormatName     string    `json:"format_name"`
	Atoms          int       `json:"atoms"`
	Bytes          int       `json:"bytes"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	AccessCount    int64     `json:"access_count"`
}

// StatusReport summarises the whole store.
type StatusReport struct {
	TotalRecords      int             `json:"total_records"`
	TotalContentBytes int             `json:"total_content_bytes"`
	State             string          `json:"state"`
	Records           []RecordSummary `json:"records"`
}

// SessionObservation describes one editor session seen in the store.
type SessionObservation struct {
	SessionID string    `json:"session_id"`
	LastSeen  time.Time `json:"last_seen"`
	Records   int       `json:"records"`
}

// HistoryPolicy decides what happens to the edit history when Store
// overwrites an existing identifier.
type HistoryPolicy int

const (
	// HistoryPreserve keeps the previous edit history and creation time.
	HistoryPreserve HistoryPolicy = iota
	// HistoryReset starts the overwritten record with an empty history.
	HistoryReset
)

// ChangeType is the kind of change carried by an Event.
type ChangeType string

const (
	ChangeUpdated ChangeType = "update"
	ChangeEdited  ChangeType = "edit"
	ChangeDeleted ChangeType = "delete"
	ChangeCleared ChangeType = "clear"
)

// Event is emitted after every successful store mutation.
// Record is nil for deletions.
type Event struct {
	Identifier string     `json:"identifier"`
	ChangeType ChangeType `json:"change_type"`
	Origin     Origin     `json:"origin,omitempty"`
	Record     *Record    `json:"record,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}
