package simplemolecule

import (
	"fmt"
	"path"
	"strings"
)

// NodeSeparator splits an identifier into its session and node parts.
const NodeSeparator = "_node_"

// DefaultSession is used by DeriveIdentifier when no session is known.
const DefaultSession = "default"

// Identifier is the structured form of a cache key.
// SessionID is empty when the raw key carried no session.
type Identifier struct {
	SessionID string `json:"session_id,omitempty"`
	NodeID    string `json:"node_id"`
}

// NewIdentifier builds an identifier from explicit parts. Both are required.
func NewIdentifier(sessionID, nodeID string) (Identifier, error) {
	sessionID = strings.TrimSpace(sessionID)
	nodeID = strings.TrimSpace(nodeID)
	if sessionID == "" || nodeID == "" {
		return Identifier{}, fmt.Errorf("%w: session and node are required", ErrValidation)
	}
	return Identifier{SessionID: sessionID, NodeID: nodeID}, nil
}

// ParseIdentifier splits raw on the first NodeSeparator. A key without the
// separator, or with an empty session part, is returned as a bare node together
// with ErrMissingSession so the caller can decide how loudly to complain.
func ParseIdentifier(raw string) (Identifier, error) {
	if strings.TrimSpace(raw) == "" {
		return Identifier{}, fmt.Errorf("%w: empty identifier", ErrValidation)
	}
	session, node, found := strings.Cut(raw, NodeSeparator)
	if !found {
		return Identifier{NodeID: raw}, fmt.Errorf("%w: %q", ErrMissingSession, raw)
	}
	if session == "" {
		return Identifier{NodeID: node}, fmt.Errorf("%w: %q", ErrMissingSession, raw)
	}
	return Identifier{SessionID: session, NodeID: node}, nil
}

// HasSession reports whether the identifier carries a session.
func (id Identifier) HasSession() bool {
	return id.SessionID != ""
}

// String renders the cache key form.
func (id Identifier) String() string {
	if id.SessionID == "" {
		return id.NodeID
	}
	return id.SessionID + NodeSeparator + id.NodeID
}

// DeriveIdentifier guesses a full identifier for a bare node number.
//
// The guess prefers the most recently observed session and falls back to
// DefaultSession. It is ambiguous whenever two sessions are active at the same
// time, so callers should supply the session explicitly and use this only on an
// explicit opt-in.
func DeriveIdentifier(nodeID string, sessions []SessionObservation) string {
	nodeID = strings.TrimSpace(nodeID)
	if strings.Contains(nodeID, NodeSeparator) {
		return nodeID
	}

	session := DefaultSession
	var newest SessionObservation
	for _, s := range sessions {
		if s.SessionID == "" {
			continue
		}
		if newest.SessionID == "" || s.LastSeen.After(newest.LastSeen) {
			newest = s
		}
	}
	if newest.SessionID != "" {
		session = newest.SessionID
	}
	return session + NodeSeparator + nodeID
}

// DisambiguatedName inserts the node part of identifier before the file
// extension, e.g. "ligand.pdb" + "wf_node_7" -> "ligand_node7.pdb", so that
// several identifiers sharing a filename never overwrite each other on disk.
func DisambiguatedName(filename, identifier string) string {
	if identifier == "" {
		return filename
	}
	suffix := identifier
	if _, node, found := strings.Cut(identifier, NodeSeparator); found {
		suffix = node
	} else if len(identifier) > 3 {
		suffix = identifier[len(identifier)-3:]
	}

	if i := strings.LastIndex(filename, "."); i > 0 {
		return fmt.Sprintf("%s_node%s%s", filename[:i], suffix, filename[i:])
	}
	return fmt.Sprintf("%s_node%s", filename, suffix)
}

// CandidateNames lists the names a fallback source tries for filename: the
// plain name first, then the identifier's disambiguated name.
func CandidateNames(filename, identifier string) []string {
	names := []string{filename}
	if alt := DisambiguatedName(filename, identifier); alt != filename {
		names = append(names, alt)
	}
	return names
}

// SourceKey joins folder and name into a slash separated relative key. It
// rejects absolute paths and any attempt to climb out of the source root.
func SourceKey(folder, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: filename is required", ErrValidation)
	}
	folder = strings.ReplaceAll(folder, "\\", "/")
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.Contains(name, "/") || name == "." || name == ".." {
		return "", fmt.Errorf("%w: filename %q must not contain a path", ErrValidation, name)
	}
	key := path.Clean(path.Join(folder, name))
	if path.IsAbs(folder) || key == ".." || strings.HasPrefix(key, "../") {
		return "", fmt.Errorf("%w: %q escapes the source root", ErrValidation, path.Join(folder, name))
	}
	return key, nil
}
