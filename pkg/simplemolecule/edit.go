package simplemolecule

import (
	"fmt"
	"strings"
)

// EditType names a registered content transformation.
type EditType string

// EditRemoveLastAtom drops the last ATOM/HETATM record.
const EditRemoveLastAtom EditType = "remove_last_atom"

// EditRequest selects an editor and passes it optional parameters.
type EditRequest struct {
	Type   EditType       `json:"edit_type"`
	Params map[string]any `json:"params,omitempty"`
}

// Editor transforms record content. It runs while the store lock is held, so
// it must be a pure and quick string transformation. It returns the new
// content and a human readable description for the edit history.
type Editor func(content string, format Format, params map[string]any) (string, string, error)

func builtinEditors() map[EditType]Editor {
	return map[EditType]Editor{
		EditRemoveLastAtom: removeLastAtom,
	}
}

func removeLastAtom(content string, _ Format, _ map[string]any) (string, string, error) {
	lines := strings.Split(content, "\n")
	last := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if isAtomLine(lines[i]) {
			last = i
			break
		}
	}
	if last < 0 {
		return content, "", fmt.Errorf("%w: no atom records", ErrEditNoChange)
	}

	out := make([]string, 0, len(lines)-1)
	out = append(out, lines[:last]...)
	out = append(out, lines[last+1:]...)
	return strings.Join(out, "\n"), fmt.Sprintf("removed last atom (line %d)", last+1), nil
}
