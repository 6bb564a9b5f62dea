package simplemolecule

import (
	"strings"
	"unicode/utf8"
)

// InputKind tells whether a resolver input is a filename or usable text.
type InputKind string

const (
	InputReference InputKind = "reference"
	InputLiteral   InputKind = "literal"
)

// referenceMaxLen is the rune length below which a dotted single line is
// always taken for a filename.
const referenceMaxLen = 50

var contentSentinels = []string{
	"HEADER", "ATOM", "HETATM", "CONECT", // pdb
	"$$$$",  // sdf
	"data_", // cif
}

// Classify decides whether input names a file or already is molecular text.
// Surrounding whitespace is ignored.
func Classify(input string) InputKind {
	s := strings.TrimSpace(input)

	if utf8.RuneCountInString(s) < referenceMaxLen && strings.Contains(s, ".") && !strings.Contains(s, "\n") {
		return InputReference
	}
	for _, token := range contentSentinels {
		if strings.Contains(s, token) {
			return InputLiteral
		}
	}
	if strings.HasPrefix(s, ">") {
		return InputLiteral
	}
	if strings.Count(s, "\n") >= 3 {
		return InputLiteral
	}
	return InputReference
}
