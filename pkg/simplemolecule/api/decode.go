package api

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/tendant/simple-molecule/pkg/simplemolecule"
	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeText turns uploaded bytes into text. UTF-8 is tried first and
// Latin-1 second; data holding NUL bytes is treated as binary and rejected.
func DecodeText(data []byte) (string, error) {
	if bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("%w: binary data", simplemolecule.ErrDecode)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), nil
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", simplemolecule.ErrDecode, err)
	}
	return string(decoded), nil
}
