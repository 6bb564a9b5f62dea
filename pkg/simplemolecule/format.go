package simplemolecule

import (
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"
)

var formatNames = map[Format]string{
	FormatPDB:   "Protein Data Bank",
	FormatMOL:   "MDL Molfile",
	FormatSDF:   "Structure Data File",
	FormatXYZ:   "XYZ Format",
	FormatMOL2:  "Tripos MOL2",
	FormatCIF:   "Crystallographic Information File",
	FormatGRO:   "GROMACS Format",
	FormatFASTA: "FASTA Sequence",
}

var extensionFormats = map[string]Format{
	"pdb":   FormatPDB,
	"ent":   FormatPDB,
	"mol":   FormatMOL,
	"sdf":   FormatSDF,
	"sd":    FormatSDF,
	"xyz":   FormatXYZ,
	"mol2":  FormatMOL2,
	"cif":   FormatCIF,
	"mmcif": FormatCIF,
	"gro":   FormatGRO,
	"fasta": FormatFASTA,
	"fa":    FormatFASTA,
	"fas":   FormatFASTA,
}

// DetectFormat derives the format from a filename extension.
func DetectFormat(filename string) Format {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if f, ok := extensionFormats[ext]; ok {
		return f
	}
	return FormatUnknown
}

// Name returns the human readable format name.
func (f Format) Name() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return "Unknown Format"
}

// ComputeStats summarises content using the counting heuristic of format.
func ComputeStats(content string, format Format) Stats {
	lines := strings.Split(content, "\n")
	s := Stats{
		Bytes: len(content),
		Chars: utf8.RuneCountInString(content),
		Lines: strings.Count(content, "\n") + 1,
	}

	switch format {
	case FormatPDB:
		s.Atoms = countAtomLines(lines)
	case FormatMOL, FormatSDF:
		s.Atoms = molCountsLine(lines)
	case FormatXYZ:
		s.Atoms = leadingInt(lines[0])
	case FormatFASTA:
		s.Sequences = countPrefixed(lines, ">")
	default:
		for _, line := range lines {
			if t := strings.TrimSpace(line); t != "" && !strings.HasPrefix(t, "#") {
				s.Atoms++
			}
		}
	}
	return s
}

// ContentAnalysis is what AnalyzeContent learns about literal text.
type ContentAnalysis struct {
	Format Format
	Stats  Stats
}

// AnalyzeContent sniffs the format of literal text (no filename available)
// and computes its statistics.
func AnalyzeContent(content string) ContentAnalysis {
	lines := strings.Split(content, "\n")
	format := FormatUnknown

	switch {
	case hasLinePrefix(lines, "HEADER", "ATOM", "HETATM"):
		format = FormatPDB
	case strings.Contains(content, "$$$$"):
		format = FormatSDF
	case isInt(strings.TrimSpace(lines[0])):
		format = FormatXYZ
	case strings.HasPrefix(strings.TrimSpace(content), ">"):
		format = FormatFASTA
	case hasLinePrefix(lines, "data_"):
		format = FormatCIF
	}

	return ContentAnalysis{Format: format, Stats: ComputeStats(content, format)}
}

func isAtomLine(line string) bool {
	return strings.HasPrefix(line, "ATOM") || strings.HasPrefix(line, "HETATM")
}

func countAtomLines(lines []string) int {
	n := 0
	for _, line := range lines {
		if isAtomLine(line) {
			n++
		}
	}
	return n
}

func countPrefixed(lines []string, prefix string) int {
	n := 0
	for _, line := range lines {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

func hasLinePrefix(lines []string, prefixes ...string) bool {
	for _, line := range lines {
		for _, p := range prefixes {
			if strings.HasPrefix(line, p) {
				return true
			}
		}
	}
	return false
}

// molCountsLine reads the atom count of a V2000 counts line (line 4). The
// field is fixed-width, three columns, which matters once counts reach 100 and
// the atom and bond fields touch.
func molCountsLine(lines []string) int {
	if len(lines) < 4 {
		return 0
	}
	counts := lines[3]
	if len(counts) >= 3 {
		if n, err := strconv.Atoi(strings.TrimSpace(counts[:3])); err == nil {
			return n
		}
	}
	return leadingInt(counts)
}

func leadingInt(line string) int {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func isInt(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}
