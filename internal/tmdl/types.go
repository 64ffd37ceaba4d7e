// Package tmdl parses and rewrites the TMDL definition files of a Power BI
// project. It extracts tables, columns, measures, query groups, and M/DAX
// source blocks with line-anchored regular expressions, and writes edits
// back while preserving the indentation and line-ending style of the
// original files.
package tmdl

import "strings"

// ImportMode is a table's data load mode.
type ImportMode string

const (
	ModeImport      ImportMode = "import"
	ModeDirectQuery ImportMode = "directquery"
	ModeUnknown     ImportMode = ""
)

// ParseImportMode maps a raw mode value onto the known modes.
// Anything unrecognized is ModeUnknown.
func ParseImportMode(raw string) ImportMode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "import":
		return ModeImport
	case "directquery":
		return ModeDirectQuery
	default:
		return ModeUnknown
	}
}

// TableType distinguishes Power Query tables from calculated tables.
type TableType string

const (
	TypeM          TableType = "m"
	TypeCalculated TableType = "calculated"
)

// CodeLanguage is the language of a table's source block.
type CodeLanguage string

const (
	LanguageM   CodeLanguage = "m"
	LanguageDAX CodeLanguage = "dax"
)

// QuoteStyle records how a measure name was written in the source file so a
// rename can fall back to deriving the style from the new name.
type QuoteStyle int

const (
	// QuoteAuto derives quoting from the name: bare if it is a plain
	// identifier, single-quoted otherwise.
	QuoteAuto QuoteStyle = iota
	QuoteBare
	QuoteSingle
)

// Measure is one DAX measure inside a table. The indent fields and
// OtherMetadata carry verbatim formatting so an unmodified measure renders
// byte-identical to its source.
type Measure struct {
	// ID is a session-scoped synthetic identifier. It is never persisted
	// to TMDL and is regenerated on every load.
	ID string

	Name          string
	Expression    string
	DisplayFolder string
	FormatString  string
	LineageTag    string

	Indent           string
	ExpressionIndent string
	MetaIndent       string
	FormatIndent     string
	OtherMetadata    []string
	Quote            QuoteStyle

	// HeaderExpr records that the expression started on the measure
	// header line, so it renders back there instead of on its own line.
	HeaderExpr bool
}

// Table is the parsed form of one tables/<name>.tmdl file.
type Table struct {
	Name       string
	FilePath   string
	Columns    []string
	ImportMode ImportMode
	TableType  TableType
	QueryGroup string // normalized slash path, empty = Other Queries
	CodeText   string
	CodeLang   CodeLanguage
	Measures   []*Measure

	// Section describes where the measures live (or would be inserted)
	// in the file as last read from disk.
	Section SectionInfo
}

// Calculated reports whether the table is a calculated (DAX) table.
// Calculated tables never participate in the global query order.
func (t *Table) Calculated() bool { return t.TableType == TypeCalculated }

// MeasureByID returns the measure with the given synthetic id, or nil.
func (t *Table) MeasureByID(id string) *Measure {
	for _, m := range t.Measures {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// HasMeasureNamed reports whether a measure with the given name exists,
// comparing case-insensitively and ignoring the measure with skipID.
func (t *Table) HasMeasureNamed(name, skipID string) bool {
	for _, m := range t.Measures {
		if m.ID == skipID {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(m.Name), strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

// SectionInfo locates the measures section of a table file.
type SectionInfo struct {
	// Start/End are byte offsets of the contiguous measures section in
	// the file text. HasSection is false when the file has no measures,
	// in which case InsertPos is where a new section would go.
	HasSection bool
	Start      int
	End        int
	InsertPos  int
	Newline    string
}
