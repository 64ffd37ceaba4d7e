package tmdl

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	measureHeaderPattern = regexp.MustCompile(`^([ \t]*)measure\s+('(?:[^']|'')*'|"[^"]*"|[^=\r\n]+?)\s*=[ \t]*(.*?)[ \t]*$`)
	displayFolderPattern = regexp.MustCompile(`^displayFolder\s*:\s*(.*)$`)
	lineageTagPattern    = regexp.MustCompile(`^lineageTag\s*:\s*(.*)$`)
	formatDefPattern     = regexp.MustCompile(`^formatStringDefinition\s*=\s*$`)

	columnMemberPattern    = regexp.MustCompile(`(?m)^[ \t]+column\s`)
	partitionMemberPattern = regexp.MustCompile(`(?m)^[ \t]+partition\b`)
)

// NewMeasure builds a measure created in memory rather than parsed from a
// file, with a fresh identity and tab indentation.
func NewMeasure(name string) *Measure {
	return &Measure{
		ID:               uuid.NewString(),
		Name:             name,
		Indent:           "\t",
		ExpressionIndent: "\t\t",
		MetaIndent:       "\t\t",
		FormatIndent:     "\t\t",
	}
}

// fileLine is one physical line with its byte extent in the original text.
type fileLine struct {
	text  string // content without the trailing newline
	start int
	next  int // offset of the following line
}

func splitOffsets(text string) []fileLine {
	var lines []fileLine
	start := 0
	for start <= len(text) {
		end := strings.IndexByte(text[start:], '\n')
		if end < 0 {
			if start < len(text) {
				lines = append(lines, fileLine{text: text[start:], start: start, next: len(text)})
			}
			break
		}
		abs := start + end
		content := text[start:abs]
		content = strings.TrimSuffix(content, "\r")
		lines = append(lines, fileLine{text: content, start: start, next: abs + 1})
		start = abs + 1
	}
	return lines
}

// ParseMeasures extracts the contiguous run of measure blocks from a table
// file, together with the byte range the run occupies. Every parsed measure
// gets a fresh session-scoped id. Files without measures report the offset
// where a new section belongs: before the first column member, else before
// the partition, else the end of the file.
func ParseMeasures(text string) ([]*Measure, SectionInfo) {
	info := SectionInfo{Newline: DetectNewline(text)}
	lines := splitOffsets(text)

	first := -1
	for i, line := range lines {
		if m := measureHeaderPattern.FindStringSubmatch(line.text); m != nil && strings.TrimSpace(m[2]) != "" {
			first = i
			break
		}
	}
	if first < 0 {
		info.InsertPos = measureInsertPos(text)
		return nil, info
	}

	var measures []*Measure
	i := first
	for i < len(lines) {
		m := measureHeaderPattern.FindStringSubmatch(lines[i].text)
		if m == nil || strings.TrimSpace(m[2]) == "" {
			break
		}
		measure, next := parseMeasureBlock(lines, i, m)
		measures = append(measures, measure)
		i = next
	}

	info.HasSection = true
	info.Start = lines[first].start
	if i < len(lines) {
		info.End = lines[i].start
	} else {
		info.End = len(text)
	}
	info.InsertPos = info.Start
	return measures, info
}

// parseMeasureBlock consumes one measure starting at lines[i], whose header
// already matched. It returns the measure and the index of the first line
// after the block, with trailing blank separator lines consumed.
func parseMeasureBlock(lines []fileLine, i int, header []string) (*Measure, int) {
	indent := header[1]
	name, quote := parseMeasureName(header[2])

	unit := defaultInnerIndent(indent)
	measure := &Measure{
		ID:               uuid.NewString(),
		Name:             name,
		Quote:            quote,
		Indent:           indent,
		ExpressionIndent: unit + unit,
		MetaIndent:       indent + unit,
		FormatIndent:     unit + unit,
	}

	var exprLines []string
	if header[3] != "" {
		exprLines = append(exprLines, header[3])
		measure.HeaderExpr = true
	}

	inMetadata := false
	exprIndentSet := false
	pendingBlanks := 0

	j := i + 1
	for j < len(lines) {
		line := lines[j].text
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			pendingBlanks++
			j++
			continue
		}
		lineIndent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if len(lineIndent) <= len(indent) {
			break
		}

		switch {
		case displayFolderPattern.MatchString(trimmed):
			measure.DisplayFolder = displayFolderPattern.FindStringSubmatch(trimmed)[1]
			markMetadata(measure, &inMetadata, lineIndent)
			pendingBlanks = 0
			j++
		case lineageTagPattern.MatchString(trimmed):
			measure.LineageTag = lineageTagPattern.FindStringSubmatch(trimmed)[1]
			markMetadata(measure, &inMetadata, lineIndent)
			pendingBlanks = 0
			j++
		case formatDefPattern.MatchString(trimmed):
			markMetadata(measure, &inMetadata, lineIndent)
			pendingBlanks = 0
			j = parseFormatBlock(lines, j+1, indent, len(lineIndent), measure)
		case inMetadata || metadataKeywordPattern.MatchString(trimmed):
			measure.OtherMetadata = append(measure.OtherMetadata, line)
			markMetadata(measure, &inMetadata, lineIndent)
			pendingBlanks = 0
			j++
		default:
			if !exprIndentSet {
				if strings.HasPrefix(lineIndent, indent) && len(lineIndent) > len(indent) {
					measure.ExpressionIndent = lineIndent[len(indent):]
				}
				exprIndentSet = true
			}
			for ; pendingBlanks > 0; pendingBlanks-- {
				exprLines = append(exprLines, "")
			}
			exprLines = append(exprLines, stripLinePrefix(line, indent+measure.ExpressionIndent))
			j++
		}
	}

	for len(exprLines) > 0 && exprLines[len(exprLines)-1] == "" {
		exprLines = exprLines[:len(exprLines)-1]
	}
	measure.Expression = strings.Join(exprLines, "\n")
	return measure, j
}

// markMetadata records the indent of the first property line so the block
// renders back at the level it came from.
func markMetadata(measure *Measure, inMetadata *bool, lineIndent string) {
	if !*inMetadata {
		measure.MetaIndent = lineIndent
	}
	*inMetadata = true
}

// metadataKeywordPattern matches member properties that are carried
// verbatim rather than interpreted.
var metadataKeywordPattern = regexp.MustCompile(`^(formatString|annotation|isHidden|dataType|dataCategory|displayName|description|changedProperty|extendedProperty|kpi)\b`)

// parseFormatBlock consumes the indented body of a formatStringDefinition
// and returns the index of the first line after it.
func parseFormatBlock(lines []fileLine, j int, measureIndent string, keywordWidth int, measure *Measure) int {
	var formatLines []string
	indentSet := false
	pendingBlanks := 0
	for j < len(lines) {
		line := lines[j].text
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			pendingBlanks++
			j++
			continue
		}
		lineIndent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if len(lineIndent) <= keywordWidth {
			break
		}
		if !indentSet {
			if strings.HasPrefix(lineIndent, measureIndent) && len(lineIndent) > len(measureIndent) {
				measure.FormatIndent = lineIndent[len(measureIndent):]
			}
			indentSet = true
		}
		for ; pendingBlanks > 0; pendingBlanks-- {
			formatLines = append(formatLines, "")
		}
		formatLines = append(formatLines, stripLinePrefix(line, measureIndent+measure.FormatIndent))
		j++
	}
	measure.FormatString = strings.Join(formatLines, "\n")
	return j
}

// parseMeasureName unwraps a measure name token. Single-quoted names use ''
// as the embedded-quote escape.
func parseMeasureName(token string) (string, QuoteStyle) {
	token = strings.TrimSpace(token)
	if len(token) >= 2 {
		switch {
		case token[0] == '\'' && token[len(token)-1] == '\'':
			inner := token[1 : len(token)-1]
			return strings.ReplaceAll(inner, "''", "'"), QuoteSingle
		case token[0] == '"' && token[len(token)-1] == '"':
			return token[1 : len(token)-1], QuoteSingle
		}
	}
	return token, QuoteBare
}

// stripLinePrefix removes the expected indentation prefix, falling back to
// a full left trim when the line was indented differently.
func stripLinePrefix(line, prefix string) string {
	if strings.HasPrefix(line, prefix) {
		return line[len(prefix):]
	}
	return strings.TrimLeft(line, " \t")
}

// defaultInnerIndent picks one extra indentation level in the style the
// header line already uses.
func defaultInnerIndent(indent string) string {
	if strings.Contains(indent, "\t") || indent == "" {
		return "\t"
	}
	return "    "
}

// measureInsertPos finds where a new measures section belongs in a file
// that has none. Measures precede column members in table files.
func measureInsertPos(text string) int {
	if loc := columnMemberPattern.FindStringIndex(text); loc != nil {
		return loc[0]
	}
	if loc := partitionMemberPattern.FindStringIndex(text); loc != nil {
		return loc[0]
	}
	return len(text)
}
