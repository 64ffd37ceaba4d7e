package tmdl

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	groupBlockPattern      = regexp.MustCompile(`(?m)^([ \t]*)queryGroup\s+(?:'[^']*'|"[^"]*"|[^\s\r\n]+)[ \t]*\r?\n([ \t]*)annotation\s+PBI_QueryGroupOrder\s*=\s*\d+[ \t]*\r?\n?`)
	orderAnnotationPattern = regexp.MustCompile(`(annotation\s+PBI_QueryOrder\s*=\s*)(\[(?s:.*?)\])`)
	indentOnlyPattern      = regexp.MustCompile(`^[ \t]*$`)

	modeLinePattern  = regexp.MustCompile(`(?i)^([ \t]*)mode\s*:`)
	groupLinePattern = regexp.MustCompile(`(?i)^([ \t]*)queryGroup\b`)

	bareNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// ErrNoQueryOrder reports a model file without the PBI_QueryOrder
// annotation, which is the anchor every model rewrite needs.
var ErrNoQueryOrder = errors.New("model file has no PBI_QueryOrder annotation")

// RewriteModel replaces the query-group declarations and the table order of
// a model.tmdl file. All existing queryGroup/PBI_QueryGroupOrder pairs are
// removed, one pair per folder path is re-inserted ahead of the
// PBI_QueryOrder annotation with order values renumbered from zero, and the
// order list literal is rewritten in place. Indentation and line endings
// follow the original text.
func RewriteModel(text string, folderPaths, tableOrder []string) (string, error) {
	nl := DetectNewline(text)

	groupIndent, annIndent := "", ""
	sawGroup := false
	stripped := groupBlockPattern.ReplaceAllStringFunc(text, func(block string) string {
		if !sawGroup {
			m := groupBlockPattern.FindStringSubmatch(block)
			groupIndent, annIndent = m[1], m[2]
			sawGroup = true
		}
		return ""
	})

	loc := orderAnnotationPattern.FindStringSubmatchIndex(stripped)
	if loc == nil {
		return "", ErrNoQueryOrder
	}

	lineStart := strings.LastIndexByte(stripped[:loc[0]], '\n') + 1
	orderIndent := stripped[lineStart:loc[0]]
	if !indentOnlyPattern.MatchString(orderIndent) {
		orderIndent = ""
	}
	indentUnit := "    "
	if strings.Contains(orderIndent, "\t") {
		indentUnit = "\t"
	}
	if !sawGroup {
		groupIndent = orderIndent
		annIndent = orderIndent + indentUnit
	}

	var quoted []string
	for _, name := range tableOrder {
		quoted = append(quoted, `"`+escapeListItem(name)+`"`)
	}
	newList := "[" + strings.Join(quoted, ",") + "]"
	updated := stripped[:loc[4]] + newList + stripped[loc[5]:]

	var blocks strings.Builder
	for idx, path := range folderPaths {
		blocks.WriteString(groupIndent)
		blocks.WriteString("queryGroup '")
		blocks.WriteString(escapeSingleQuoted(path))
		blocks.WriteString("'")
		blocks.WriteString(nl)
		blocks.WriteString(annIndent)
		blocks.WriteString(fmt.Sprintf("annotation PBI_QueryGroupOrder = %d", idx))
		blocks.WriteString(nl)
	}

	return updated[:lineStart] + blocks.String() + updated[lineStart:], nil
}

func escapeListItem(name string) string {
	name = strings.ReplaceAll(name, `\`, `\\`)
	return strings.ReplaceAll(name, `"`, `\"`)
}

func escapeSingleQuoted(path string) string {
	return strings.ReplaceAll(path, "'", "''")
}

// RewriteTableGroup sets or clears the queryGroup assignment of a table
// file. The line sits directly after the mode line; with no mode line the
// text is returned unchanged. The returned bool reports whether the text
// changed.
func RewriteTableGroup(text, groupPath string) (string, bool) {
	nl := DetectNewline(text)
	lines := strings.Split(text, "\n")

	modeIdx, groupIdx := -1, -1
	for i, line := range lines {
		if modeIdx < 0 && modeLinePattern.MatchString(line) {
			modeIdx = i
		}
		if groupIdx < 0 && groupLinePattern.MatchString(line) {
			groupIdx = i
		}
	}

	if groupPath == "" {
		if groupIdx < 0 {
			return text, false
		}
		cut := 1
		if groupIdx+1 < len(lines) && strings.TrimSpace(lines[groupIdx+1]) == "" && groupIdx+2 < len(lines) {
			cut = 2
		}
		lines = append(lines[:groupIdx], lines[groupIdx+cut:]...)
		return strings.Join(lines, "\n"), true
	}

	indent := "\t"
	if groupIdx >= 0 {
		indent = groupLinePattern.FindStringSubmatch(lines[groupIdx])[1]
	} else if modeIdx >= 0 {
		indent = modeLinePattern.FindStringSubmatch(lines[modeIdx])[1]
	} else {
		return text, false
	}

	content := indent + "queryGroup: '" + escapeSingleQuoted(groupPath) + "'"
	if nl == "\r\n" {
		content += "\r"
	}

	if groupIdx >= 0 {
		if lines[groupIdx] == content {
			return text, false
		}
		lines[groupIdx] = content
		return strings.Join(lines, "\n"), true
	}

	lines = append(lines[:modeIdx+1], append([]string{content}, lines[modeIdx+1:]...)...)
	return strings.Join(lines, "\n"), true
}

// formatMeasureName renders a measure name token. Plain identifiers stay
// bare unless the source had them quoted; everything else is single-quoted
// with '' as the embedded-quote escape.
func formatMeasureName(name string, quote QuoteStyle) string {
	if quote != QuoteSingle && bareNamePattern.MatchString(name) {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// RenderMeasureBlock renders one measure in its recorded indentation. An
// empty expression renders as the literal 0 so the file stays valid.
func RenderMeasureBlock(m *Measure, nl string) string {
	var lines []string
	header := m.Indent + "measure " + formatMeasureName(m.Name, m.Quote) + " ="

	exprIndent := m.ExpressionIndent
	if exprIndent == "" {
		unit := defaultInnerIndent(m.Indent)
		exprIndent = unit + unit
	}
	exprLines := strings.Split(m.Expression, "\n")
	if strings.TrimSpace(m.Expression) == "" {
		exprLines = []string{"0"}
	} else if m.HeaderExpr {
		header += " " + exprLines[0]
		exprLines = exprLines[1:]
	}
	lines = append(lines, header)
	for _, line := range exprLines {
		if line == "" {
			lines = append(lines, "")
			continue
		}
		lines = append(lines, m.Indent+exprIndent+line)
	}

	meta := m.MetaIndent
	if meta == "" {
		meta = m.Indent + defaultInnerIndent(m.Indent)
	}
	if m.DisplayFolder != "" {
		lines = append(lines, meta+"displayFolder: "+m.DisplayFolder)
	}
	if m.LineageTag != "" {
		lines = append(lines, meta+"lineageTag: "+m.LineageTag)
	}
	lines = append(lines, m.OtherMetadata...)
	if m.FormatString != "" {
		lines = append(lines, meta+"formatStringDefinition =")
		for _, line := range strings.Split(m.FormatString, "\n") {
			if line == "" {
				lines = append(lines, "")
				continue
			}
			lines = append(lines, m.Indent+m.FormatIndent+line)
		}
	}

	return strings.Join(lines, nl)
}

// RenderMeasureSection renders all measures, blocks separated by one blank
// line, with a blank line after the final block.
func RenderMeasureSection(measures []*Measure, nl string) string {
	if len(measures) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(measures))
	for _, m := range measures {
		blocks = append(blocks, RenderMeasureBlock(m, nl))
	}
	return strings.Join(blocks, nl+nl) + nl + nl
}

// RewriteMeasures replaces the measures section of a table file with the
// given measures, or inserts one where it belongs when the file had none.
// The section location is re-derived from the text itself so the rewrite
// stays valid after other in-place edits. The bool reports change.
func RewriteMeasures(text string, measures []*Measure) (string, bool) {
	_, info := ParseMeasures(text)
	section := RenderMeasureSection(measures, info.Newline)

	var updated string
	switch {
	case info.HasSection:
		updated = text[:info.Start] + section + text[info.End:]
	case len(measures) == 0:
		return text, false
	default:
		updated = text[:info.InsertPos] + section + text[info.InsertPos:]
	}
	if updated == text {
		return text, false
	}
	return updated, true
}
