package tmdl

import (
	"regexp"
	"strconv"
	"strings"
)

// Construct patterns. TMDL has no public grammar; each construct is matched
// with a line-anchored expression, and anything that fails to match degrades
// to a safe default instead of failing the whole parse.
var (
	queryOrderPattern = regexp.MustCompile(`annotation\s+PBI_QueryOrder\s*=\s*(\[(?s:.*?)\])`)
	queryGroupPattern = regexp.MustCompile(`(?mi)^\s*queryGroup\s+('[^']+'|"[^"]+"|[^\s\r\n]+)\s*\r?\n\s*annotation\s+PBI_QueryGroupOrder\s*=\s*(\d+)`)

	columnPattern       = regexp.MustCompile(`(?mi)^\s*column\s+(?:"([^"]+)"|([A-Za-z0-9_]+))\s*$`)
	modePattern         = regexp.MustCompile(`(?mi)^\s*mode\s*:\s*([^\r\n]+)`)
	dataModePattern     = regexp.MustCompile(`(?mi)^\s*annotation\s+PBI_DataMode\s*=\s*(.*?)\s*$`)
	partitionPattern    = regexp.MustCompile(`(?mi)^\s*partition\s+[A-Za-z0-9_-]+\s*=\s*(m|calculated)\s*$`)
	tableGroupPattern   = regexp.MustCompile(`(?mi)^\s*queryGroup\s*:\s*([^\r\n]+)`)
	legacyGroupPattern  = regexp.MustCompile(`(?mi)^\s*queryGroup\s+([^\r\n]+)`)
	quotedExprPattern   = regexp.MustCompile(`(?ms)^\s*expression\s*=\s*"((?:[^"\\]|\\.)*)"`)
	bareSourcePattern   = regexp.MustCompile(`(?m)^\s*source\s*=\s*$`)
	inlineSourcePattern = regexp.MustCompile(`(?m)^[ \t]*source\s*=[ \t]*`)

	pathSeparators = regexp.MustCompile(`[\\/]+`)
)

// ParseQueryOrder extracts the table order from the PBI_QueryOrder
// annotation in model.tmdl. A missing or malformed annotation yields an
// empty order rather than an error.
func ParseQueryOrder(modelText string) []string {
	m := queryOrderPattern.FindStringSubmatch(modelText)
	if m == nil {
		return nil
	}
	order, ok := parseStringList(m[1])
	if !ok {
		return nil
	}
	return order
}

// ParseQueryGroups extracts queryGroup declarations paired with a
// PBI_QueryGroupOrder annotation. Paths are normalized to slash form; when
// the same path is declared more than once, the minimum order value wins.
func ParseQueryGroups(modelText string) map[string]int {
	groups := make(map[string]int)
	for _, m := range queryGroupPattern.FindAllStringSubmatch(modelText, -1) {
		path := NormalizeGroupPath(m[1])
		if path == "" {
			continue
		}
		order, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		if existing, ok := groups[path]; !ok || order < existing {
			groups[path] = order
		}
	}
	return groups
}

// NormalizeGroupPath strips surrounding quotes, collapses backslash and
// slash separators to "/", and drops empty segments. An empty result means
// the value did not name a usable path.
func NormalizeGroupPath(raw string) string {
	text := strings.TrimSpace(raw)
	if len(text) >= 2 {
		if (text[0] == '\'' && text[len(text)-1] == '\'') || (text[0] == '"' && text[len(text)-1] == '"') {
			text = text[1 : len(text)-1]
		}
	}
	text = pathSeparators.ReplaceAllString(text, "/")
	var parts []string
	for _, part := range strings.Split(text, "/") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "/")
}

// ParseTable parses one tables/<name>.tmdl file. The table name comes from
// the file name, not the content.
func ParseTable(name, text string) *Table {
	t := &Table{
		Name:      name,
		TableType: TypeM,
	}

	for _, m := range columnPattern.FindAllStringSubmatch(text, -1) {
		column := m[1]
		if column == "" {
			column = m[2]
		}
		if column = strings.TrimSpace(column); column != "" {
			t.Columns = append(t.Columns, column)
		}
	}

	if m := modePattern.FindStringSubmatch(text); m != nil {
		t.ImportMode = ParseImportMode(m[1])
	} else if m := dataModePattern.FindStringSubmatch(text); m != nil {
		t.ImportMode = ParseImportMode(unwrapValue(m[1]))
	}

	if m := partitionPattern.FindStringSubmatch(text); m != nil {
		t.TableType = TableType(strings.ToLower(m[1]))
	}

	if m := tableGroupPattern.FindStringSubmatch(text); m != nil {
		t.QueryGroup = NormalizeGroupPath(m[1])
	} else if m := legacyGroupPattern.FindStringSubmatch(text); m != nil {
		t.QueryGroup = NormalizeGroupPath(m[1])
	}

	t.CodeText = extractTableCode(text)
	if t.TableType == TypeCalculated {
		t.CodeLang = LanguageDAX
	} else {
		t.CodeLang = LanguageM
	}

	t.Measures, t.Section = ParseMeasures(text)
	return t
}

// unwrapValue removes one layer of double quotes or backtick fencing around
// an annotation value.
func unwrapValue(raw string) string {
	text := strings.TrimSpace(raw)
	text = strings.Trim(text, "`")
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		text = text[1 : len(text)-1]
	}
	return strings.TrimSpace(text)
}

// extractTableCode pulls the M or DAX source out of a table file. It
// accepts either a quoted one-line `expression = "..."` or an indented
// block under a bare `source =` line, with an inline `source = ...` form as
// a fallback.
func extractTableCode(text string) string {
	normalized := strings.ReplaceAll(text, "    ", "\t")

	if m := quotedExprPattern.FindStringSubmatch(normalized); m != nil {
		return stripCodeFence(strings.TrimSpace(unescapeQuoted(m[1])))
	}

	loc := bareSourcePattern.FindStringIndex(normalized)
	if loc == nil {
		return extractInlineSource(normalized)
	}

	lines := strings.Split(normalized[loc[1]:], "\n")
	idx := 0
	for idx < len(lines) && strings.TrimSpace(lines[idx]) == "" {
		idx++
	}
	if idx >= len(lines) {
		return ""
	}

	first := lines[idx]
	baseIndent := len(first) - len(strings.TrimLeft(first, " \t"))

	var captured []string
	for _, line := range lines[idx:] {
		stripped := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(stripped, "annotation ") {
			break
		}
		if stripped != "" && len(line)-len(stripped) < baseIndent {
			break
		}
		captured = append(captured, strings.TrimRight(line, "\r"))
	}
	for len(captured) > 0 && strings.TrimSpace(captured[len(captured)-1]) == "" {
		captured = captured[:len(captured)-1]
	}

	return stripCodeFence(strings.TrimSpace(stripBlockIndent(strings.Join(captured, "\n"))))
}

// extractInlineSource handles `source = <code>` where the code starts on
// the same line and runs until an annotation line, a flush-left line, or
// the end of the file.
func extractInlineSource(normalized string) string {
	loc := inlineSourcePattern.FindStringIndex(normalized)
	if loc == nil {
		return ""
	}

	rest := normalized[loc[1]:]
	lines := strings.Split(rest, "\n")
	var captured []string
	for i, line := range lines {
		line = strings.TrimRight(line, "\r")
		stripped := strings.TrimLeft(line, " \t")
		if i > 0 {
			if strings.HasPrefix(stripped, "annotation") {
				break
			}
			if stripped != "" && len(line) == len(stripped) {
				break
			}
		}
		captured = append(captured, line)
	}
	for len(captured) > 0 && strings.TrimSpace(captured[len(captured)-1]) == "" {
		captured = captured[:len(captured)-1]
	}
	if len(captured) == 0 {
		return ""
	}

	return stripCodeFence(strings.TrimSpace(stripBlockIndent(strings.Join(captured, "\n"))))
}

// stripBlockIndent removes up to four leading space/tab columns from every
// line, matching the fixed-width dedent the source files use.
func stripBlockIndent(block string) string {
	lines := strings.Split(block, "\n")
	for i, line := range lines {
		n := 0
		for n < len(line) && n < 4 && (line[n] == ' ' || line[n] == '\t') {
			n++
		}
		lines[i] = line[n:]
	}
	return strings.Join(lines, "\n")
}

var (
	fencedMultiline = map[byte]*regexp.Regexp{
		'`': regexp.MustCompile("(?s)^\\s*```[^\r\n]*\r?\n(.*?)\r?\n\\s*```\\s*$"),
		'~': regexp.MustCompile(`(?s)^\s*~~~[^` + "\r\n" + `]*` + "\r?\n" + `(.*?)` + "\r?\n" + `\s*~~~\s*$`),
	}
	fencedInline = map[byte]*regexp.Regexp{
		'`': regexp.MustCompile("(?s)^\\s*```[^\r\n]*\\s*(.*?)\\s*```\\s*$"),
		'~': regexp.MustCompile(`(?s)^\s*~~~[^` + "\r\n" + `]*\s*(.*?)\s*~~~\s*$`),
	}
)

// stripCodeFence removes a surrounding triple-backtick or triple-tilde
// fence (with optional language tag) from a code block.
func stripCodeFence(text string) string {
	stripped := strings.TrimSpace(text)
	if stripped == "" {
		return stripped
	}
	for _, fence := range []byte{'`', '~'} {
		if m := fencedMultiline[fence].FindStringSubmatch(stripped); m != nil {
			return strings.TrimSpace(m[1])
		}
		if m := fencedInline[fence].FindStringSubmatch(stripped); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return stripped
}

// unescapeQuoted decodes backslash escapes in a quoted expression value.
// Unrecognized escapes are kept literally; a broken sequence returns the
// input unchanged.
func unescapeQuoted(text string) string {
	if !strings.ContainsRune(text, '\\') {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '\\' || i+1 >= len(text) {
			b.WriteByte(c)
			continue
		}
		i++
		switch text[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '"', '\'', '\\':
			b.WriteByte(text[i])
		case 'u':
			if i+4 < len(text) {
				if v, err := strconv.ParseUint(text[i+1:i+5], 16, 32); err == nil {
					b.WriteRune(rune(v))
					i += 4
					continue
				}
			}
			b.WriteByte('\\')
			b.WriteByte('u')
		default:
			b.WriteByte('\\')
			b.WriteByte(text[i])
		}
	}
	return b.String()
}

// parseStringList reads a bracketed list literal of quoted strings.
// Non-string items are skipped; anything structurally broken reports false.
func parseStringList(literal string) ([]string, bool) {
	body := strings.TrimSpace(literal)
	if len(body) < 2 || body[0] != '[' || body[len(body)-1] != ']' {
		return nil, false
	}
	body = body[1 : len(body)-1]

	var items []string
	i := 0
	for i < len(body) {
		switch c := body[i]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ',':
			i++
		case c == '"' || c == '\'':
			quote := c
			j := i + 1
			var b strings.Builder
			for j < len(body) {
				if body[j] == '\\' && j+1 < len(body) {
					b.WriteByte(body[j+1])
					j += 2
					continue
				}
				if body[j] == quote {
					break
				}
				b.WriteByte(body[j])
				j++
			}
			if j >= len(body) {
				return nil, false
			}
			items = append(items, b.String())
			i = j + 1
		default:
			return nil, false
		}
	}
	return items, true
}

// DetectNewline returns the newline style of a file, defaulting to "\n".
func DetectNewline(text string) string {
	if strings.Contains(text, "\r\n") {
		return "\r\n"
	}
	return "\n"
}
