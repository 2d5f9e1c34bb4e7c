package layout

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// ParseError reports a layout descriptor that violates the basic grammar.
// This is fatal for the file: a descriptor without a usable DATA LIST
// section cannot produce positions, and nothing downstream can recover.
type ParseError struct {
	Path string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("layout parse error: %s:%d: %s", e.Path, e.Line, e.Msg)
	}
	return fmt.Sprintf("layout parse error: %s: %s", e.Path, e.Msg)
}

// LabelEntry is one raw VARIABLE LABELS declaration, kept as written.
// IDToken is the text before the quoted label; it only attaches to a column
// when it exactly matches a declared variable id. Entries whose id token is
// garbled (shifted or reversed delimiters) survive here so the exception
// layer can still reach them.
type LabelEntry struct {
	IDToken string
	Label   string
	Raw     string
}

// MissingEntry is one raw MISSING VALUES declaration, id case preserved.
type MissingEntry struct {
	IDToken string
	Codes   []string
}

// Descriptor is the parsed form of one layout descriptor. Columns carry
// positions only; labels and missing codes are attached during
// reconciliation because their id tokens are not always trustworthy.
type Descriptor struct {
	FileID      string
	Path        string
	Columns     []ColumnSpec
	Labels      []LabelEntry
	Missing     []MissingEntry
	Diagnostics []string
}

// section keywords of the observed dialect, matched case-insensitively at
// line start.
var sectionKeywords = []string{
	"DATA LIST",
	"VARIABLE LABELS",
	"MISSING VALUES",
	"VALUE LABELS",
}

var (
	varIDPattern   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	rangePattern   = regexp.MustCompile(`^(\d+)(?:-(\d+))?$`)
	missingPattern = regexp.MustCompile(`([A-Za-z][A-Za-z0-9_]*)\s*\(([^)]*)\)`)
)

// descLine is one physical line of a descriptor with its 1-based number,
// kept for error reporting.
type descLine struct {
	num  int
	text string
}

// Parse reads and parses the layout descriptor at path.
func Parse(path, fileID string) (*Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open layout %s: %w", path, err)
	}
	defer f.Close()
	return ParseReader(f, path, fileID)
}

// ParseReader parses a layout descriptor from r. The path is used for error
// reporting only.
func ParseReader(r io.Reader, path, fileID string) (*Descriptor, error) {
	var lines []descLine
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		lines = append(lines, descLine{num: n, text: sc.Text()})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read layout %s: %w", path, err)
	}

	// Split into sections by keyword lines. Text before the first keyword
	// (titles, comments) is ignored.
	type section struct {
		keyword string
		lines   []descLine
	}
	var sections []section
	for _, ln := range lines {
		upper := strings.ToUpper(strings.TrimSpace(ln.text))
		matched := ""
		for _, kw := range sectionKeywords {
			if strings.HasPrefix(upper, kw) {
				matched = kw
				break
			}
		}
		if matched != "" {
			sections = append(sections, section{keyword: matched})
		}
		if len(sections) > 0 {
			cur := &sections[len(sections)-1]
			cur.lines = append(cur.lines, ln)
		}
	}

	d := &Descriptor{FileID: fileID, Path: path}
	sawDataList := false
	for _, sec := range sections {
		body := sectionBody(sec.keyword, sec.lines)
		switch sec.keyword {
		case "DATA LIST":
			sawDataList = true
			if err := d.parseDataList(sec.lines); err != nil {
				return nil, err
			}
		case "VARIABLE LABELS":
			d.parseLabels(body)
		case "MISSING VALUES":
			d.parseMissing(body)
		case "VALUE LABELS":
			// Per-value code labels are not consumed by the pipeline.
		}
	}
	if !sawDataList {
		return nil, &ParseError{Path: path, Msg: "no DATA LIST section"}
	}
	if len(d.Columns) == 0 {
		return nil, &ParseError{Path: path, Msg: "DATA LIST declares no columns"}
	}
	sch := &Schema{FileID: fileID, Columns: d.Columns}
	if err := sch.Validate(); err != nil {
		return nil, &ParseError{Path: path, Msg: err.Error()}
	}
	return d, nil
}

// sectionBody joins a section's lines into one string with the keyword,
// a leading FILE= clause, the record slash, and the trailing command
// terminator stripped.
func sectionBody(keyword string, lines []descLine) string {
	var b strings.Builder
	for i, ln := range lines {
		text := ln.text
		if i == 0 {
			trimmed := strings.TrimSpace(text)
			text = trimmed[len(keyword):]
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}
	body := b.String()
	if keyword == "DATA LIST" {
		// Everything before the record marker is the FILE= clause.
		if idx := strings.Index(body, "/"); idx >= 0 {
			body = body[idx+1:]
		}
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, ".")
	return body
}

// parseDataList extracts (id, start-end) pairs. This is the one part of the
// grammar that must parse cleanly; any unrecognized token is a hard error.
func (d *Descriptor) parseDataList(lines []descLine) error {
	pendingID := ""
	pastSlash := false
	for i, ln := range lines {
		text := ln.text
		if i == 0 {
			trimmed := strings.TrimSpace(text)
			text = trimmed[len("DATA LIST"):]
		}
		if !pastSlash {
			if idx := strings.Index(text, "/"); idx >= 0 {
				text = text[idx+1:]
				pastSlash = true
			} else {
				continue
			}
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), ".")
		for _, tok := range strings.Fields(text) {
			switch {
			case strings.EqualFold(tok, "(A)"):
				if len(d.Columns) == 0 {
					return &ParseError{Path: d.Path, Line: ln.num, Msg: "(A) with no preceding column"}
				}
				d.Columns[len(d.Columns)-1].Alpha = true
			case rangePattern.MatchString(tok):
				if pendingID == "" {
					return &ParseError{Path: d.Path, Line: ln.num, Msg: fmt.Sprintf("position %q with no variable id", tok)}
				}
				m := rangePattern.FindStringSubmatch(tok)
				start, _ := strconv.Atoi(m[1])
				end := start
				if m[2] != "" {
					end, _ = strconv.Atoi(m[2])
				}
				d.Columns = append(d.Columns, ColumnSpec{VarID: pendingID, Start: start, End: end})
				pendingID = ""
			case varIDPattern.MatchString(tok):
				if pendingID != "" {
					return &ParseError{Path: d.Path, Line: ln.num, Msg: fmt.Sprintf("variable %q has no position declaration", pendingID)}
				}
				pendingID = tok
			default:
				return &ParseError{Path: d.Path, Line: ln.num, Msg: fmt.Sprintf("unrecognized token %q in DATA LIST", tok)}
			}
		}
	}
	if pendingID != "" {
		return &ParseError{Path: d.Path, Msg: fmt.Sprintf("variable %q has no position declaration", pendingID)}
	}
	return nil
}

// parseLabels extracts VARIABLE LABELS entries. This extraction is lossy by
// design: entries with absent, shifted, or reversed quote delimiters are
// kept with whatever id token and label text could be recovered, plus a
// diagnostic. No attempt is made to re-guess a defective declaration.
func (d *Descriptor) parseLabels(body string) {
	for _, raw := range strings.Split(body, "/") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		entry := LabelEntry{Raw: raw}
		open := strings.IndexAny(raw, `'"`)
		if open < 0 {
			// No quoted label at all.
			if fields := strings.Fields(raw); len(fields) > 0 {
				entry.IDToken = fields[0]
			}
			d.Diagnostics = append(d.Diagnostics, fmt.Sprintf("label entry %q: no quoted label", raw))
			d.Labels = append(d.Labels, entry)
			continue
		}
		quote := raw[open]
		rest := raw[open+1:]
		closing := strings.IndexByte(rest, quote)
		if closing < 0 {
			// Unterminated label: keep the remainder as the label text.
			entry.Label = strings.TrimSpace(rest)
			entry.IDToken = strings.TrimSpace(raw[:open])
			d.Diagnostics = append(d.Diagnostics, fmt.Sprintf("label entry %q: unterminated label", raw))
			d.Labels = append(d.Labels, entry)
			continue
		}
		entry.Label = rest[:closing]
		entry.IDToken = strings.TrimSpace(raw[:open])
		if leftover := strings.TrimSpace(rest[closing+1:]); leftover != "" {
			// Reversed or shifted delimiters leave text outside the quotes.
			// The quoted span and the leftover are both preserved; which one
			// is the real label is for the exception layer to decide.
			entry.IDToken = joinTokens(entry.IDToken, leftover)
			d.Diagnostics = append(d.Diagnostics, fmt.Sprintf("label entry %q: text outside quoted label", raw))
		}
		d.Labels = append(d.Labels, entry)
	}
}

func joinTokens(a, b string) string {
	if a == "" {
		return b
	}
	return a + " " + b
}

// parseMissing extracts MISSING VALUES entries, id case preserved as
// written so case defects in the source stay visible.
func (d *Descriptor) parseMissing(body string) {
	for _, m := range missingPattern.FindAllStringSubmatch(body, -1) {
		entry := MissingEntry{IDToken: m[1]}
		for _, code := range strings.Split(m[2], ",") {
			code = strings.TrimSpace(code)
			if code != "" {
				entry.Codes = append(entry.Codes, code)
			}
		}
		if len(entry.Codes) == 0 {
			d.Diagnostics = append(d.Diagnostics, fmt.Sprintf("missing-values entry for %s declares no codes", m[1]))
			continue
		}
		d.Missing = append(d.Missing, entry)
	}
}

// PositionSchema returns the position-only schema derived from DATA LIST,
// with placeholder names. Names and missing codes are attached by the
// reconciler.
func (d *Descriptor) PositionSchema() *Schema {
	sch := &Schema{FileID: d.FileID, Columns: make([]ColumnSpec, len(d.Columns))}
	copy(sch.Columns, d.Columns)
	return sch
}
