// Package pages reads the page-ordered line stream produced by a PDF text extractor.
package pages

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Page is the text of one physical page.
type Page struct {
	Number int      `json:"page"`
	Lines  []string `json:"lines"`
}

// Line is one extracted line tagged with its page number.
type Line struct {
	Page int    `json:"page"`
	Text string `json:"line"`
}

const formFeed = "\f"

// maxLineSize bounds a single JSONL record.
const maxLineSize = 1024 * 1024

// ReadText reads plain extractor output (pdftotext layout) where pages are separated by
// form feeds. The first page is numbered firstPage. A trailing empty page left by the
// final form feed is dropped.
func ReadText(r io.Reader, firstPage int) ([]Page, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading text: %w", err)
	}

	chunks := strings.Split(string(data), formFeed)
	if n := len(chunks); n > 1 && strings.TrimSpace(chunks[n-1]) == "" {
		chunks = chunks[:n-1]
	}

	pages := make([]Page, 0, len(chunks))
	for i, chunk := range chunks {
		pages = append(pages, Page{
			Number: firstPage + i,
			Lines:  splitLines(chunk),
		})
	}
	return pages, nil
}

// ReadJSONL reads one {"page": n, "line": "..."} record per line and groups consecutive
// records of the same page. Blank input lines are skipped.
func ReadJSONL(r io.Reader) ([]Page, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var lines []Line
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var l Line
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		lines = append(lines, l)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return Group(lines), nil
}

// Group collects consecutive lines with the same page number into pages, keeping the
// stream order. A page number that reappears later starts a new Page.
func Group(lines []Line) []Page {
	var pages []Page
	for _, l := range lines {
		text := Normalize(l.Text)
		if text == "" {
			continue
		}
		if n := len(pages); n > 0 && pages[n-1].Number == l.Page {
			pages[n-1].Lines = append(pages[n-1].Lines, text)
			continue
		}
		pages = append(pages, Page{Number: l.Page, Lines: []string{text}})
	}
	return pages
}

// Flatten is the inverse of Group.
func Flatten(pages []Page) []Line {
	var lines []Line
	for _, p := range pages {
		for _, text := range p.Lines {
			lines = append(lines, Line{Page: p.Number, Text: text})
		}
	}
	return lines
}

// Normalize collapses runs of whitespace to a single space and trims the line.
func Normalize(line string) string {
	return strings.Join(strings.Fields(line), " ")
}

func splitLines(chunk string) []string {
	var lines []string
	for _, raw := range strings.Split(chunk, "\n") {
		if text := Normalize(raw); text != "" {
			lines = append(lines, text)
		}
	}
	return lines
}
