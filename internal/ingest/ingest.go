// Package ingest turns uploaded files into the text the compliance core
// consumes. PDF layout extraction happens upstream; by the time a file
// reaches this package it is UTF-8 text, markdown, or JSON.
package ingest

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"arccs/internal/schema"
)

// Section is one header-delimited region of a document.
type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Document is the target text being checked for compliance. Immutable
// for the duration of one compliance run.
type Document struct {
	Name     string
	Hash     string // "sha256:<hex>"
	Text     string
	Sections []Section
}

// allowedExtensions mirrors the upload whitelist.
var allowedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".json": true,
}

// Allowed reports whether the filename carries a supported extension.
func Allowed(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// LoadDocument reads a document file, hashes it, and splits it into
// sections. JSON documents must carry their text under a "text" key.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	return ParseDocument(filepath.Base(path), data)
}

// ParseDocument builds a Document from raw upload bytes.
func ParseDocument(name string, data []byte) (*Document, error) {
	if !Allowed(name) {
		return nil, fmt.Errorf("unsupported document type %q: allowed extensions are .txt, .md, .json", filepath.Ext(name))
	}

	text := string(data)
	if strings.EqualFold(filepath.Ext(name), ".json") {
		var wrapper struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("parsing JSON document: %w", err)
		}
		if wrapper.Text == "" {
			return nil, fmt.Errorf("JSON document has no \"text\" field")
		}
		text = wrapper.Text
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("document %s is empty", name)
	}

	sum := sha256.Sum256(data)
	return &Document{
		Name:     name,
		Hash:     fmt.Sprintf("sha256:%x", sum),
		Text:     text,
		Sections: SplitSections(text),
	}, nil
}

var headerPattern = regexp.MustCompile(`(?m)^(#+\s.*)$`)

// SplitSections splits markdown text into header-delimited sections.
// Text before the first header is returned as an untitled section; a
// document with no headers yields a single untitled section.
func SplitSections(text string) []Section {
	indices := headerPattern.FindAllStringIndex(text, -1)
	if len(indices) == 0 {
		return []Section{{Content: strings.TrimSpace(text)}}
	}

	var sections []Section
	if preamble := strings.TrimSpace(text[:indices[0][0]]); preamble != "" {
		sections = append(sections, Section{Content: preamble})
	}
	for i, loc := range indices {
		title := strings.TrimSpace(text[loc[0]:loc[1]])
		end := len(text)
		if i+1 < len(indices) {
			end = indices[i+1][0]
		}
		sections = append(sections, Section{
			Title:   title,
			Content: strings.TrimSpace(text[loc[1]:end]),
		})
	}
	return sections
}

// regulationSet matches both bare-array regulation files and wrapped
// {"regulations": [...]} exports.
type regulationSet struct {
	Regulations []schema.Regulation `json:"regulations"`
}

// LoadRegulations reads a regulation-set JSON file.
func LoadRegulations(path string) ([]schema.Regulation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading regulation set: %w", err)
	}
	return ParseRegulations(data)
}

// ParseRegulations decodes a regulation set from raw bytes.
func ParseRegulations(data []byte) ([]schema.Regulation, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var regs []schema.Regulation
		if err := json.Unmarshal(data, &regs); err != nil {
			return nil, fmt.Errorf("parsing regulation array: %w", err)
		}
		return regs, nil
	}
	var set regulationSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parsing regulation set: %w", err)
	}
	if set.Regulations == nil {
		return nil, fmt.Errorf("regulation set has no \"regulations\" field")
	}
	return set.Regulations, nil
}
