package ingest

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/rectify/internal/store"
)

// Document is a unit of knowledge-base text with its metadata
type Document struct {
	Text     string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Source returns the source tag of the document
func (d Document) Source() string {
	s, _ := d.Metadata[store.MetaSource].(string)
	return s
}

// SupportedExtensions lists the file types LoadDir reads
var SupportedExtensions = []string{".txt", ".md", ".html", ".htm", ".json"}

// LoadDir reads every supported file below dir in lexical order.
// Hidden files and directories are skipped.
func LoadDir(dir string) ([]Document, error) {
	var docs []Document

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !supported(path) {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = d.Name()
		}

		loaded, err := LoadFile(path, filepath.ToSlash(rel))
		if err != nil {
			return fmt.Errorf("load %s: %w", rel, err)
		}
		docs = append(docs, loaded...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// LoadFile reads one file. source tags documents that carry none.
func LoadFile(path, source string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return parseJSONDocuments(data, source)
	case ".html", ".htm":
		page, err := ParseHTML(string(data), "")
		if err != nil {
			return nil, err
		}
		meta := map[string]any{store.MetaSource: source, "type": "html"}
		if page.Title != "" {
			meta["title"] = page.Title
		}
		return nonEmpty(Document{Text: page.Text, Metadata: meta}), nil
	default:
		return nonEmpty(Document{
			Text:     string(data),
			Metadata: map[string]any{store.MetaSource: source, "type": strings.TrimPrefix(ext, ".")},
		}), nil
	}
}

// jsonDocument accepts both "content" and "text" as the body key
type jsonDocument struct {
	Content  string         `json:"content"`
	Text     string         `json:"text"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata"`
}

func (j jsonDocument) document(fallbackSource string) Document {
	text := j.Content
	if text == "" {
		text = j.Text
	}
	meta := make(map[string]any, len(j.Metadata)+1)
	for k, v := range j.Metadata {
		meta[k] = v
	}
	if j.Source != "" {
		meta[store.MetaSource] = j.Source
	}
	if s, _ := meta[store.MetaSource].(string); s == "" {
		meta[store.MetaSource] = fallbackSource
	}
	return Document{Text: text, Metadata: meta}
}

// parseJSONDocuments accepts an object, an array of objects or an array of strings
func parseJSONDocuments(data []byte, source string) ([]Document, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		var single jsonDocument
		if err2 := json.Unmarshal(data, &single); err2 != nil {
			return nil, fmt.Errorf("parse json documents: %w", err)
		}
		return nonEmpty(single.document(source)), nil
	}

	var docs []Document
	for i, item := range raw {
		var text string
		if err := json.Unmarshal(item, &text); err == nil {
			docs = append(docs, nonEmpty(Document{
				Text:     text,
				Metadata: map[string]any{store.MetaSource: source, "type": "json"},
			})...)
			continue
		}

		var jd jsonDocument
		if err := json.Unmarshal(item, &jd); err != nil {
			return nil, fmt.Errorf("parse json document %d: %w", i, err)
		}
		docs = append(docs, nonEmpty(jd.document(source))...)
	}
	return docs, nil
}

func nonEmpty(d Document) []Document {
	d.Text = strings.TrimSpace(d.Text)
	if d.Text == "" {
		return nil
	}
	return []Document{d}
}

func supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
