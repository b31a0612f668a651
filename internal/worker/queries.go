package worker

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ReadQueriesFromFile loads queries by file extension: .json (array of
// strings or of objects with a "query" field), .csv (a "query" column, else
// the first column) and anything else as text, one query per line
func ReadQueriesFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".json":
		return readJSONQueries(file)
	case ".csv":
		return readCSVQueries(file)
	default:
		return readTextQueries(file)
	}
}

func readTextQueries(r io.Reader) ([]string, error) {
	var queries []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return queries, nil
}

func readJSONQueries(r io.Reader) ([]string, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		// A single object is accepted as a one-query batch
		items = []json.RawMessage{raw}
	}

	var queries []string
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				queries = append(queries, s)
			}
			continue
		}

		var obj struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return nil, fmt.Errorf("decode query entry: %w", err)
		}
		if q := strings.TrimSpace(obj.Query); q != "" {
			queries = append(queries, q)
		}
	}

	return queries, nil
}

func readCSVQueries(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	column := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), "query") {
			column = i
			break
		}
	}

	var queries []string
	if column < 0 {
		// Headerless file: the first row is already a query
		column = 0
		if len(header) > 0 {
			if q := strings.TrimSpace(header[0]); q != "" {
				queries = append(queries, q)
			}
		}
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if column >= len(record) {
			continue
		}
		if q := strings.TrimSpace(record[column]); q != "" {
			queries = append(queries, q)
		}
	}

	return queries, nil
}
