package render

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sadopc/sqlgate/internal/executor"
)

func exportResultSet() *executor.ResultSet {
	return &executor.ResultSet{
		Columns: []executor.ColumnMeta{
			{Name: "id", Type: "int4"},
			{Name: "name", Type: "text"},
		},
		Rows: [][]string{
			{"1", "Alice"},
			{"2", "Bob, Jr."},
			{"3", ""},
		},
		RowCount: 3,
	}
}

func TestWriteCSV(t *testing.T) {
	var buf strings.Builder
	if err := WriteCSV(&buf, exportResultSet()); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4 (header + 3 rows)", len(records))
	}
	if records[0][0] != "id" || records[0][1] != "name" {
		t.Errorf("header = %v", records[0])
	}
	// Comma in a value must survive quoting.
	if records[2][1] != "Bob, Jr." {
		t.Errorf("records[2][1] = %q, want %q", records[2][1], "Bob, Jr.")
	}
	if records[3][1] != "" {
		t.Errorf("records[3][1] = %q, want empty", records[3][1])
	}
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf strings.Builder
	rs := &executor.ResultSet{
		Columns: []executor.ColumnMeta{{Name: "count"}},
	}
	if err := WriteCSV(&buf, rs); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	if strings.TrimSpace(buf.String()) != "count" {
		t.Errorf("output = %q, want header only", buf.String())
	}
}

func TestWriteJSON(t *testing.T) {
	var buf strings.Builder
	if err := WriteJSON(&buf, exportResultSet()); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	var objects []map[string]string
	if err := json.Unmarshal([]byte(buf.String()), &objects); err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(objects) != 3 {
		t.Fatalf("got %d objects, want 3", len(objects))
	}
	if objects[0]["id"] != "1" || objects[0]["name"] != "Alice" {
		t.Errorf("objects[0] = %v", objects[0])
	}
	if objects[2]["name"] != "" {
		t.Errorf("objects[2][name] = %q, want empty", objects[2]["name"])
	}
}

func TestWriteJSONNoRows(t *testing.T) {
	var buf strings.Builder
	rs := &executor.ResultSet{
		Columns: []executor.ColumnMeta{{Name: "id"}},
	}
	if err := WriteJSON(&buf, rs); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("output = %q, want empty array", buf.String())
	}
}
