package render

import (
	"encoding/csv"
	"encoding/json"
	"io"

	"github.com/sadopc/sqlgate/internal/executor"
)

// WriteCSV writes the result set as CSV with a header row.
func WriteCSV(w io.Writer, rs *executor.ResultSet) error {
	cw := csv.NewWriter(w)

	header := make([]string, len(rs.Columns))
	for i, c := range rs.Columns {
		header[i] = c.Name
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, row := range rs.Rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the result set as a JSON array of objects, one per
// row, mapping column names to string values.
func WriteJSON(w io.Writer, rs *executor.ResultSet) error {
	colNames := make([]string, len(rs.Columns))
	for i, c := range rs.Columns {
		colNames[i] = c.Name
	}

	objects := make([]map[string]string, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		obj := make(map[string]string, len(colNames))
		for j, name := range colNames {
			if j < len(row) {
				obj[name] = row[j]
			} else {
				obj[name] = ""
			}
		}
		objects = append(objects, obj)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(objects)
}
