package render

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/sadopc/sqlgate/internal/executor"
	"github.com/sadopc/sqlgate/internal/resultcheck"
)

// WriteTable prints a materialized result set as an aligned text table
// followed by a row count and timing footer.
func WriteTable(w io.Writer, rs *executor.ResultSet) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	for i, col := range rs.Columns {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, col.Name)
	}
	fmt.Fprintln(tw)

	for i, col := range rs.Columns {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, dashes(len(col.Name)))
	}
	fmt.Fprintln(tw)

	for _, row := range rs.Rows {
		for i, v := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, v)
		}
		fmt.Fprintln(tw)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\n%d row(s) in %s\n", rs.RowCount, roundDuration(rs.Duration))
	return err
}

// WriteWarnings prints result warnings one per line.
func WriteWarnings(w io.Writer, warnings []resultcheck.Warning) {
	for _, warning := range warnings {
		fmt.Fprintf(w, "warning: %s: %s\n", warning.Kind, warning.Message)
	}
}

func dashes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '-'
	}
	return string(b)
}

func roundDuration(d time.Duration) time.Duration {
	if d >= time.Second {
		return d.Round(time.Millisecond)
	}
	return d.Round(time.Microsecond)
}
