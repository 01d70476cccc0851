package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer supplies the headers and rows of a table.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// PrintTable renders tr as a borderless left-aligned table.
func PrintTable(w io.Writer, tr TableRenderer) error {
	t := tablewriter.NewWriter(w)
	t.SetHeader(tr.Headers())

	t.SetAutoWrapText(false)
	t.SetAutoFormatHeaders(true)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetCenterSeparator("")
	t.SetColumnSeparator("")
	t.SetRowSeparator("")
	t.SetHeaderLine(false)
	t.SetBorder(false)
	t.SetTablePadding("  ")
	t.SetNoWhiteSpace(true)

	for _, row := range tr.Rows() {
		t.Append(row)
	}
	t.Render()
	return nil
}

// TableData builds an ad-hoc table row by row.
type TableData struct {
	headers []string
	rows    [][]string
}

func NewTableData(headers ...string) *TableData {
	return &TableData{headers: headers}
}

func (t *TableData) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *TableData) Headers() []string { return t.headers }

func (t *TableData) Rows() [][]string { return t.rows }
