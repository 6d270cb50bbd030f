package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/robocompute/go-robocompute/internal/models"
)

type VisualTable struct {
	Header   []string
	Data     [][]string
	RowColor []RowColor
}

// RowColor colors the given columns of one row.
type RowColor struct {
	row    int
	column []int
	color  []tablewriter.Colors
}

func NewVisualTable(header []string, data [][]string, rowColor []RowColor) *VisualTable {
	return &VisualTable{
		Header:   header,
		Data:     data,
		RowColor: rowColor,
	}
}

func (v *VisualTable) rowColors(index int, width int) []tablewriter.Colors {
	var colors []tablewriter.Colors
	for _, rc := range v.RowColor {
		if rc.row != index {
			continue
		}
		colors = make([]tablewriter.Colors, width)
		for n, col := range rc.column {
			if col < width {
				colors[col] = rc.color[n]
			}
		}
	}
	return colors
}

func (v *VisualTable) Generate() {
	table := tablewriter.NewWriter(os.Stdout)
	for index, datum := range v.Data {
		table.Rich(datum, v.rowColors(index, len(datum)))
	}

	table.SetHeader(v.Header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	table.Render()
}

func statusColors(status models.TaskStatus) tablewriter.Colors {
	switch status {
	case models.TaskPending, models.TaskAccepted:
		return tablewriter.Colors{tablewriter.Bold, tablewriter.FgYellowColor}
	case models.TaskRunning:
		return tablewriter.Colors{tablewriter.Bold, tablewriter.FgCyanColor}
	case models.TaskCompleted:
		return tablewriter.Colors{tablewriter.Bold, tablewriter.FgGreenColor}
	}
	return tablewriter.Colors{tablewriter.Bold, tablewriter.FgRedColor}
}

func colorStatus(status models.TaskStatus) string {
	switch status {
	case models.TaskPending, models.TaskAccepted:
		return color.YellowString(string(status))
	case models.TaskRunning:
		return color.CyanString(string(status))
	case models.TaskCompleted:
		return color.GreenString(string(status))
	}
	return color.RedString(string(status))
}
