package style

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func NewDefaultTableStyle() *table.Style {
	style := table.Style{
		Name:    "StyleRounded",
		Box:     table.StyleBoxRounded,
		Format:  table.FormatOptionsDefault,
		HTML:    table.DefaultHTMLOptions,
		Options: table.OptionsDefault,
		Title:   table.TitleOptionsDefault,
		Color:   table.ColorOptionsYellowWhiteOnBlack,
	}
	style.Color.Row = text.Colors{text.FgHiYellow, text.BgHiBlack}
	style.Color.RowAlternate = text.Colors{text.FgYellow, text.BgBlack}
	return &style
}

// NewPlainTableStyle is the rounded box without colors, used when the output
// is not a terminal.
func NewPlainTableStyle() *table.Style {
	style := table.StyleRounded
	style.Color = table.ColorOptionsDefault
	return &style
}

// NewTableWriter returns a table writer with the parameter columns right
// aligned.
func NewTableWriter(style *table.Style, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetStyle(*style)
	t.AppendHeader(header)

	var configs []table.ColumnConfig
	for i := range header {
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: text.AlignRight})
	}
	t.SetColumnConfigs(configs)
	return t
}
