package ui

import (
	"fmt"
	"strings"

	"github.com/Candyboy02/bridge-link/internal/transfer"
	"github.com/Candyboy02/bridge-link/internal/utils"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// FileTableItem represents a file in the table
type FileTableItem struct {
	Index int
	Name  string
	Size  int64
	Type  string
}

// FileTableView renders the files queued for sending.
func FileTableView(items []FileTableItem) string {
	if len(items) == 0 {
		return MutedStyle.Render("No files")
	}

	var rows [][]string
	for _, item := range items {
		rows = append(rows, []string{
			fmt.Sprintf("%d", item.Index),
			truncate(item.Name, 50),
			utils.FormatSize(item.Size),
			truncate(item.Type, 24),
		})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("#", "Name", "Size", "Type").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

// TransferSummaryView renders the end-of-session table of transfers.
func TransferSummaryView(records []TransferRecord) string {
	t := prettytable.NewWriter()
	t.SetStyle(prettytable.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.SetTitle("Transfer Summary")
	t.AppendHeader(prettytable.Row{"#", "", "Name", "Size", "Duration", "Speed", "Status"})

	var sent, received int64
	for i, r := range records {
		dir := IconSend
		if r.Direction == transfer.Inbound {
			dir = IconReceive
		}

		status := "✅ Complete"
		duration, speed := "-", "-"
		switch {
		case r.Err != "":
			status = "❌ " + r.Err
		case !r.Done():
			status = "⏳ Unfinished"
		default:
			d := r.Finished.Sub(r.Started)
			duration = utils.FormatTimeDuration(d)
			if secs := d.Seconds(); secs > 0 {
				speed = utils.FormatSpeed(float64(r.Size) / secs)
			}
			if r.Direction == transfer.Inbound {
				received += r.Size
			} else {
				sent += r.Size
			}
		}

		t.AppendRow(prettytable.Row{i + 1, dir, truncate(r.Name, 40), utils.FormatSize(r.Size), duration, speed, status})
	}

	t.AppendFooter(prettytable.Row{"", "", "Total", "", "", "",
		fmt.Sprintf("sent %s, received %s", utils.FormatSize(sent), utils.FormatSize(received))})
	t.SetColumnConfigs([]prettytable.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	return t.Render()
}

// RenderTransferSummary prints the summary unless nothing was transferred.
func RenderTransferSummary(records []TransferRecord) {
	if len(records) == 0 {
		return
	}
	fmt.Println()
	fmt.Println(TransferSummaryView(records))
}

// RoomInfoView renders the box shown after a room is created.
func RoomInfoView(roomID, link string) string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(Success).
		Padding(1, 2)

	content := fmt.Sprintf("%s Room Created!\n\n%s Room code:  %s\n%s Join link:  %s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(roomID),
		IconWeb, MutedStyle.Render(link),
	)
	return boxStyle.Render(content)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return strings.TrimSpace(string(r[:maxLen-3])) + "..."
}
