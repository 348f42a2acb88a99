package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/endpoint"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/relay"
)

var (
	colorPrimary = lipgloss.Color("#22d3ee")
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")
	colorMuted   = lipgloss.Color("#6B7280")
)

var (
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	boldStyle    = lipgloss.NewStyle().Bold(true)

	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Align(lipgloss.Center)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	tableRowStyle    = tableCellStyle.Foreground(lipgloss.Color("255"))
	tableRowAltStyle = tableCellStyle.Foreground(lipgloss.Color("245"))
)

func printError(msg string) {
	fmt.Println(errorStyle.Render("error:"), errorStyle.Render(msg))
}

func printInfo(msg string) {
	fmt.Println(mutedStyle.Render("•"), msg)
}

// statusStyle colours the endpoint status line by how the call is going.
func statusStyle(status string) lipgloss.Style {
	switch status {
	case endpoint.StatusConnected:
		return successStyle
	case endpoint.StatusMediaFailed, endpoint.StatusNegotiationFailed:
		return errorStyle
	case endpoint.StatusPeerDisconnected, endpoint.StatusSignalingLost:
		return warningStyle
	default:
		return mutedStyle
	}
}

func statusLine(roomID, status string) string {
	return fmt.Sprintf("%s %s", boldStyle.Render("["+roomID+"]"), statusStyle(status).Render(status))
}

func roomsTableView(rooms []relay.RoomInfo) string {
	if len(rooms) == 0 {
		return mutedStyle.Render("No active rooms")
	}

	rows := make([][]string, 0, len(rooms))
	for _, r := range rooms {
		rows = append(rows, []string{r.ID, strconv.Itoa(r.Members)})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorPrimary)).
		Headers("Room", "Members").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return tableHeaderStyle
			case row%2 == 0:
				return tableRowStyle
			default:
				return tableRowAltStyle
			}
		}).
		Render()
}
