package main

import (
	"fmt"
	"strings"

	"deepreport/internal/types"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	nodeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	stepStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	stateStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

func renderMarkdown(md string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}

// formatEvent renders one progress event as a single terminal line.
func formatEvent(ev types.ProgressEvent) string {
	ts := ev.Timestamp.Format("15:04:05")
	switch ev.Type {
	case types.EventNodeStart:
		line := "▶ " + ev.Node
		if ev.Message != "" {
			line += "  " + ev.Message
		}
		return ts + " " + nodeStyle.Render(line)
	case types.EventNodeEnd:
		return ts + " " + stepStyle.Render("✓ "+ev.Node)
	case types.EventStepProgress:
		return ts + " " + stepStyle.Render(fmt.Sprintf("  [%d/%d] %s", ev.Step, ev.Total, ev.Message))
	case types.EventStateUpdate:
		sum, ok := ev.Payload.(types.StateSummary)
		if !ok {
			return ts + " " + stateStyle.Render("  state updated")
		}
		line := fmt.Sprintf("  sections %d/%d written", sum.Written, sum.TotalSections)
		if sum.CurrentTitle != "" && !sum.Complete {
			line += fmt.Sprintf(", next: %s", sum.CurrentTitle)
		}
		if sum.EvidenceCount > 0 {
			line += fmt.Sprintf(", %d evidence items", sum.EvidenceCount)
		}
		return ts + " " + stateStyle.Render(line)
	case types.EventComplete:
		return ts + " " + doneStyle.Render("● "+nonEmpty(ev.Message, "complete"))
	case types.EventError:
		return ts + " " + errorStyle.Render("✗ "+nonEmpty(ev.Message, "error"))
	default:
		return ts + " " + strings.TrimSpace(string(ev.Type)+" "+ev.Message)
	}
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
