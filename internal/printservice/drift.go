package printservice

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/realworldtech/props-print-service/internal/models"
)

// printerDrift renders a unified diff between the printer inventory a client
// declared last time and what it declares now. Returns "" when nothing
// changed. The diff goes to the log so operators can see a station silently
// losing or renaming printers across reconnects.
func printerDrift(previous, current []models.Printer) string {
	oldLines := printerLines(previous)
	newLines := printerLines(current)

	diff := difflib.UnifiedDiff{
		A:        oldLines,
		B:        newLines,
		FromFile: "printers/previous",
		ToFile:   "printers/current",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return text
}

// printerLines renders printers one per line in a stable order so the diff
// reflects real changes, not declaration order.
func printerLines(printers []models.Printer) []string {
	lines := make([]string, 0, len(printers))
	for _, p := range printers {
		lines = append(lines, fmt.Sprintf("%s name=%q type=%s status=%s templates=%s\n",
			p.ID, p.Name, p.Type, p.Status, strings.Join(p.Templates, ",")))
	}
	sort.Strings(lines)
	return lines
}
