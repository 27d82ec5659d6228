package agent

import (
	"fmt"
	"strings"
)

// Label geometry: 62mm x 29mm stock is 492 x 232 dots at 203 dpi.
const (
	zplLabelWidth  = 492
	zplLabelLength = 232
)

// Character budgets for the fonts used below; longer values run off the
// stock.
const (
	maxNameChars        = 30
	maxCategoryChars    = 25
	maxDescriptionChars = 40
	maxNameListChars    = 45
)

// RenderZPL produces ZPL II markup for a print job. The rendered program
// carries the job's full quantity via ^PQ, so one send prints the whole run.
func RenderZPL(job *PrintJob) ([]byte, error) {
	switch job.LabelType {
	case labelTypeAsset:
		return renderAssetLabel(job), nil
	case labelTypeLocation:
		return renderLocationLabel(job), nil
	default:
		return nil, fmt.Errorf("unknown label type %q", job.LabelType)
	}
}

// renderAssetLabel lays out an asset label: name, category, a Code 128
// barcode with its human-readable line, and a QR code linking back to the
// asset page.
func renderAssetLabel(job *PrintJob) []byte {
	var b strings.Builder

	writeLabelHeader(&b)

	name := truncateRunes(sanitizeField(job.AssetName), maxNameChars)
	fmt.Fprintf(&b, "^FO20,20^A0N,28,28^FD%s^FS\n", name)

	if category := truncateRunes(sanitizeField(job.CategoryName), maxCategoryChars); category != "" {
		fmt.Fprintf(&b, "^FO20,55^A0N,20,20^FD%s^FS\n", category)
	}

	barcode := sanitizeField(job.Barcode)
	fmt.Fprintf(&b, "^FO20,85^BCN,80,Y,N,N^FD%s^FS\n", barcode)
	fmt.Fprintf(&b, "^FO20,195^A0N,22,22^FD%s^FS\n", barcode)

	writeQRBlock(&b, job.QRContent)
	writeLabelFooter(&b, job.Quantity)

	return []byte(b.String())
}

// renderLocationLabel lays out a location label: name, description, and the
// aggregated category and department names of the assets stored there.
func renderLocationLabel(job *PrintJob) []byte {
	var b strings.Builder

	writeLabelHeader(&b)

	name := truncateRunes(sanitizeField(job.LocationName), maxNameChars)
	fmt.Fprintf(&b, "^FO20,20^A0N,28,28^FD%s^FS\n", name)

	if desc := truncateRunes(sanitizeField(job.LocationDescription), maxDescriptionChars); desc != "" {
		fmt.Fprintf(&b, "^FO20,55^A0N,20,20^FD%s^FS\n", desc)
	}

	if categories := joinNames(job.CategoryNames); categories != "" {
		fmt.Fprintf(&b, "^FO20,95^A0N,18,18^FD%s^FS\n", categories)
	}

	if departments := joinNames(job.DepartmentNames); departments != "" {
		fmt.Fprintf(&b, "^FO20,120^A0N,18,18^FD%s^FS\n", departments)
	}

	writeQRBlock(&b, job.QRContent)
	writeLabelFooter(&b, job.Quantity)

	return []byte(b.String())
}

func writeLabelHeader(b *strings.Builder) {
	b.WriteString("^XA\n")
	fmt.Fprintf(b, "^PW%d\n", zplLabelWidth)
	fmt.Fprintf(b, "^LL%d\n", zplLabelLength)
}

func writeQRBlock(b *strings.Builder, content string) {
	if content == "" {
		return
	}
	fmt.Fprintf(b, "^FO396,120^BQN,2,3^FDQA,%s^FS\n", sanitizeField(content))
}

func writeLabelFooter(b *strings.Builder, quantity int) {
	if quantity > 1 {
		fmt.Fprintf(b, "^PQ%d\n", quantity)
	}
	b.WriteString("^XZ\n")
}

// joinNames renders a name list into a single label line.
func joinNames(names []string) string {
	if len(names) == 0 {
		return ""
	}
	joined := sanitizeField(strings.Join(names, ", "))
	return truncateRunes(joined, maxNameListChars)
}

// sanitizeField strips the ZPL control characters ^ and ~ from field data
// and flattens whitespace, so label text can never inject printer commands.
func sanitizeField(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '^', '~':
			return -1
		case '\n', '\r', '\t':
			return ' '
		}
		return r
	}, s)
}

// truncateRunes shortens s to at most max characters. Labels count
// characters, not bytes, so multi-byte names truncate cleanly.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
