package printservice

import (
	"strings"

	"github.com/realworldtech/props-print-service/internal/models"
)

// maxAssetNameLength bounds the asset name on a label; anything longer will
// not fit the 62x29mm stock the stations print on.
const maxAssetNameLength = 30

func buildAssetJob(req *models.PrintRequest, asset *models.Asset, siteURL string) PrintJobMessage {
	return PrintJobMessage{
		Type:           MessageTypePrintJob,
		JobID:          req.JobID.String(),
		PrinterID:      req.PrinterID,
		LabelType:      string(models.LabelTypeAsset),
		Quantity:       req.Quantity,
		Barcode:        asset.Barcode,
		AssetName:      truncate(asset.Name, maxAssetNameLength),
		CategoryName:   asset.CategoryName,
		DepartmentName: asset.DepartmentName,
		QRContent:      assetQRContent(siteURL, asset.Barcode),
	}
}

func buildLocationJob(req *models.PrintRequest, location *models.Location, categories, departments []string, siteURL string) PrintJobMessage {
	return PrintJobMessage{
		Type:                MessageTypePrintJob,
		JobID:               req.JobID.String(),
		PrinterID:           req.PrinterID,
		LabelType:           string(models.LabelTypeLocation),
		Quantity:            req.Quantity,
		LocationName:        location.Name,
		LocationDescription: location.Description,
		CategoryNames:       categories,
		DepartmentNames:     departments,
		QRContent:           locationQRContent(siteURL, location),
	}
}

// assetQRContent builds the fully qualified URL behind an asset label's QR
// code: <site>/a/<barcode>/, the short-link form scanners resolve.
func assetQRContent(siteURL, barcode string) string {
	return strings.TrimRight(siteURL, "/") + "/a/" + barcode + "/"
}

// locationQRContent builds the QR target for a location label, pointing at
// the location's detail page.
func locationQRContent(siteURL string, location *models.Location) string {
	return strings.TrimRight(siteURL, "/") + "/locations/" + location.ID.String() + "/"
}

// truncate shortens s to at most max characters. Labels count characters,
// not bytes, so multi-byte names truncate cleanly.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
