package constants

import "strings"

// DocumentFormat classifies an incoming document for the planner.
type DocumentFormat string

const (
	FormatExcel DocumentFormat = "EXCEL"
	FormatPDF   DocumentFormat = "PDF"
	FormatImage DocumentFormat = "IMAGE"
	FormatText  DocumentFormat = "TEXT"
)

var extToFormat = map[string]DocumentFormat{
	"xlsx": FormatExcel,
	"xls":  FormatExcel,
	"xlsm": FormatExcel,
	"pdf":  FormatPDF,
	"jpg":  FormatImage,
	"jpeg": FormatImage,
	"png":  FormatImage,
	"txt":  FormatText,
	"csv":  FormatText,
	"eml":  FormatText,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat resolves a file extension to a DocumentFormat.
// Unknown extensions fall back to TEXT: the interpretation service copes
// with free text better than with a rejected document.
func MapExtToFormat(ext string) DocumentFormat {
	if f, ok := extToFormat[NormalizeExt(ext)]; ok {
		return f
	}
	return FormatText
}
