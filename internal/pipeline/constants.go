package pipeline

// Defaults for ingestion. Each can be overridden through Options, which the
// commands fill from internal/config.
const (
	// DefaultChunkSize is the number of rows sent per insert call.
	DefaultChunkSize = 500

	// DefaultMaxUploadBytes is the largest accepted upload (25 MiB).
	DefaultMaxUploadBytes int64 = 25 << 20

	// MaxWarnings caps warnings and row errors kept on a result.
	MaxWarnings = 10

	// SuppressedMarker follows the last kept warning once the cap is hit.
	SuppressedMarker = "further errors suppressed"
)

// Accepted upload content types.
const (
	MIMETypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MIMETypeXLSM = "application/vnd.ms-excel.sheet.macroEnabled.12"
	MIMETypeXLS  = "application/vnd.ms-excel"
)

var acceptedMIMETypes = map[string]bool{
	MIMETypeXLSX: true,
	MIMETypeXLSM: true,
	MIMETypeXLS:  true,
}

var acceptedExtensions = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".xls":  true,
}
