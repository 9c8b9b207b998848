package export

import "errors"

// Sentinel errors surfaced by the export pipeline. Handlers match on these
// with errors.Is to decide how to report the failure.
var (
	ErrNothingToExport = errors.New("nothing to export")
	ErrBrowserConnect  = errors.New("browser connect failed")
	ErrPageCreate      = errors.New("page create failed")
	ErrPageLoad        = errors.New("page load failed")
	ErrCapture         = errors.New("pdf capture failed")
)
