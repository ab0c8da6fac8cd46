package extract

import "errors"

var (
	// ErrExtraction indicates a metadata lookup failed. Callers substitute
	// placeholder metadata rather than aborting the flow.
	ErrExtraction = errors.New("metadata extraction failed")
	// ErrDownload indicates a media fetch failed or produced no usable file.
	ErrDownload = errors.New("media download failed")
	// ErrClientUnavailable indicates the extraction client is not configured.
	ErrClientUnavailable = errors.New("extraction client unavailable")
)
