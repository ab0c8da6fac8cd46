package extract

import "context"

// Metadata captures the fixed set of video details used across the wizard.
// It is validated at the extraction boundary; nothing downstream sees the raw
// yt-dlp payload.
type Metadata struct {
	Title      string
	Duration   int
	Uploader   string
	ViewCount  int64
	Thumbnail  string
	RawFormats []Format
}

// Format describes one downloadable stream reported by the extraction engine.
type Format struct {
	ID       string
	Ext      string
	Note     string
	Height   int
	Filesize int64
}

// Placeholder is substituted when the metadata lookup fails; the selection flow
// must never be blocked by a lookup failure.
func Placeholder() Metadata {
	return Metadata{
		Title:    "unknown title",
		Duration: 0,
		Uploader: "unknown",
	}
}

// Provider returns metadata for the supplied video link without downloading media.
type Provider interface {
	Lookup(ctx context.Context, link string) (Metadata, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, link string) (Metadata, error)

// Lookup implements Provider.
func (f ProviderFunc) Lookup(ctx context.Context, link string) (Metadata, error) {
	return f(ctx, link)
}

// Result describes the outcome of a media fetch.
type Result struct {
	Path     string
	Size     int64
	Title    string
	Duration int
	Format   string
	Quality  string
	// Substituted is set when an audio request was delivered as the best raw
	// audio stream because the conversion toolchain was unavailable.
	Substituted bool
}
