package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CommandRunner executes external commands and returns stdout bytes.
type CommandRunner func(ctx context.Context, binary string, args ...string) ([]byte, error)

// Client drives the yt-dlp CLI for metadata lookups and media fetches.
type Client struct {
	Binary     string
	ScratchDir string
	Run        CommandRunner
	Timeout    time.Duration
	// HasFFmpeg gates audio post-processing. Detected from PATH at construction
	// and overridable in tests.
	HasFFmpeg bool
}

// NewClient constructs a Client that shells out to yt-dlp, writing fetched media
// under scratchDir.
func NewClient(binary, scratchDir string, timeout time.Duration) *Client {
	if strings.TrimSpace(binary) == "" {
		binary = "yt-dlp"
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	_, ffmpegErr := exec.LookPath("ffmpeg")

	return &Client{
		Binary:     binary,
		ScratchDir: scratchDir,
		Run:        defaultCommandRunner,
		Timeout:    timeout,
		HasFFmpeg:  ffmpegErr == nil,
	}
}

// ytdlpInfo is the subset of the yt-dlp JSON payload the service consumes.
type ytdlpInfo struct {
	Title     string  `json:"title"`
	Duration  float64 `json:"duration"`
	Uploader  string  `json:"uploader"`
	ViewCount int64   `json:"view_count"`
	Thumbnail string  `json:"thumbnail"`
	Formats   []struct {
		FormatID   string  `json:"format_id"`
		Ext        string  `json:"ext"`
		FormatNote string  `json:"format_note"`
		Height     int     `json:"height"`
		Filesize   int64   `json:"filesize"`
		VCodec     string  `json:"vcodec"`
		ACodec     string  `json:"acodec"`
		TBR        float64 `json:"tbr"`
	} `json:"formats"`
}

// Lookup fetches video metadata without downloading media.
func (c *Client) Lookup(ctx context.Context, link string) (Metadata, error) {
	if c == nil {
		return Metadata{}, ErrClientUnavailable
	}
	if c.Run == nil {
		c.Run = defaultCommandRunner
	}

	execCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	out, err := c.Run(execCtx, c.Binary,
		"--dump-single-json", "--no-warnings", "--no-playlist", "--skip-download", link)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: yt-dlp lookup: %v", ErrExtraction, err)
	}

	var info ytdlpInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return Metadata{}, fmt.Errorf("%w: parse yt-dlp response: %v", ErrExtraction, err)
	}
	if info.Title == "" {
		return Metadata{}, fmt.Errorf("%w: empty metadata", ErrExtraction)
	}

	meta := Metadata{
		Title:     info.Title,
		Duration:  int(info.Duration),
		Uploader:  info.Uploader,
		ViewCount: info.ViewCount,
		Thumbnail: info.Thumbnail,
	}
	for _, f := range info.Formats {
		meta.RawFormats = append(meta.RawFormats, Format{
			ID:       f.FormatID,
			Ext:      f.Ext,
			Note:     f.FormatNote,
			Height:   f.Height,
			Filesize: f.Filesize,
		})
	}

	return meta, nil
}

// formatSelector maps the wizard's quality choice onto a yt-dlp format spec for
// the requested container. Unrecognized qualities fall back to best.
func formatSelector(format, quality string) string {
	switch quality {
	case "hd":
		return fmt.Sprintf("best[height<=720][ext=%s]/best[height<=720]", format)
	case "medium":
		return fmt.Sprintf("best[height<=480][ext=%s]/best[height<=480]", format)
	default:
		return fmt.Sprintf("best[ext=%s]/best", format)
	}
}

// Fetch downloads the media for link into the scratch directory and returns the
// produced file. Exactly one file is written, named with a generated identifier
// so concurrent fetches never collide.
func (c *Client) Fetch(ctx context.Context, link, format, quality string) (Result, error) {
	if c == nil {
		return Result{}, ErrClientUnavailable
	}
	if c.Run == nil {
		c.Run = defaultCommandRunner
	}

	if err := os.MkdirAll(c.ScratchDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("%w: create scratch dir: %v", ErrDownload, err)
	}

	id := uuid.New().String()
	// %(ext)s lets yt-dlp pick the final extension; audio extraction rewrites it.
	template := filepath.Join(c.ScratchDir, id+".%(ext)s")

	args := []string{"--no-warnings", "--no-playlist", "--print-json", "-o", template}
	substituted := false

	if format == "mp3" {
		if c.HasFFmpeg {
			args = append(args, "-f", "bestaudio/best", "-x", "--audio-format", "mp3", "--audio-quality", "192K")
		} else {
			args = append(args, "-f", "bestaudio")
			substituted = true
		}
	} else {
		args = append(args, "-f", formatSelector(format, quality))
	}
	args = append(args, link)

	execCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	out, err := c.Run(execCtx, c.Binary, args...)
	if err != nil {
		return Result{}, fmt.Errorf("%w: yt-dlp fetch: %v", ErrDownload, err)
	}

	path, err := c.locateOutput(id)
	if err != nil {
		return Result{}, err
	}

	stat, err := os.Stat(path)
	if err != nil {
		return Result{}, fmt.Errorf("%w: stat output: %v", ErrDownload, err)
	}

	result := Result{
		Path:        path,
		Size:        stat.Size(),
		Format:      format,
		Quality:     quality,
		Substituted: substituted,
	}

	var info ytdlpInfo
	if json.Unmarshal(out, &info) == nil {
		result.Title = info.Title
		result.Duration = int(info.Duration)
	}

	return result, nil
}

// locateOutput finds the single file produced for the generated identifier.
// Audio extraction may change the extension, so the id is matched by prefix.
func (c *Client) locateOutput(id string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(c.ScratchDir, id+".*"))
	if err != nil {
		return "", fmt.Errorf("%w: locate output: %v", ErrDownload, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: no output file produced", ErrDownload)
	}

	// Intermediate containers may linger next to the post-processed file; prefer
	// the newest entry.
	newest := matches[0]
	var newestMod time.Time
	for _, m := range matches {
		stat, err := os.Stat(m)
		if err != nil {
			continue
		}
		if stat.ModTime().After(newestMod) {
			newest = m
			newestMod = stat.ModTime()
		}
	}
	return newest, nil
}

// Cleanup removes the fetched file if present. It is idempotent and never
// reports an error.
func (c *Client) Cleanup(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

func defaultCommandRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	return cmd.Output()
}
