package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tubefetch/bot/internal/extract"
	"github.com/tubefetch/bot/internal/logging"
	"github.com/tubefetch/bot/internal/metrics"
	"github.com/tubefetch/bot/internal/models"
	"github.com/tubefetch/bot/internal/ratelimit"
	"github.com/tubefetch/bot/internal/repositories"
	"github.com/tubefetch/bot/internal/session"
	"github.com/tubefetch/bot/internal/storage"
	"github.com/tubefetch/bot/internal/validate"
)

// ErrSizeLimit indicates a fetched file exceeds the configured delivery ceiling.
var ErrSizeLimit = errors.New("file size exceeds the delivery ceiling")

// Downloader fetches media to scratch space and disposes of it afterwards.
type Downloader interface {
	Fetch(ctx context.Context, link, format, quality string) (extract.Result, error)
	Cleanup(path string)
}

// Options carries the policy knobs the orchestrator enforces.
type Options struct {
	Formats        []string
	DefaultQuality string
	MaxFileSize    int64
}

// Orchestrator drives the conversation flow from pasted link to delivered
// media. All chat events funnel through HandleMessage and HandleCallback.
type Orchestrator struct {
	transport Transport
	provider  extract.Provider
	fetcher   Downloader
	users     repositories.UserLedger
	downloads repositories.DownloadLedger
	stats     repositories.StatsLedger
	store     storage.ObjectStore
	sessions  session.Store
	limiter   ratelimit.Limiter
	pool      *Pool
	metrics   *metrics.Metrics
	opts      Options
	logger    *slog.Logger
}

// NewOrchestrator wires the conversation flow together.
func NewOrchestrator(
	transport Transport,
	provider extract.Provider,
	fetcher Downloader,
	users repositories.UserLedger,
	downloads repositories.DownloadLedger,
	stats repositories.StatsLedger,
	store storage.ObjectStore,
	sessions session.Store,
	limiter ratelimit.Limiter,
	pool *Pool,
	m *metrics.Metrics,
	opts Options,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultQuality == "" {
		opts.DefaultQuality = "best"
	}

	return &Orchestrator{
		transport: transport,
		provider:  provider,
		fetcher:   fetcher,
		users:     users,
		downloads: downloads,
		stats:     stats,
		store:     store,
		sessions:  sessions,
		limiter:   limiter,
		pool:      pool,
		metrics:   m,
		opts:      opts,
		logger:    logger,
	}
}

const (
	callbackCancel        = "cancel"
	callbackFormatPrefix  = "format_"
	callbackQualityPrefix = "quality_"
)

// HandleMessage processes one inbound text message.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg Message) {
	ctx = logging.ForEvent(ctx, o.logger, "message", msg.From.ID)
	log := logging.FromContext(ctx)

	text := strings.TrimSpace(msg.Text)
	switch {
	case strings.HasPrefix(text, "/"):
		o.handleCommand(ctx, msg, text)
	case validate.IsSupportedLink(text):
		o.handleLink(ctx, msg, text)
	default:
		log.Debug("unsupported input", "chatId", msg.ChatID)
		o.send(ctx, msg.ChatID, "Please send a valid YouTube link, or /help for the command list.")
	}
}

func (o *Orchestrator) handleCommand(ctx context.Context, msg Message, text string) {
	command := strings.Fields(text)[0]
	switch command {
	case "/start":
		o.handleStart(ctx, msg)
	case "/help":
		o.send(ctx, msg.ChatID, helpText(o.opts.Formats))
	case "/stats":
		o.handleStats(ctx, msg)
	case "/status":
		o.handleStatus(ctx, msg)
	default:
		o.send(ctx, msg.ChatID, "Unknown command. Try /help.")
	}
}

func (o *Orchestrator) handleStart(ctx context.Context, msg Message) {
	if _, err := o.upsertUser(ctx, msg.From); err != nil {
		logging.FromContext(ctx).Error("register user", "error", err)
	}

	greeting := fmt.Sprintf(
		"Hi %s! Send me a YouTube link and I will fetch it for you.\n\nSupported formats: %s.",
		displayName(msg.From), strings.Join(o.opts.Formats, ", "))
	o.send(ctx, msg.ChatID, greeting)
}

func (o *Orchestrator) handleStats(ctx context.Context, msg Message) {
	log := logging.FromContext(ctx)

	user, err := o.users.FindByChatID(ctx, msg.From.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			o.send(ctx, msg.ChatID, "No downloads yet. Send me a YouTube link to get started.")
			return
		}
		log.Error("find user", "error", err)
		o.send(ctx, msg.ChatID, "Could not load your stats right now.")
		return
	}

	completed, err := o.downloads.CountCompleted(ctx, user.ID)
	if err != nil {
		log.Error("count completed", "userId", user.ID, "error", err)
		o.send(ctx, msg.ChatID, "Could not load your stats right now.")
		return
	}

	stats, err := o.stats.ForUser(ctx, user.ID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		log.Error("load stats", "userId", user.ID, "error", err)
	}

	recent, err := o.downloads.ListRecent(ctx, user.ID, 5)
	if err != nil {
		log.Error("list recent", "userId", user.ID, "error", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your downloads: %d completed, %s delivered in total.",
		completed, validate.FormatSize(stats.TotalBytes))
	if len(recent) > 0 {
		b.WriteString("\n\nRecent:\n")
		for _, r := range recent {
			fmt.Fprintf(&b, "- %s %s\n", titleOrLink(r), r.Status)
		}
	}
	o.send(ctx, msg.ChatID, b.String())
}

func (o *Orchestrator) handleStatus(ctx context.Context, msg Message) {
	log := logging.FromContext(ctx)

	user, err := o.users.FindByChatID(ctx, msg.From.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			o.send(ctx, msg.ChatID, "No downloads yet.")
			return
		}
		log.Error("find user", "error", err)
		o.send(ctx, msg.ChatID, "Could not load your downloads right now.")
		return
	}

	active, err := o.downloads.ListActive(ctx, user.ID)
	if err != nil {
		log.Error("list active", "userId", user.ID, "error", err)
		o.send(ctx, msg.ChatID, "Could not load your downloads right now.")
		return
	}

	if len(active) == 0 {
		o.send(ctx, msg.ChatID, "No active downloads.")
		return
	}

	var b strings.Builder
	b.WriteString("Active downloads:\n")
	for _, r := range active {
		fmt.Fprintf(&b, "- %s (%s, %s) %s\n", titleOrLink(r), r.Format, r.Quality, r.Status)
	}
	o.send(ctx, msg.ChatID, b.String())
}

// handleLink starts a new wizard. A fresh valid link always replaces whatever
// selection was in progress for the user.
func (o *Orchestrator) handleLink(ctx context.Context, msg Message, link string) {
	log := logging.FromContext(ctx)

	if _, err := o.upsertUser(ctx, msg.From); err != nil {
		log.Error("register user", "error", err)
		o.send(ctx, msg.ChatID, "Something went wrong. Please try again.")
		return
	}

	if !o.limiter.Allow(msg.From.ID) {
		log.Warn("rate limited", "chatId", msg.ChatID)
		o.send(ctx, msg.ChatID, "You are sending requests too quickly. Please wait a moment and try again.")
		return
	}

	userID := msg.From.ID
	o.sessions.Update(userID, func(s *session.Session) {
		*s = session.Session{Link: link, Step: session.StepAwaitingFormat}
	})

	job := func(context.Context) {
		jobCtx := logging.WithLogger(context.Background(), log)

		meta, err := o.provider.Lookup(jobCtx, link)
		if err != nil {
			// A failed lookup never blocks the wizard; fall back to placeholders.
			log.Warn("metadata lookup failed", "link", link, "error", err)
			meta = extract.Placeholder()
		}

		o.sessions.Update(userID, func(s *session.Session) {
			if s.Link == link {
				s.Meta = meta
			}
		})

		prompt := fmt.Sprintf("%s (%s)\n\nChoose a format:", meta.Title, validate.FormatDuration(meta.Duration))
		if err := o.transport.SendMenu(jobCtx, msg.ChatID, prompt, o.formatMenu()); err != nil {
			log.Error("send format menu", "chatId", msg.ChatID, "error", err)
		}
	}

	if err := o.pool.Submit(ctx, job); err != nil {
		log.Error("submit lookup", "error", err)
		o.send(ctx, msg.ChatID, "The service is shutting down. Please try again later.")
	}
}

// HandleCallback processes one inline button press.
func (o *Orchestrator) HandleCallback(ctx context.Context, cb Callback) {
	ctx = logging.ForEvent(ctx, o.logger, "callback", cb.From.ID)

	switch {
	case cb.Data == callbackCancel:
		o.handleCancel(ctx, cb)
	case strings.HasPrefix(cb.Data, callbackFormatPrefix):
		o.handleFormatChoice(ctx, cb, strings.TrimPrefix(cb.Data, callbackFormatPrefix))
	case strings.HasPrefix(cb.Data, callbackQualityPrefix):
		o.handleQualityChoice(ctx, cb, strings.TrimPrefix(cb.Data, callbackQualityPrefix))
	default:
		logging.FromContext(ctx).Debug("unknown callback", "data", cb.Data)
	}
}

// handleCancel drops the wizard state. If a fetch is already running its
// completion path notices the missing session and discards the file.
func (o *Orchestrator) handleCancel(ctx context.Context, cb Callback) {
	o.sessions.Clear(cb.From.ID)
	o.send(ctx, cb.ChatID, "Canceled.")
}

func (o *Orchestrator) handleFormatChoice(ctx context.Context, cb Callback, format string) {
	log := logging.FromContext(ctx)

	sess, ok := o.sessions.Get(cb.From.ID)
	if !ok || sess.Step != session.StepAwaitingFormat {
		o.send(ctx, cb.ChatID, "That selection has expired. Please send the link again.")
		return
	}
	if !o.supportsFormat(format) {
		log.Warn("unsupported format requested", "format", format)
		o.send(ctx, cb.ChatID, "That format is not available.")
		return
	}

	o.sessions.Update(cb.From.ID, func(s *session.Session) {
		s.Format = format
		s.Step = session.StepAwaitingQuality
	})

	if err := o.transport.SendMenu(ctx, cb.ChatID, "Choose a quality:", qualityMenu()); err != nil {
		log.Error("send quality menu", "chatId", cb.ChatID, "error", err)
	}
}

func (o *Orchestrator) handleQualityChoice(ctx context.Context, cb Callback, quality string) {
	log := logging.FromContext(ctx)

	sess, ok := o.sessions.Get(cb.From.ID)
	if !ok || sess.Step != session.StepAwaitingQuality || sess.Format == "" {
		o.send(ctx, cb.ChatID, "That selection has expired. Please send the link again.")
		return
	}

	switch quality {
	case "best", "hd", "medium":
	default:
		quality = o.opts.DefaultQuality
	}

	user, err := o.users.FindByChatID(ctx, cb.From.ID)
	if err != nil {
		log.Error("find user", "error", err)
		o.send(ctx, cb.ChatID, "Something went wrong. Please send the link again.")
		return
	}

	requestID := uuid.New().String()
	request := models.DownloadRequest{
		ID:        requestID,
		UserID:    user.ID,
		SourceURL: sess.Link,
		Title:     sess.Meta.Title,
		Duration:  sess.Meta.Duration,
		Format:    sess.Format,
		Quality:   quality,
		Status:    models.StatusPending,
	}
	if err := o.downloads.Create(ctx, request); err != nil {
		log.Error("create download request", "error", err)
		o.send(ctx, cb.ChatID, "Something went wrong. Please send the link again.")
		return
	}

	o.sessions.Update(cb.From.ID, func(s *session.Session) {
		s.Quality = quality
		s.RequestID = requestID
		s.Step = session.StepFetching
	})

	if err := o.downloads.MarkProcessing(ctx, requestID); err != nil {
		log.Error("mark processing", "requestId", requestID, "error", err)
	}
	if o.metrics != nil {
		o.metrics.DownloadsStarted.Inc()
	}

	o.send(ctx, cb.ChatID, fmt.Sprintf("Downloading %s...", titleOrDefault(sess.Meta.Title)))

	userID := cb.From.ID
	chatID := cb.ChatID
	snapshot := sess
	snapshot.Quality = quality
	snapshot.RequestID = requestID

	ledgerUserID := user.ID
	job := func(context.Context) {
		jobCtx := logging.WithLogger(context.Background(), log)
		o.runFetch(jobCtx, userID, chatID, ledgerUserID, snapshot)
	}
	if err := o.pool.Submit(ctx, job); err != nil {
		log.Error("submit fetch", "requestId", requestID, "error", err)
		o.failRequest(ctx, requestID, "service shutting down")
		o.sessions.Clear(userID)
		o.send(ctx, chatID, "The service is shutting down. Please try again later.")
	}
}

// runFetch executes the fetch-and-deliver pipeline for one accepted request.
func (o *Orchestrator) runFetch(ctx context.Context, userID, chatID int64, ledgerUserID string, sess session.Session) {
	log := logging.FromContext(ctx)
	requestID := sess.RequestID

	result, err := o.fetcher.Fetch(ctx, sess.Link, sess.Format, sess.Quality)
	if err != nil {
		log.Error("fetch failed", "requestId", requestID, "link", sess.Link, "error", err)
		o.failRequest(ctx, requestID, err.Error())
		o.clearIfCurrent(userID, requestID)
		o.send(ctx, chatID, "Download failed. The video may be unavailable or restricted.")
		return
	}

	// A cancel or a newer link may have replaced the session while the fetch
	// ran. The finished file is discarded rather than delivered stale.
	current, ok := o.sessions.Get(userID)
	if !ok || current.RequestID != requestID {
		log.Info("discarding canceled fetch", "requestId", requestID)
		o.fetcher.Cleanup(result.Path)
		o.failRequest(ctx, requestID, "canceled by user")
		return
	}

	if o.opts.MaxFileSize > 0 && result.Size > o.opts.MaxFileSize {
		sizeErr := fmt.Errorf("%w: %s over %s", ErrSizeLimit,
			validate.FormatSize(result.Size), validate.FormatSize(o.opts.MaxFileSize))
		log.Warn("oversized download rejected", "requestId", requestID, "size", result.Size, "error", sizeErr)
		o.fetcher.Cleanup(result.Path)
		o.failRequest(ctx, requestID, sizeErr.Error())
		o.sessions.Clear(userID)
		o.send(ctx, chatID, fmt.Sprintf("Sorry, that file is %s which is over the %s limit.",
			validate.FormatSize(result.Size), validate.FormatSize(o.opts.MaxFileSize)))
		return
	}

	title := result.Title
	if title == "" {
		title = sess.Meta.Title
	}
	title = titleOrDefault(title)

	objectName := requestID + "_" + validate.SanitizeFilename(title) + filepath.Ext(result.Path)
	handle, err := o.store.Put(ctx, result.Path, objectName)
	if err != nil {
		log.Error("store media", "requestId", requestID, "error", err)
		o.fetcher.Cleanup(result.Path)
		o.failRequest(ctx, requestID, fmt.Sprintf("store media: %v", err))
		o.sessions.Clear(userID)
		o.send(ctx, chatID, "Download failed while saving the file. Please try again.")
		return
	}

	// Ledger and stats errors after a successful store are logged but do not
	// block delivery.
	if err := o.downloads.MarkCompleted(ctx, requestID, objectName, handle, result.Size); err != nil {
		log.Error("mark completed", "requestId", requestID, "error", err)
	}
	if err := o.stats.RecordDownload(ctx, ledgerUserID, result.Size); err != nil {
		log.Error("record stats", "requestId", requestID, "error", err)
	}
	if o.metrics != nil {
		o.metrics.DownloadsCompleted.Inc()
		o.metrics.BytesDelivered.Add(float64(result.Size))
	}

	if err := o.deliver(ctx, chatID, title, sess, result); err != nil {
		log.Error("delivery failed", "requestId", requestID, "error", err)
		o.send(ctx, chatID, "The download finished but the file could not be sent. Please try again.")
	} else {
		log.Info("download delivered", "requestId", requestID, "size", result.Size, "format", sess.Format)
	}

	o.fetcher.Cleanup(result.Path)
	o.sessions.Clear(userID)
}

func (o *Orchestrator) deliver(ctx context.Context, chatID int64, title string, sess session.Session, result extract.Result) error {
	if sess.Format == "mp3" {
		if result.Substituted {
			o.send(ctx, chatID, "Audio conversion is unavailable right now, sending the best raw audio stream instead.")
		}
		audio := Audio{
			Path:      result.Path,
			Title:     title,
			Performer: sess.Meta.Uploader,
			Duration:  result.Duration,
		}
		if err := o.transport.SendAudio(ctx, chatID, audio); err != nil {
			return fmt.Errorf("send audio: %w", err)
		}
		return nil
	}

	caption := fmt.Sprintf("%s\n%s %s, %s",
		title, strings.ToUpper(sess.Format), qualityLabel(sess.Quality), validate.FormatSize(result.Size))
	if err := o.transport.SendVideo(ctx, chatID, Video{Path: result.Path, Caption: caption}); err != nil {
		return fmt.Errorf("send video: %w", err)
	}
	return nil
}

// upsertUser registers the sender. Ledger rows are keyed by the sender's
// platform user id, not the chat the message arrived in, so group chats do not
// pool everyone's downloads under one record.
func (o *Orchestrator) upsertUser(ctx context.Context, from UserInfo) (models.User, error) {
	return o.users.Upsert(ctx, models.User{
		ChatID:    from.ID,
		Username:  from.Username,
		FirstName: from.FirstName,
		LastName:  from.LastName,
		IsActive:  true,
	})
}

func (o *Orchestrator) failRequest(ctx context.Context, requestID, detail string) {
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := o.downloads.MarkFailed(failCtx, requestID, detail); err != nil {
		logging.FromContext(ctx).Error("mark failed", "requestId", requestID, "error", err)
	}
	if o.metrics != nil {
		o.metrics.DownloadsFailed.Inc()
	}
}

func (o *Orchestrator) clearIfCurrent(userID int64, requestID string) {
	if sess, ok := o.sessions.Get(userID); ok && sess.RequestID == requestID {
		o.sessions.Clear(userID)
	}
}

func (o *Orchestrator) send(ctx context.Context, chatID int64, text string) {
	if err := o.transport.SendText(ctx, chatID, text); err != nil {
		logging.FromContext(ctx).Error("send text", "chatId", chatID, "error", err)
	}
}

func (o *Orchestrator) supportsFormat(format string) bool {
	for _, f := range o.opts.Formats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *Orchestrator) formatMenu() [][]Button {
	row := make([]Button, 0, len(o.opts.Formats))
	for _, f := range o.opts.Formats {
		row = append(row, Button{Label: strings.ToUpper(f), Data: callbackFormatPrefix + f})
	}
	return [][]Button{row, {{Label: "Cancel", Data: callbackCancel}}}
}

func qualityMenu() [][]Button {
	return [][]Button{
		{
			{Label: "Best", Data: callbackQualityPrefix + "best"},
			{Label: "HD (720p)", Data: callbackQualityPrefix + "hd"},
			{Label: "Medium (480p)", Data: callbackQualityPrefix + "medium"},
		},
		{{Label: "Cancel", Data: callbackCancel}},
	}
}

func qualityLabel(quality string) string {
	switch quality {
	case "hd":
		return "720p"
	case "medium":
		return "480p"
	default:
		return "best"
	}
}

func helpText(formats []string) string {
	return fmt.Sprintf(`Send me a YouTube link and pick a format and quality from the menus.

Commands:
/start - introduction
/help - this message
/stats - your download totals
/status - active and recent downloads

Supported formats: %s.`, strings.Join(formats, ", "))
}

func displayName(from UserInfo) string {
	if from.FirstName != "" {
		return from.FirstName
	}
	if from.Username != "" {
		return from.Username
	}
	return "there"
}

func titleOrDefault(title string) string {
	if strings.TrimSpace(title) == "" {
		return "unknown title"
	}
	return title
}

func titleOrLink(r models.DownloadRequest) string {
	if r.Title != "" {
		return r.Title
	}
	return r.SourceURL
}
