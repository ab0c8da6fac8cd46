package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tubefetch/bot/internal/extract"
	"github.com/tubefetch/bot/internal/metrics"
	"github.com/tubefetch/bot/internal/models"
	"github.com/tubefetch/bot/internal/repositories"
	"github.com/tubefetch/bot/internal/session"
	"github.com/tubefetch/bot/internal/storage"
)

const testLink = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

type transportStub struct {
	mu       sync.Mutex
	texts    []string
	menus    []string
	audios   []Audio
	videos   []Video
	videoErr error
	audioErr error
}

func (t *transportStub) SendText(ctx context.Context, chatID int64, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.texts = append(t.texts, text)
	return nil
}

func (t *transportStub) SendMenu(ctx context.Context, chatID int64, text string, rows [][]Button) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.menus = append(t.menus, text)
	return nil
}

func (t *transportStub) SendAudio(ctx context.Context, chatID int64, audio Audio) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.audioErr != nil {
		return t.audioErr
	}
	t.audios = append(t.audios, audio)
	return nil
}

func (t *transportStub) SendVideo(ctx context.Context, chatID int64, video Video) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.videoErr != nil {
		return t.videoErr
	}
	t.videos = append(t.videos, video)
	return nil
}

func (t *transportStub) menuCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.menus)
}

func (t *transportStub) lastMenu() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.menus) == 0 {
		return ""
	}
	return t.menus[len(t.menus)-1]
}

func (t *transportStub) lastText() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.texts) == 0 {
		return ""
	}
	return t.texts[len(t.texts)-1]
}

func (t *transportStub) videoCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.videos)
}

func (t *transportStub) audioCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.audios)
}

type downloaderStub struct {
	mu      sync.Mutex
	dir     string
	size    int64
	title   string
	err     error
	block   chan struct{}
	cleaned []string
}

func (d *downloaderStub) Fetch(ctx context.Context, link, format, quality string) (extract.Result, error) {
	if d.block != nil {
		<-d.block
	}
	if d.err != nil {
		return extract.Result{}, d.err
	}

	ext := ".mp4"
	if format == "mp3" {
		ext = ".mp3"
	}
	path := filepath.Join(d.dir, "media"+ext)
	if err := os.WriteFile(path, []byte("media-bytes"), 0o644); err != nil {
		return extract.Result{}, err
	}

	return extract.Result{
		Path:     path,
		Size:     d.size,
		Title:    d.title,
		Duration: 125,
		Format:   format,
		Quality:  quality,
	}, nil
}

func (d *downloaderStub) Cleanup(path string) {
	d.mu.Lock()
	d.cleaned = append(d.cleaned, path)
	d.mu.Unlock()
	_ = os.Remove(path)
}

func (d *downloaderStub) cleanupCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.cleaned)
}

type userLedgerStub struct {
	mu       sync.Mutex
	missing  bool
	upserted []int64
}

func (u *userLedgerStub) Upsert(ctx context.Context, user models.User) (models.User, error) {
	u.mu.Lock()
	u.upserted = append(u.upserted, user.ChatID)
	u.mu.Unlock()
	user.ID = "user-1"
	return user, nil
}

func (u *userLedgerStub) FindByChatID(ctx context.Context, chatID int64) (models.User, error) {
	if u.missing {
		return models.User{}, repositories.ErrNotFound
	}
	return models.User{ID: "user-1", ChatID: chatID}, nil
}

type downloadLedgerStub struct {
	mu        sync.Mutex
	created   []models.DownloadRequest
	completed map[string]int64
	failed    map[string]string
}

func (d *downloadLedgerStub) Create(ctx context.Context, request models.DownloadRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.created = append(d.created, request)
	return nil
}

func (d *downloadLedgerStub) MarkProcessing(ctx context.Context, requestID string) error {
	return nil
}

func (d *downloadLedgerStub) MarkCompleted(ctx context.Context, requestID, filePath, downloadURL string, size int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.completed == nil {
		d.completed = make(map[string]int64)
	}
	d.completed[requestID] = size
	return nil
}

func (d *downloadLedgerStub) MarkFailed(ctx context.Context, requestID, detail string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failed == nil {
		d.failed = make(map[string]string)
	}
	d.failed[requestID] = detail
	return nil
}

func (d *downloadLedgerStub) ListRecent(ctx context.Context, userID string, limit int) ([]models.DownloadRequest, error) {
	return nil, nil
}

func (d *downloadLedgerStub) ListActive(ctx context.Context, userID string) ([]models.DownloadRequest, error) {
	return nil, nil
}

func (d *downloadLedgerStub) CountCompleted(ctx context.Context, userID string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.completed)), nil
}

func (d *downloadLedgerStub) firstRequestID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.created) == 0 {
		return ""
	}
	return d.created[0].ID
}

func (d *downloadLedgerStub) completedSize(requestID string) (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	size, ok := d.completed[requestID]
	return size, ok
}

func (d *downloadLedgerStub) failureDetail(requestID string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failed[requestID]
}

type statsLedgerStub struct {
	mu    sync.Mutex
	bytes int64
	calls int
}

func (s *statsLedgerStub) RecordDownload(ctx context.Context, userID string, bytes int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytes += bytes
	s.calls++
	return nil
}

func (s *statsLedgerStub) ForUser(ctx context.Context, userID string) (models.DownloadStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.DownloadStats{UserID: userID, TotalBytes: s.bytes}, nil
}

type allowAllLimiter struct{}

func (allowAllLimiter) Allow(userID int64) bool { return true }

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(userID int64) bool { return false }

type harness struct {
	orch      *Orchestrator
	transport *transportStub
	fetcher   *downloaderStub
	users     *userLedgerStub
	downloads *downloadLedgerStub
	stats     *statsLedgerStub
	sessions  session.Store
	store     *storage.LocalStore
	pool      *Pool
}

func newHarness(t *testing.T, mutate func(h *harness)) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.NewLocalStore(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("local store: %v", err)
	}

	h := &harness{
		transport: &transportStub{},
		fetcher:   &downloaderStub{dir: t.TempDir(), size: 10 << 20, title: "Test Video"},
		users:     &userLedgerStub{},
		downloads: &downloadLedgerStub{},
		stats:     &statsLedgerStub{},
		sessions:  session.NewMemoryStore(),
		store:     store,
		pool:      NewPool(PoolConfig{QueueSize: 4, Workers: 1}, logger),
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.pool.Shutdown(ctx)
	})

	provider := extract.ProviderFunc(func(ctx context.Context, link string) (extract.Metadata, error) {
		return extract.Metadata{Title: "Test Video", Duration: 125, Uploader: "Test Channel"}, nil
	})

	h.orch = NewOrchestrator(
		h.transport, provider, h.fetcher,
		h.users, h.downloads, h.stats,
		h.store, h.sessions, allowAllLimiter{}, h.pool,
		metrics.New(prometheus.NewRegistry()),
		Options{Formats: []string{"mp4", "mp3", "webm"}, DefaultQuality: "best", MaxFileSize: 50 << 20},
		logger,
	)
	if mutate != nil {
		mutate(h)
	}
	return h
}

func (h *harness) startDownload(t *testing.T, format, quality string) {
	t.Helper()
	ctx := context.Background()

	h.orch.HandleMessage(ctx, Message{ChatID: 10, From: UserInfo{ID: 7, FirstName: "Ada"}, Text: testLink})
	waitForCondition(t, func() bool { return h.transport.menuCount() == 1 }, time.Second)

	h.orch.HandleCallback(ctx, Callback{ChatID: 10, From: UserInfo{ID: 7}, Data: "format_" + format})
	if h.transport.menuCount() != 2 {
		t.Fatalf("expected quality menu after format choice")
	}

	h.orch.HandleCallback(ctx, Callback{ChatID: 10, From: UserInfo{ID: 7}, Data: "quality_" + quality})
}

func TestOrchestratorDeliversVideo(t *testing.T) {
	h := newHarness(t, nil)

	h.startDownload(t, "mp4", "hd")

	waitForCondition(t, func() bool { return h.transport.videoCount() == 1 }, time.Second)

	requestID := h.downloads.firstRequestID()
	if requestID == "" {
		t.Fatalf("expected a ledger row to be created")
	}
	size, ok := h.downloads.completedSize(requestID)
	if !ok {
		t.Fatalf("expected request %s to be marked completed", requestID)
	}
	if size != 10<<20 {
		t.Fatalf("unexpected completed size: %d", size)
	}
	if h.stats.calls != 1 || h.stats.bytes != 10<<20 {
		t.Fatalf("expected stats to record one download of 10 MiB, got %d calls %d bytes", h.stats.calls, h.stats.bytes)
	}
	if !strings.Contains(h.transport.videos[0].Caption, "720p") {
		t.Fatalf("expected caption to name the quality, got %q", h.transport.videos[0].Caption)
	}
	if _, exists := h.sessions.Get(7); exists {
		t.Fatalf("expected session to be cleared after delivery")
	}
	waitForCondition(t, func() bool { return h.fetcher.cleanupCount() == 1 }, time.Second)
}

func TestOrchestratorDeliversAudio(t *testing.T) {
	h := newHarness(t, nil)

	h.startDownload(t, "mp3", "best")

	waitForCondition(t, func() bool { return h.transport.audioCount() == 1 }, time.Second)

	audio := h.transport.audios[0]
	if audio.Title != "Test Video" {
		t.Fatalf("unexpected audio title: %q", audio.Title)
	}
	if audio.Performer != "Test Channel" {
		t.Fatalf("unexpected performer: %q", audio.Performer)
	}
	if audio.Duration != 125 {
		t.Fatalf("unexpected duration: %d", audio.Duration)
	}
}

func TestOrchestratorRejectsOversizedFile(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.fetcher.size = 60 << 20
	})

	h.startDownload(t, "mp3", "best")

	waitForCondition(t, func() bool {
		return strings.Contains(h.downloads.failureDetail(h.downloads.firstRequestID()), "exceeds")
	}, time.Second)

	if h.transport.audioCount() != 0 {
		t.Fatalf("expected no delivery for an oversized file")
	}
	if h.fetcher.cleanupCount() != 1 {
		t.Fatalf("expected scratch file cleanup, got %d calls", h.fetcher.cleanupCount())
	}
	if !strings.Contains(h.transport.lastText(), "over the") {
		t.Fatalf("expected a size rejection message, got %q", h.transport.lastText())
	}
	if _, exists := h.sessions.Get(7); exists {
		t.Fatalf("expected session to be cleared after rejection")
	}
}

func TestOrchestratorReportsDeliveryFailure(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.transport.videoErr = errors.New("upload rejected")
	})

	h.startDownload(t, "mp4", "hd")

	waitForCondition(t, func() bool {
		return strings.Contains(h.transport.lastText(), "could not be sent")
	}, time.Second)

	requestID := h.downloads.firstRequestID()
	if _, ok := h.downloads.completedSize(requestID); !ok {
		t.Fatalf("expected the stored file to stay marked completed")
	}
	waitForCondition(t, func() bool { return h.fetcher.cleanupCount() == 1 }, time.Second)
	if _, exists := h.sessions.Get(7); exists {
		t.Fatalf("expected session to be cleared after a delivery failure")
	}
}

func TestOrchestratorKeysLedgerBySender(t *testing.T) {
	h := newHarness(t, nil)

	// Group chats carry a chat id different from the sender's user id; the
	// ledger row must belong to the sender.
	h.orch.HandleMessage(context.Background(), Message{ChatID: -4200, From: UserInfo{ID: 7}, Text: testLink})
	waitForCondition(t, func() bool { return h.transport.menuCount() == 1 }, time.Second)

	h.users.mu.Lock()
	defer h.users.mu.Unlock()
	if len(h.users.upserted) != 1 || h.users.upserted[0] != 7 {
		t.Fatalf("expected upsert keyed by sender id 7, got %v", h.users.upserted)
	}
}

func TestOrchestratorFetchFailure(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.fetcher.err = errors.New("video unavailable")
	})

	h.startDownload(t, "mp4", "best")

	waitForCondition(t, func() bool {
		return h.downloads.failureDetail(h.downloads.firstRequestID()) != ""
	}, time.Second)

	if h.transport.videoCount() != 0 {
		t.Fatalf("expected no delivery after a fetch failure")
	}
	if !strings.Contains(h.transport.lastText(), "Download failed") {
		t.Fatalf("expected a failure message, got %q", h.transport.lastText())
	}
}

func TestOrchestratorRateLimited(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.limiter = denyAllLimiter{}

	h.orch.HandleMessage(context.Background(), Message{ChatID: 10, From: UserInfo{ID: 7}, Text: testLink})

	if !strings.Contains(h.transport.lastText(), "too quickly") {
		t.Fatalf("expected a rate limit message, got %q", h.transport.lastText())
	}
	if _, exists := h.sessions.Get(7); exists {
		t.Fatalf("expected no session for a rate limited request")
	}
}

func TestOrchestratorPlaceholderMetadata(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.provider = extract.ProviderFunc(func(ctx context.Context, link string) (extract.Metadata, error) {
		return extract.Metadata{}, errors.New("extraction failed")
	})

	h.orch.HandleMessage(context.Background(), Message{ChatID: 10, From: UserInfo{ID: 7}, Text: testLink})

	waitForCondition(t, func() bool { return h.transport.menuCount() == 1 }, time.Second)
	if !strings.Contains(h.transport.lastMenu(), "unknown title (00:00)") {
		t.Fatalf("expected placeholder metadata in the prompt, got %q", h.transport.lastMenu())
	}

	sess, ok := h.sessions.Get(7)
	if !ok || sess.Step != session.StepAwaitingFormat {
		t.Fatalf("expected the wizard to continue with placeholders")
	}
}

func TestOrchestratorCancelDiscardsFetch(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, func(h *harness) {
		h.fetcher.block = release
	})

	h.startDownload(t, "mp4", "best")

	h.orch.HandleCallback(context.Background(), Callback{ChatID: 10, From: UserInfo{ID: 7}, Data: "cancel"})
	if !strings.Contains(h.transport.lastText(), "Canceled") {
		t.Fatalf("expected cancel confirmation, got %q", h.transport.lastText())
	}

	close(release)

	requestID := h.downloads.firstRequestID()
	waitForCondition(t, func() bool {
		return h.downloads.failureDetail(requestID) == "canceled by user"
	}, time.Second)

	if h.transport.videoCount() != 0 {
		t.Fatalf("expected no delivery after cancel")
	}
	if h.fetcher.cleanupCount() != 1 {
		t.Fatalf("expected scratch cleanup after cancel, got %d calls", h.fetcher.cleanupCount())
	}
}

func TestOrchestratorNewLinkReplacesSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.orch.HandleMessage(ctx, Message{ChatID: 10, From: UserInfo{ID: 7}, Text: testLink})
	waitForCondition(t, func() bool { return h.transport.menuCount() == 1 }, time.Second)
	h.orch.HandleCallback(ctx, Callback{ChatID: 10, From: UserInfo{ID: 7}, Data: "format_mp4"})

	other := "https://youtu.be/abc123DEF45"
	h.orch.HandleMessage(ctx, Message{ChatID: 10, From: UserInfo{ID: 7}, Text: other})
	waitForCondition(t, func() bool { return h.transport.menuCount() == 3 }, time.Second)

	sess, ok := h.sessions.Get(7)
	if !ok {
		t.Fatalf("expected a session for the new link")
	}
	if sess.Link != other {
		t.Fatalf("expected the new link to win, got %q", sess.Link)
	}
	if sess.Format != "" || sess.Step != session.StepAwaitingFormat {
		t.Fatalf("expected the earlier selection to be discarded")
	}
}

func TestOrchestratorExpiredCallback(t *testing.T) {
	h := newHarness(t, nil)

	h.orch.HandleCallback(context.Background(), Callback{ChatID: 10, From: UserInfo{ID: 7}, Data: "quality_hd"})

	if !strings.Contains(h.transport.lastText(), "expired") {
		t.Fatalf("expected an expiry message, got %q", h.transport.lastText())
	}
	if h.downloads.firstRequestID() != "" {
		t.Fatalf("expected no ledger row for an expired callback")
	}
}

func TestOrchestratorUnknownInput(t *testing.T) {
	h := newHarness(t, nil)

	h.orch.HandleMessage(context.Background(), Message{ChatID: 10, From: UserInfo{ID: 7}, Text: "hello"})

	if !strings.Contains(h.transport.lastText(), "valid YouTube link") {
		t.Fatalf("expected a validation hint, got %q", h.transport.lastText())
	}
}

func TestOrchestratorStatsCommand(t *testing.T) {
	h := newHarness(t, nil)

	h.startDownload(t, "mp4", "best")
	waitForCondition(t, func() bool { return h.transport.videoCount() == 1 }, time.Second)

	h.orch.HandleMessage(context.Background(), Message{ChatID: 10, From: UserInfo{ID: 7}, Text: "/stats"})

	last := h.transport.lastText()
	if !strings.Contains(last, "1 completed") {
		t.Fatalf("expected one completed download in stats, got %q", last)
	}
	if !strings.Contains(last, "10.0 MB") {
		t.Fatalf("expected delivered bytes in stats, got %q", last)
	}
}

func waitForCondition(t *testing.T, predicate func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if predicate() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}
