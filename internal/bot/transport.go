package bot

import "context"

// UserInfo is the chat platform's identity for the sender of an event.
type UserInfo struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// Message is an inbound text message from a chat.
type Message struct {
	ChatID int64
	From   UserInfo
	Text   string
}

// Callback is an inline button press.
type Callback struct {
	ChatID int64
	From   UserInfo
	Data   string
}

// Button is one option on an inline keyboard.
type Button struct {
	Label string
	Data  string
}

// Audio describes a fetched audio file ready for delivery.
type Audio struct {
	Path      string
	Title     string
	Performer string
	Duration  int
}

// Video describes a fetched video file ready for delivery.
type Video struct {
	Path    string
	Caption string
}

// Transport sends outbound traffic to the chat platform. The orchestrator never
// touches the platform SDK directly so tests can substitute a recorder.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendMenu(ctx context.Context, chatID int64, text string, rows [][]Button) error
	SendAudio(ctx context.Context, chatID int64, audio Audio) error
	SendVideo(ctx context.Context, chatID int64, video Video) error
}
