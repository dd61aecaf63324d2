package slack

import (
	"encoding/json"
	"fmt"
)

// Event is the decoded form of an inbound webhook payload. Exactly one of
// the concrete types below is returned by ParseEvent, so downstream logic
// dispatches on an explicit variant instead of probing raw JSON keys.
type Event interface {
	eventKind() string
}

// ChallengeEvent is the one-time URL verification handshake; the challenge
// token must be echoed back verbatim.
type ChallengeEvent struct {
	Challenge string
}

// MessageEvent is a user message posted in a channel the bot can see.
type MessageEvent struct {
	Channel  string
	User     string
	Text     string
	ThreadTS string // thread to reply into: thread_ts when set, else ts
	BotID    string // non-empty when the message was authored by a bot
}

// FileSharedEvent is a file upload the bot should ingest.
type FileSharedEvent struct {
	Channel  string
	User     string
	FileID   string
	ThreadTS string
}

// UnrecognizedEvent is any payload shape this service does not handle.
type UnrecognizedEvent struct {
	Type string
}

func (ChallengeEvent) eventKind() string    { return "challenge" }
func (MessageEvent) eventKind() string      { return "message" }
func (FileSharedEvent) eventKind() string   { return "file_shared" }
func (UnrecognizedEvent) eventKind() string { return "unrecognized" }

// envelope mirrors the platform's outer event wrapper.
type envelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Event     struct {
		Type      string `json:"type"`
		Subtype   string `json:"subtype"`
		Channel   string `json:"channel"`
		ChannelID string `json:"channel_id"`
		User      string `json:"user"`
		Text      string `json:"text"`
		TS        string `json:"ts"`
		ThreadTS  string `json:"thread_ts"`
		BotID     string `json:"bot_id"`
		FileID    string `json:"file_id"`
		File      struct {
			ID string `json:"id"`
		} `json:"file"`
	} `json:"event"`
}

// ParseEvent decodes a raw webhook body into one of the event variants.
// Only malformed JSON is an error; unknown event types decode to
// UnrecognizedEvent.
func ParseEvent(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parse event: %w", err)
	}

	switch env.Type {
	case "url_verification":
		return ChallengeEvent{Challenge: env.Challenge}, nil
	case "event_callback":
		// handled below
	default:
		// Some handshake deliveries carry only the challenge token.
		if env.Challenge != "" {
			return ChallengeEvent{Challenge: env.Challenge}, nil
		}
		return UnrecognizedEvent{Type: env.Type}, nil
	}

	switch env.Event.Type {
	case "message":
		threadTS := env.Event.ThreadTS
		if threadTS == "" {
			threadTS = env.Event.TS
		}
		return MessageEvent{
			Channel:  env.Event.Channel,
			User:     env.Event.User,
			Text:     env.Event.Text,
			ThreadTS: threadTS,
			BotID:    env.Event.BotID,
		}, nil
	case "file_shared":
		fileID := env.Event.FileID
		if fileID == "" {
			fileID = env.Event.File.ID
		}
		channel := env.Event.ChannelID
		if channel == "" {
			channel = env.Event.Channel
		}
		return FileSharedEvent{
			Channel:  channel,
			User:     env.Event.User,
			FileID:   fileID,
			ThreadTS: env.Event.TS,
		}, nil
	default:
		return UnrecognizedEvent{Type: env.Event.Type}, nil
	}
}
