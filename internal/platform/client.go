// Package platform declares the wire-level chat-platform client as an
// interface only (spec §1: out of scope, referenced by interface).
// Payload and entity types reuse the real go-telegram-bot-api wire
// types so the rest of the tool has something concrete to type against
// without owning session/credential management, reconnection, or 2FA.
package platform

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// HistoryPage is one page of Conversation history, newest message first.
type HistoryPage struct {
	Messages []tgbotapi.Message
}

// ForwardResult is the outcome of a single ForwardMessages call.
type ForwardResult struct {
	ForwardedIDs []int64
}

// Entity is anything CreateChannel/ResolveEntity can hand back:
// a resolved user, chat, or channel reference.
type Entity struct {
	Chat tgbotapi.Chat
}

// Client is the wire-level boundary to the chat platform. Session
// handling, 2FA prompts, and reconnection live on the concrete
// implementation and are not part of this contract.
type Client interface {
	// GetHistory pages one conversation's history, newest-first.
	GetHistory(ctx context.Context, peer any, offsetID int64, limit int) (HistoryPage, error)

	// ForwardMessages forwards a contiguous batch of message ids from
	// source to dest, preserving authorship and captions. nonces has
	// exactly one entry per message, matching spec §4.3.
	ForwardMessages(ctx context.Context, source, dest any, messageIDs []int64, nonces []uint64) (ForwardResult, error)

	// CreateChannel creates a new supergroup with the given title and
	// description, returning its entity.
	CreateChannel(ctx context.Context, title, description string) (Entity, error)

	// InviteToChannel resolves identifier (username or phone) and
	// invites it into dest.
	InviteToChannel(ctx context.Context, dest any, identifier string) error

	// SendMessage sends a plain text message to peer (used for the
	// operator out-of-band notice, spec §4.7 step 5).
	SendMessage(ctx context.Context, peer any, text string) error

	// ResolveEntity resolves a stable conversation id back to a usable
	// entity reference, e.g. to recover a stored destination group id.
	ResolveEntity(ctx context.Context, id string) (Entity, error)

	// Subscribe registers a callback invoked for every new message
	// observed on convID until the returned cancel func is called.
	Subscribe(ctx context.Context, convID string, onMessage func(tgbotapi.Message)) (cancel func(), err error)
}
