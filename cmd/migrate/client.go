package main

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hrygo/tgmigrate/internal/migraterr"
	"github.com/hrygo/tgmigrate/internal/model"
	"github.com/hrygo/tgmigrate/internal/platform"
)

// unwiredClient satisfies platform.Client and internal/enumerator.Lister
// so the command tree links and runs end to end, but every call reports
// KindNetworkError: the wire-level Telegram session (auth, 2FA,
// reconnection) is explicitly out of scope (spec §1) and left for the
// operator to supply a real platform.Client implementation.
type unwiredClient struct{}

func (unwiredClient) unimplemented(op string) error {
	return migraterr.New(migraterr.KindNetworkError, op+": no platform client wired; supply a real platform.Client implementation")
}

func (c unwiredClient) GetHistory(ctx context.Context, peer any, offsetID int64, limit int) (platform.HistoryPage, error) {
	return platform.HistoryPage{}, c.unimplemented("GetHistory")
}

func (c unwiredClient) ForwardMessages(ctx context.Context, source, dest any, messageIDs []int64, nonces []uint64) (platform.ForwardResult, error) {
	return platform.ForwardResult{}, c.unimplemented("ForwardMessages")
}

func (c unwiredClient) CreateChannel(ctx context.Context, title, description string) (platform.Entity, error) {
	return platform.Entity{}, c.unimplemented("CreateChannel")
}

func (c unwiredClient) InviteToChannel(ctx context.Context, dest any, identifier string) error {
	return c.unimplemented("InviteToChannel")
}

func (c unwiredClient) SendMessage(ctx context.Context, peer any, text string) error {
	return c.unimplemented("SendMessage")
}

func (c unwiredClient) ResolveEntity(ctx context.Context, id string) (platform.Entity, error) {
	return platform.Entity{}, c.unimplemented("ResolveEntity")
}

func (c unwiredClient) Subscribe(ctx context.Context, convID string, onMessage func(tgbotapi.Message)) (cancel func(), err error) {
	return nil, c.unimplemented("Subscribe")
}

func (c unwiredClient) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	return nil, c.unimplemented("ListConversations")
}

func newClient() unwiredClient { return unwiredClient{} }
