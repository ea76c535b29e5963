// Package destination manages the per-conversation supergroups that
// mirror a source conversation into the target account (spec §4.2).
package destination

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hrygo/tgmigrate/internal/migraterr"
	"github.com/hrygo/tgmigrate/internal/model"
	"github.com/hrygo/tgmigrate/internal/platform"
)

// Creator is the subset of platform.Client CreateDestination needs.
type Creator interface {
	CreateChannel(ctx context.Context, title, description string) (platform.Entity, error)
}

// Inviter is the subset of platform.Client InviteUser needs.
type Inviter interface {
	ResolveEntity(ctx context.Context, id string) (platform.Entity, error)
	InviteToChannel(ctx context.Context, dest any, identifier string) error
}

// Config tunes destination creation (spec §4.2, §6).
type Config struct {
	TitlePrefix          string
	GroupCreationDelayMs int
}

// DefaultConfig mirrors the defaults named in spec §4.2/§6.
func DefaultConfig() Config {
	return Config{TitlePrefix: "[Migrated] ", GroupCreationDelayMs: 60000}
}

// sleep is overridden in tests to avoid the real cooldown delay.
var sleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateDestination creates a new supergroup mirroring source and
// applies the mandatory post-creation cooldown (spec §4.2).
func CreateDestination(ctx context.Context, client Creator, source model.Conversation, cfg Config) (model.Destination, *migraterr.Error) {
	title := cfg.TitlePrefix + source.DisplayName
	description := fmt.Sprintf("Migrated from %q (source id %s)", source.DisplayName, source.ID)

	entity, err := client.CreateChannel(ctx, title, description)
	if err != nil {
		if me, ok := migraterr.As(err); ok && me.IsFloodWait() {
			return model.Destination{}, me
		}
		return model.Destination{}, migraterr.Wrap(migraterr.KindCreateFailed, "creating destination supergroup", err)
	}

	dest := model.Destination{
		ID:           fmt.Sprintf("%d", entity.Chat.ID),
		AccessHandle: entity,
		DisplayName:  title,
		SourceID:     source.ID,
		CreatedAt:    time.Now(),
	}

	delay := time.Duration(cfg.GroupCreationDelayMs) * time.Millisecond
	if delay > 0 {
		if err := sleep(ctx, delay); err != nil {
			return dest, migraterr.Wrap(migraterr.KindCreateFailed, "post-creation cooldown interrupted", err)
		}
	}

	return dest, nil
}

// InviteUser resolves identifier (username or phone) and invites it
// into dest, classifying remote error text into a fixed set of local
// kinds (spec §4.2).
func InviteUser(ctx context.Context, client Inviter, dest model.Destination, identifier string) *migraterr.Error {
	if _, err := client.ResolveEntity(ctx, identifier); err != nil {
		return classify(err, identifier)
	}

	if err := client.InviteToChannel(ctx, dest.AccessHandle, identifier); err != nil {
		return classify(err, identifier)
	}

	return nil
}

// classify maps a remote error to the fixed local-kind taxonomy named
// in spec §4.2. A remote error already carrying a migraterr.Error
// (e.g. a typed floodwait) passes through unchanged.
func classify(err error, identifier string) *migraterr.Error {
	if me, ok := migraterr.As(err); ok {
		return me
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(msg, "UsernameNotOccupied"),
		strings.Contains(msg, "UsernameInvalid"),
		strings.Contains(lower, "not found"),
		strings.Contains(lower, "invalid"):
		return migraterr.Wrap(migraterr.KindUserNotFound, "resolving "+identifier, err)

	case strings.Contains(msg, "UserRestricted"),
		strings.Contains(lower, "restricted"):
		return migraterr.Wrap(migraterr.KindUserRestricted, "inviting "+identifier, err)

	case strings.Contains(msg, "FloodWait"):
		return migraterr.FloodWait(migraterr.KindGroupFloodWait, floodWaitSecondsFrom(err))

	default:
		return migraterr.Wrap(migraterr.KindInviteFailed, "inviting "+identifier, err)
	}
}

// secondsReporter is satisfied by any error that knows its own
// remote-reported floodwait duration.
type secondsReporter interface {
	FloodWaitSeconds() int
}

func floodWaitSecondsFrom(err error) int {
	if sr, ok := err.(secondsReporter); ok {
		return sr.FloodWaitSeconds()
	}
	return 0 // migraterr.FloodWait defaults this to 60
}
