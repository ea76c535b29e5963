// Package enumerator lists and filters the source account's
// conversations (spec §4.1).
package enumerator

import (
	"context"

	"github.com/hrygo/tgmigrate/internal/migraterr"
	"github.com/hrygo/tgmigrate/internal/model"
)

// Lister is the subset of the platform client the enumerator needs.
type Lister interface {
	ListConversations(ctx context.Context) ([]model.Conversation, error)
}

// ListAll returns every conversation the source account can see.
// Pagination, if any, is handled transparently by the client library.
func ListAll(ctx context.Context, client Lister) ([]model.Conversation, error) {
	convs, err := client.ListConversations(ctx)
	if err != nil {
		return nil, migraterr.Wrap(migraterr.KindFetchFailed, "listing conversations", err)
	}
	return convs, nil
}

// Filter describes the composable conversation selection criteria
// (spec §4.1). Zero values mean "no restriction" for every field
// except MinMessageCount/MaxMessageCount, which are inclusive bounds
// applied only when MessageCountBounded is true.
type Filter struct {
	IncludeIDs           []string
	ExcludeIDs           []string
	IncludeTypes         []model.ConversationType
	ExcludeTypes         []model.ConversationType
	MessageCountBounded  bool
	MinMessageCount      int
	MaxMessageCount      int
}

// Apply runs the fixed five-stage filter pipeline over list (spec
// §4.1): id whitelist, id blacklist, type whitelist, type blacklist,
// inclusive message-count range. Each stage is order-independent with
// respect to the others because it operates on disjoint criteria; the
// five stages themselves always run in this order.
func Apply(list []model.Conversation, f Filter) []model.Conversation {
	out := list

	if len(f.IncludeIDs) > 0 {
		allow := toSet(f.IncludeIDs)
		out = filterSlice(out, func(c model.Conversation) bool { return allow[c.ID] })
	}

	if len(f.ExcludeIDs) > 0 {
		deny := toSet(f.ExcludeIDs)
		out = filterSlice(out, func(c model.Conversation) bool { return !deny[c.ID] })
	}

	if len(f.IncludeTypes) > 0 {
		allow := toTypeSet(f.IncludeTypes)
		out = filterSlice(out, func(c model.Conversation) bool { return allow[c.Type] })
	}

	if len(f.ExcludeTypes) > 0 {
		deny := toTypeSet(f.ExcludeTypes)
		out = filterSlice(out, func(c model.Conversation) bool { return !deny[c.Type] })
	}

	if f.MessageCountBounded {
		out = filterSlice(out, func(c model.Conversation) bool {
			return c.MessageCount >= f.MinMessageCount && c.MessageCount <= f.MaxMessageCount
		})
	}

	return out
}

func filterSlice(in []model.Conversation, keep func(model.Conversation) bool) []model.Conversation {
	out := make([]model.Conversation, 0, len(in))
	for _, c := range in {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func toSet(ids []string) map[string]bool {
	s := make(map[string]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

func toTypeSet(types []model.ConversationType) map[model.ConversationType]bool {
	s := make(map[model.ConversationType]bool, len(types))
	for _, t := range types {
		s[t] = true
	}
	return s
}
