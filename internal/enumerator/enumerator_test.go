package enumerator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/tgmigrate/internal/model"
)

func conv(id string, t model.ConversationType, count int) model.Conversation {
	return model.Conversation{ID: id, Type: t, MessageCount: count}
}

// TestApply_WhitelistBlacklist covers spec scenario S4: whitelist
// [1,2,3] minus blacklist [2] yields [1,3], independent of how the
// two id lists are supplied.
func TestApply_WhitelistBlacklist(t *testing.T) {
	list := []model.Conversation{
		conv("1", model.TypePrivate, 0),
		conv("2", model.TypePrivate, 0),
		conv("3", model.TypePrivate, 0),
	}

	out := Apply(list, Filter{
		IncludeIDs: []string{"1", "2", "3"},
		ExcludeIDs: []string{"2"},
	})

	ids := make([]string, 0, len(out))
	for _, c := range out {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"1", "3"}, ids)
}

func TestApply_TypeFilters(t *testing.T) {
	list := []model.Conversation{
		conv("1", model.TypePrivate, 0),
		conv("2", model.TypeGroup, 0),
		conv("3", model.TypeChannel, 0),
	}

	out := Apply(list, Filter{IncludeTypes: []model.ConversationType{model.TypeGroup, model.TypeChannel}})
	assert.Len(t, out, 2)

	out = Apply(out, Filter{ExcludeTypes: []model.ConversationType{model.TypeChannel}})
	assert.Len(t, out, 1)
	assert.Equal(t, "2", out[0].ID)
}

func TestApply_MessageCountRangeIsInclusive(t *testing.T) {
	list := []model.Conversation{
		conv("low", model.TypePrivate, 10),
		conv("mid", model.TypePrivate, 50),
		conv("high", model.TypePrivate, 100),
	}

	out := Apply(list, Filter{MessageCountBounded: true, MinMessageCount: 10, MaxMessageCount: 100})
	assert.Len(t, out, 3, "boundary values must be included")

	out = Apply(list, Filter{MessageCountBounded: true, MinMessageCount: 11, MaxMessageCount: 99})
	assert.Len(t, out, 1)
	assert.Equal(t, "mid", out[0].ID)
}

func TestApply_EmptyWhitelistMeansNoFilter(t *testing.T) {
	list := []model.Conversation{conv("1", model.TypePrivate, 0), conv("2", model.TypeGroup, 0)}
	out := Apply(list, Filter{})
	assert.Equal(t, list, out)
}

// TestApply_OrderIndependentComposition asserts that feeding the same
// include/exclude sets through the pipeline in either field order on
// the Filter struct yields the same result, since the five stages run
// in a fixed order regardless of how the caller populated the struct.
func TestApply_OrderIndependentComposition(t *testing.T) {
	list := []model.Conversation{
		conv("1", model.TypePrivate, 5),
		conv("2", model.TypeGroup, 5),
		conv("3", model.TypeGroup, 5),
	}

	a := Apply(list, Filter{IncludeIDs: []string{"2", "3"}, ExcludeIDs: []string{"3"}, IncludeTypes: []model.ConversationType{model.TypeGroup}})
	b := Apply(list, Filter{ExcludeIDs: []string{"3"}, IncludeTypes: []model.ConversationType{model.TypeGroup}, IncludeIDs: []string{"2", "3"}})
	assert.Equal(t, a, b)
	assert.Len(t, a, 1)
	assert.Equal(t, "2", a[0].ID)
}
