package platform

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hrygo/tgmigrate/internal/model"
)

// Classify maps a raw chat entity to a conversation type (spec §4.1):
// user with bot flag -> Bot; user otherwise -> Private; group chat ->
// Group; megagroup channel -> Supergroup; channel -> Channel; unknown
// defaults to Private.
func Classify(chat tgbotapi.Chat, isBot bool) model.ConversationType {
	switch {
	case chat.IsPrivate():
		if isBot {
			return model.TypeBot
		}
		return model.TypePrivate
	case chat.IsGroup():
		return model.TypeGroup
	case chat.IsChannel():
		if chat.IsSuperGroup() {
			return model.TypeSupergroup
		}
		return model.TypeChannel
	case chat.IsSuperGroup():
		return model.TypeSupergroup
	default:
		return model.TypePrivate
	}
}
