package tgui

import "errors"

// MaxMessageLen is Telegram's hard limit for a single message, in characters.
const MaxMessageLen = 4096

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
// NOTE: This is the length of the full encoded action string.
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")
