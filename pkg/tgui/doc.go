// Package tgui contains small helpers for building Telegram-safe message
// payloads: an escaped-HTML subset, length limits, and signed inline
// callback actions.
package tgui
