// Package tgui holds small helpers for Telegram HTML replies: escaping,
// a line-oriented message builder, inline keyboards and paging.
//
// Builder output is always valid for ParseMode "HTML": every user
// supplied string passes through Esc.
package tgui
