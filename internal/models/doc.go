// Package models defines the core domain models for Splitopus.
//
// A Trip is the shared context: members, expenses and notes are all scoped
// to one trip. Users are Telegram accounts; their ids are the decimal
// Telegram user id rendered as a string.
//
// Money is always github.com/shopspring/decimal. Timestamps are Unix seconds.
//
// Relationships use ID strings rather than pointers.
package models
