package model

import "errors"

var ErrTicketInconsistent = errors.New("ticket channel and menu message must be set together")

// UserSession is the persisted link between a chat user and an external account.
// Sessions are never deleted, only zeroed.
type UserSession struct {
	ExternalIDCipher       string `json:"external_id"`       // empty = unset
	ExternalPasswordCipher string `json:"external_password"` // empty = unset
	ClassID                int    `json:"class_id"`          // 0 = unset
	SetID                  int    `json:"set_id"`            // 0 = unset
	ChannelID              string `json:"channel_id"`
	MessageID              string `json:"message_id"`
}

// HasCredentials reports whether both credential blobs are stored.
func (s UserSession) HasCredentials() bool {
	return s.ExternalIDCipher != "" && s.ExternalPasswordCipher != ""
}

// HasTicket reports whether the session owns a ticket channel and menu message.
func (s UserSession) HasTicket() bool {
	return s.ChannelID != "" && s.MessageID != ""
}

// ClearCredentials zeroes the credentials and everything derived from them.
func (s *UserSession) ClearCredentials() {
	s.ExternalIDCipher = ""
	s.ExternalPasswordCipher = ""
	s.ClassID = 0
	s.SetID = 0
}

// ClearTicket forgets the ticket channel and its menu message.
func (s *UserSession) ClearTicket() {
	s.ChannelID = ""
	s.MessageID = ""
}

// Validate checks the menu-message/channel invariant.
func (s UserSession) Validate() error {
	if (s.ChannelID == "") != (s.MessageID == "") {
		return ErrTicketInconsistent
	}
	return nil
}
