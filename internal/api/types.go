// Package api provides the typed Discord REST client used by every command.
// All requests flow through a single execution queue so rate-limit and auth
// handling happen in exactly one place.
package api

import (
	"fmt"
	"time"
)

// cdnBase is the root of Discord's media CDN.
const cdnBase = "https://cdn.discordapp.com"

// User is the account behind the current token.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	GlobalName    string `json:"global_name"`
	Avatar        string `json:"avatar"`
	Email         string `json:"email,omitempty"`
	Verified      bool   `json:"verified,omitempty"`
	MFAEnabled    bool   `json:"mfa_enabled,omitempty"`
	Locale        string `json:"locale,omitempty"`
}

// DisplayName prefers the global display name over the legacy username.
func (u *User) DisplayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// Tag renders the classic name#discriminator form, or the plain username for
// accounts migrated off discriminators.
func (u *User) Tag() string {
	if u.Discriminator == "" || u.Discriminator == "0" {
		return u.Username
	}
	return u.Username + "#" + u.Discriminator
}

// AvatarURL returns the CDN URL of the user's avatar, or "" when unset.
func (u *User) AvatarURL() string {
	if u.Avatar == "" {
		return ""
	}
	return fmt.Sprintf("%s/avatars/%s/%s.png", cdnBase, u.ID, u.Avatar)
}

// Guild is a server the user is a member of.
type Guild struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Icon        string   `json:"icon"`
	Owner       bool     `json:"owner"`
	Permissions string   `json:"permissions"`
	Features    []string `json:"features"`
}

// IconURL returns the CDN URL of the guild icon, or "" when unset.
func (g *Guild) IconURL() string {
	if g.Icon == "" {
		return ""
	}
	return fmt.Sprintf("%s/icons/%s/%s.png", cdnBase, g.ID, g.Icon)
}

// ChannelType is Discord's channel type discriminator.
type ChannelType int

const (
	ChannelTypeGuildText     ChannelType = 0
	ChannelTypeDM            ChannelType = 1
	ChannelTypeGuildVoice    ChannelType = 2
	ChannelTypeGroupDM       ChannelType = 3
	ChannelTypeGuildCategory ChannelType = 4
	ChannelTypeAnnouncement  ChannelType = 5
	ChannelTypeForum         ChannelType = 15
)

// Channel is a guild channel.
type Channel struct {
	ID       string      `json:"id"`
	Type     ChannelType `json:"type"`
	GuildID  string      `json:"guild_id,omitempty"`
	Name     string      `json:"name"`
	Topic    string      `json:"topic,omitempty"`
	Position int         `json:"position"`
	ParentID string      `json:"parent_id,omitempty"`
	NSFW     bool        `json:"nsfw,omitempty"`
}

// IsText reports whether messages can be read from the channel.
func (c *Channel) IsText() bool {
	switch c.Type {
	case ChannelTypeGuildText, ChannelTypeDM, ChannelTypeGroupDM, ChannelTypeAnnouncement:
		return true
	default:
		return false
	}
}

// Attachment is a file attached to a message.
type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

// Message is a channel message.
type Message struct {
	ID              string       `json:"id"`
	ChannelID       string       `json:"channel_id"`
	Author          User         `json:"author"`
	Content         string       `json:"content"`
	Timestamp       time.Time    `json:"timestamp"`
	EditedTimestamp *time.Time   `json:"edited_timestamp"`
	Attachments     []Attachment `json:"attachments"`
	Pinned          bool         `json:"pinned"`
}

// SearchResults is the response shape of the guild message search endpoint.
// Each inner slice is a message with its surrounding context; the first
// element is the hit itself.
type SearchResults struct {
	TotalResults int         `json:"total_results"`
	Messages     [][]Message `json:"messages"`
}

// Hits flattens the search response to just the matching messages.
func (r *SearchResults) Hits() []Message {
	hits := make([]Message, 0, len(r.Messages))
	for _, group := range r.Messages {
		if len(group) > 0 {
			hits = append(hits, group[0])
		}
	}
	return hits
}

// PresenceStatus is the self-status value accepted by the settings endpoint.
type PresenceStatus string

const (
	PresenceOnline    PresenceStatus = "online"
	PresenceIdle      PresenceStatus = "idle"
	PresenceDND       PresenceStatus = "dnd"
	PresenceInvisible PresenceStatus = "invisible"
)

// Valid reports whether the status is one Discord accepts.
func (s PresenceStatus) Valid() bool {
	switch s {
	case PresenceOnline, PresenceIdle, PresenceDND, PresenceInvisible:
		return true
	default:
		return false
	}
}

// CustomStatus is the optional status text and emoji attached to a presence.
type CustomStatus struct {
	Text      string `json:"text,omitempty"`
	EmojiName string `json:"emoji_name,omitempty"`
}

// Presence is the payload for updating the user's own status.
type Presence struct {
	Status PresenceStatus `json:"status"`
	Custom *CustomStatus  `json:"custom_status,omitempty"`
}

// NotificationLevel selects which messages in a guild notify the user.
type NotificationLevel int

const (
	// NotifyAllMessages notifies on every message.
	NotifyAllMessages NotificationLevel = 0

	// NotifyOnlyMentions notifies on mentions only.
	NotifyOnlyMentions NotificationLevel = 1

	// NotifyNothing suppresses all notifications.
	NotifyNothing NotificationLevel = 2
)

// NotificationSettings is the per-guild notification configuration.
type NotificationSettings struct {
	GuildID              string            `json:"guild_id,omitempty"`
	Muted                bool              `json:"muted"`
	MessageNotifications NotificationLevel `json:"message_notifications"`
	SuppressEveryone     bool              `json:"suppress_everyone"`
	SuppressRoles        bool              `json:"suppress_roles"`
}
