package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// CurrentUser fetches the account behind the current token. Cacheable.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	body, err := c.call(ctx, http.MethodGet, "/users/@me", nil, true)
	if err != nil {
		return nil, err
	}
	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return &user, nil
}

// Guilds lists the guilds the user is a member of. Cacheable.
func (c *Client) Guilds(ctx context.Context) ([]Guild, error) {
	body, err := c.call(ctx, http.MethodGet, "/users/@me/guilds", nil, true)
	if err != nil {
		return nil, err
	}
	var guilds []Guild
	if err := json.Unmarshal(body, &guilds); err != nil {
		return nil, fmt.Errorf("failed to decode guilds: %w", err)
	}
	return guilds, nil
}

// GuildChannels lists a guild's channels. Cacheable.
func (c *Client) GuildChannels(ctx context.Context, guildID string) ([]Channel, error) {
	body, err := c.call(ctx, http.MethodGet, "/guilds/"+guildID+"/channels", nil, true)
	if err != nil {
		return nil, err
	}
	var channels []Channel
	if err := json.Unmarshal(body, &channels); err != nil {
		return nil, fmt.Errorf("failed to decode channels: %w", err)
	}
	return channels, nil
}

// ChannelMessages fetches the most recent messages in a channel, newest
// first. Limit 0 selects the server default.
func (c *Client) ChannelMessages(ctx context.Context, channelID string, limit int) ([]Message, error) {
	path := "/channels/" + channelID + "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	body, err := c.call(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return nil, err
	}
	var messages []Message
	if err := json.Unmarshal(body, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return messages, nil
}

// SearchQuery narrows a guild message search.
type SearchQuery struct {
	Content   string
	AuthorID  string
	ChannelID string
	Limit     int
}

// SearchMessages searches a guild's messages.
func (c *Client) SearchMessages(ctx context.Context, guildID string, q SearchQuery) (*SearchResults, error) {
	params := url.Values{}
	if q.Content != "" {
		params.Set("content", q.Content)
	}
	if q.AuthorID != "" {
		params.Set("author_id", q.AuthorID)
	}
	if q.ChannelID != "" {
		params.Set("channel_id", q.ChannelID)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	path := "/guilds/" + guildID + "/messages/search"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	body, err := c.call(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return nil, err
	}
	var results SearchResults
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}
	return &results, nil
}

// UpdatePresence sets the user's own status and optional custom status.
func (c *Client) UpdatePresence(ctx context.Context, p Presence) error {
	if !p.Status.Valid() {
		return fmt.Errorf("invalid presence status %q", p.Status)
	}
	_, err := c.call(ctx, http.MethodPatch, "/users/@me/settings", p, false)
	return err
}

// UpdateNotificationSettings updates the per-guild notification
// configuration.
func (c *Client) UpdateNotificationSettings(ctx context.Context, guildID string, s NotificationSettings) error {
	s.GuildID = ""
	_, err := c.call(ctx, http.MethodPatch, "/users/@me/guilds/"+guildID+"/settings", s, false)
	return err
}
