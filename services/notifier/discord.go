package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"sjsage522/listingwatcher/logger"
	apperrors "sjsage522/listingwatcher/pkg/errors"
	"sjsage522/listingwatcher/services/store"
)

// embedColor is the left border color of the embed (Discord blue)
const embedColor = 0x5865F2

// DiscordMessage is the webhook payload
type DiscordMessage struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

// DiscordEmbed is a rich embed of a webhook message
type DiscordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	URL         string         `json:"url"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp"`
	Thumbnail   *DiscordImage  `json:"thumbnail,omitempty"`
	Image       *DiscordImage  `json:"image,omitempty"`
	Fields      []DiscordField `json:"fields"`
}

// DiscordImage references an image by URL
type DiscordImage struct {
	URL string `json:"url"`
}

// DiscordField is a name/value row of an embed
type DiscordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// DiscordNotifier posts new listings to a Discord webhook
type DiscordNotifier struct {
	client     *http.Client
	webhookURL string
	log        *logger.Logger
}

// NewDiscordNotifier creates a webhook notifier
func NewDiscordNotifier(client *http.Client, webhookURL string) *DiscordNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &DiscordNotifier{
		client:     client,
		webhookURL: webhookURL,
		log:        logger.ForNotifier("discord"),
	}
}

// BuildMessage renders the webhook payload for a record
func BuildMessage(record store.Record) DiscordMessage {
	embed := DiscordEmbed{
		Title:       "New listing found on " + record.Source,
		Description: record.Title,
		URL:         record.URL,
		Color:       embedColor,
		Timestamp:   record.DiscoveredAt.UTC().Format(time.RFC3339),
		Fields: []DiscordField{
			{Name: "Price", Value: record.Price, Inline: true},
			{Name: "Link", Value: fmt.Sprintf("[View on %s](%s)", record.Source, record.URL), Inline: true},
		},
	}
	if record.ImageURL != "" {
		embed.Thumbnail = &DiscordImage{URL: record.ImageURL}
		embed.Image = &DiscordImage{URL: record.ImageURL}
	}
	return DiscordMessage{Embeds: []DiscordEmbed{embed}}
}

// Notify posts the record; any non-2xx answer is an error
func (d *DiscordNotifier) Notify(ctx context.Context, record store.Record) error {
	payload, err := json.Marshal(BuildMessage(record))
	if err != nil {
		return apperrors.NewNotify("discord", "encode message", err)
	}

	if logger.IsDebugEnabled() {
		d.log.Debug().RawJSON("payload", payload).Msg("Posting webhook")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return apperrors.NewNotify("discord", "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return apperrors.NewNotify("discord", "post webhook", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperrors.NewNotify("discord", fmt.Sprintf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(body)), nil)
	}

	d.log.Info().Str("id", record.Id).Str("title", record.Title).Msg("Notification sent")
	return nil
}

// Close is a no-op, the HTTP client is shared
func (d *DiscordNotifier) Close() error {
	return nil
}
