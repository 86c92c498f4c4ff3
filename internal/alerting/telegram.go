package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TelegramDeliverer pushes notifications through the Telegram Bot API.
type TelegramDeliverer struct {
	botToken string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramDeliverer constructs a Telegram delivery channel.
func NewTelegramDeliverer(botToken, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramDeliverer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramDeliverer{
		botToken: botToken,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "telegram_deliverer").Logger(),
	}
}

// Deliver calls the sendMessage API. For private chats the chat id equals
// the recipient's user id.
func (d *TelegramDeliverer) Deliver(ctx context.Context, chatID int64, text string) error {
	payload := map[string]string{
		"chat_id":    strconv.FormatInt(chatID, 10),
		"text":       text,
		"parse_mode": "HTML",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", d.baseURL, d.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return &DeliveryError{ChatID: chatID, Err: err}
	}
	defer resp.Body.Close()

	var result struct {
		OK          bool   `json:"ok"`
		ErrorCode   int    `json:"error_code"`
		Description string `json:"description"`
	}
	if decodeErr := json.NewDecoder(resp.Body).Decode(&result); decodeErr != nil && resp.StatusCode == http.StatusOK {
		return &DeliveryError{ChatID: chatID, Status: resp.StatusCode, Err: decodeErr}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && result.OK {
		d.logger.Debug().Int64("chat_id", chatID).Msg("notification delivered")
		return nil
	}

	return &DeliveryError{
		ChatID:      chatID,
		Status:      resp.StatusCode,
		Description: result.Description,
		Permanent:   classifyPermanent(resp.StatusCode, result.Description),
	}
}

// classifyPermanent decides whether the recipient can never be reached
// again: the bot was blocked, the account is gone, or the chat id is bad.
func classifyPermanent(status int, description string) bool {
	if status == http.StatusForbidden {
		return true
	}
	if status == http.StatusBadRequest {
		desc := strings.ToLower(description)
		return strings.Contains(desc, "chat not found") ||
			strings.Contains(desc, "user is deactivated")
	}
	return false
}

var _ Deliverer = (*TelegramDeliverer)(nil)
