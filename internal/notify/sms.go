package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SMSGateway sends through an Africa's Talking style messaging API:
// form-encoded POST, 201 on acceptance.
type SMSGateway struct {
	Client   *http.Client
	URL      string
	Username string
	APIKey   string
	SenderID string
}

func NewSMSGateway(gatewayURL, username, apiKey, senderID string) *SMSGateway {
	return &SMSGateway{
		Client:   &http.Client{Timeout: 30 * time.Second},
		URL:      gatewayURL,
		Username: username,
		APIKey:   apiKey,
		SenderID: senderID,
	}
}

func (g *SMSGateway) Send(ctx context.Context, recipient, message string) error {
	if g.APIKey == "" {
		return Permanent(errors.New("sms gateway not configured"))
	}
	if !strings.HasPrefix(recipient, "+") {
		recipient = "+" + recipient
	}

	form := url.Values{}
	form.Set("username", g.Username)
	form.Set("to", recipient)
	form.Set("message", message)
	if g.SenderID != "" {
		form.Set("from", g.SenderID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("apiKey", g.APIKey)

	resp, err := g.Client.Do(req)
	if err != nil {
		return Transient(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return Permanent(fmt.Errorf("sms gateway rejected message: %s", resp.Status))
	default:
		return Transient(fmt.Errorf("sms gateway error: %s", resp.Status))
	}
}
