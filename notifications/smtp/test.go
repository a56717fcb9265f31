package smtp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// SentEmail is a message captured by the MailHog test server.
type SentEmail struct {
	Subject string
	Body    string
}

type mailhogMessages struct {
	Items []struct {
		Content struct {
			Headers map[string][]string `json:"Headers"`
			Body    string              `json:"Body"`
		} `json:"Content"`
	} `json:"items"`
}

// FindEmail returns the first message delivered to the address according to
// the MailHog HTTP API and empties the inbox. It returns io.EOF when nothing
// was delivered to the address.
func (se *Email) FindEmail(ctx context.Context, to string) (*SentEmail, error) {
	found := mailhogMessages{}
	if err := se.mailhog(ctx, http.MethodGet, "/api/v2/search?kind=to&query="+url.QueryEscape(to), &found); err != nil {
		return nil, err
	}
	if len(found.Items) == 0 {
		return nil, io.EOF
	}
	content := found.Items[0].Content
	sent := &SentEmail{
		Subject: strings.Join(content.Headers["Subject"], " "),
		Body:    content.Body,
	}
	return sent, se.mailhog(ctx, http.MethodDelete, "/api/v1/messages", nil)
}

// mailhog calls the MailHog API on the SMTP host and decodes the response
// into out, if any.
func (se *Email) mailhog(ctx context.Context, method, path string, out any) error {
	endpoint := fmt.Sprintf("http://%s:%d%s", se.config.SMTPServer, se.config.TestAPIPort, path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mailhog %s %s: unexpected status code %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}
	return nil
}
