package mailer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"
)

const sendGridEndpoint = "https://api.sendgrid.com/v3/mail/send"

type SendGridClient struct {
	apiKey     string
	fromEmail  string
	httpClient *http.Client
}

func NewSendGridClient(apiKey, fromEmail string) (*SendGridClient, error) {
	if apiKey == "" {
		return nil, errors.New("sendgrid api key is required")
	}
	if fromEmail == "" {
		return nil, errors.New("from email is required")
	}
	return &SendGridClient{
		apiKey:     apiKey,
		fromEmail:  fromEmail,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (c *SendGridClient) Send(templateFile, username, email string, data any) (int, error) {
	subject, body, err := renderTemplate(templateFile, data)
	if err != nil {
		return -1, err
	}

	payload := map[string]any{
		"personalizations": []map[string]any{
			{"to": []map[string]string{{"email": email, "name": username}}},
		},
		"from":    map[string]string{"email": c.fromEmail, "name": FromName},
		"subject": subject,
		"content": []map[string]string{
			{"type": "text/html", "value": body},
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return -1, err
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		req, err := http.NewRequest(http.MethodPost, sendGridEndpoint, bytes.NewReader(raw))
		if err != nil {
			return -1, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(time.Second * time.Duration(i+1))
			continue
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			return resp.StatusCode, nil
		}

		lastErr = fmt.Errorf("sendgrid: http=%d body=%s", resp.StatusCode, string(respBody))
		time.Sleep(time.Second * time.Duration(i+1))
	}

	return -1, fmt.Errorf("failed to send email after %d attempts: %w", maxRetries, lastErr)
}

func renderTemplate(templateFile string, data any) (subject, body string, err error) {
	tmpl, err := template.ParseFS(FS, "templates/"+templateFile)
	if err != nil {
		return "", "", err
	}

	subjBuf := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(subjBuf, "subject", data); err != nil {
		return "", "", err
	}

	bodyBuf := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(bodyBuf, "body", data); err != nil {
		return "", "", err
	}

	return subjBuf.String(), bodyBuf.String(), nil
}
