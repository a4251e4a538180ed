package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gitshopapp/paypal-webhooks/internal/paypal"
)

// Webhook is one named receiver served at /webhooks/paypal/{name}.
type Webhook struct {
	Name      string `yaml:"name"`
	WebhookID string `yaml:"webhook_id"`
	Simulator bool   `yaml:"simulator"`
}

type webhooksFile struct {
	Webhooks []Webhook `yaml:"webhooks"`
}

var webhookNamePattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// LoadWebhooks reads and validates a receivers file.
func LoadWebhooks(path string) ([]Webhook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhooks file: %w", err)
	}

	webhooks, err := ParseWebhooks(data)
	if err != nil {
		return nil, fmt.Errorf("webhooks file %s: %w", path, err)
	}
	return webhooks, nil
}

// ParseWebhooks decodes a receivers document. Unknown keys are rejected.
// Simulator receivers always verify against the simulator webhook id.
func ParseWebhooks(data []byte) ([]Webhook, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var file webhooksFile
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	if len(file.Webhooks) == 0 {
		return nil, fmt.Errorf("no webhooks declared")
	}

	seen := make(map[string]struct{}, len(file.Webhooks))
	webhooks := make([]Webhook, 0, len(file.Webhooks))
	for i, webhook := range file.Webhooks {
		webhook.Name = strings.TrimSpace(webhook.Name)
		webhook.WebhookID = strings.TrimSpace(webhook.WebhookID)

		if !webhookNamePattern.MatchString(webhook.Name) {
			return nil, fmt.Errorf("webhooks[%d]: name %q must match [a-z0-9-]+", i, webhook.Name)
		}
		if _, dup := seen[webhook.Name]; dup {
			return nil, fmt.Errorf("webhooks[%d]: duplicate name %q", i, webhook.Name)
		}
		seen[webhook.Name] = struct{}{}

		if webhook.Simulator {
			webhook.WebhookID = paypal.SimulatorWebhookID
		} else if webhook.WebhookID == "" {
			return nil, fmt.Errorf("webhooks[%d]: webhook_id is required for %q", i, webhook.Name)
		}

		webhooks = append(webhooks, webhook)
	}

	return webhooks, nil
}
