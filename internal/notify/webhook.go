// Package notify posts publish-run summaries to a webhook.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/CaioWing/apkharbor/internal/domain"
)

const userAgent = "apkharbor webhook"

type WebhookNotifier struct {
	client *resty.Client
	url    string
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)
	return &WebhookNotifier{client: client, url: url}
}

type runPayload struct {
	Event         string         `json:"event"`
	RunID         string         `json:"run_id"`
	Kind          domain.RunKind `json:"kind"`
	ApplicationID string         `json:"application_id"`
	Track         string         `json:"track"`
	VersionCodes  []int64        `json:"version_codes"`
	Status        string         `json:"status"`
	Recovered     bool           `json:"recovered,omitempty"`
	Error         string         `json:"error,omitempty"`
	FinishedAt    *time.Time     `json:"finished_at,omitempty"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, run *domain.PublishRun) error {
	payload := runPayload{
		Event:         "run." + string(run.Status),
		RunID:         run.ID.String(),
		Kind:          run.Kind,
		ApplicationID: run.ApplicationID,
		Track:         run.Track.String(),
		VersionCodes:  run.VersionCodes,
		Status:        string(run.Status),
		Recovered:     run.Recovered,
		Error:         run.Error,
		FinishedAt:    run.FinishedAt,
	}

	res, err := n.client.R().SetContext(ctx).SetBody(payload).Post(n.url)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if res.IsError() {
		return fmt.Errorf("webhook responded with %s: %s", res.Status(), res.String())
	}
	return nil
}
