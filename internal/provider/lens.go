package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"ideaflow/internal/models"
	"ideaflow/internal/validation"
)

// RemoteLens invokes an external scoring capability over HTTP. The remote
// side receives the idea and the lens name and returns a score with analysis.
type RemoteLens struct {
	Client   *resty.Client
	Endpoint string
	LensName string
}

func NewRemoteLens(endpoint, lensName string, timeout time.Duration) *RemoteLens {
	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &RemoteLens{Client: client, Endpoint: endpoint, LensName: lensName}
}

func (l *RemoteLens) Name() string { return l.LensName }

func (l *RemoteLens) Run(ctx context.Context, idea *models.Idea) (validation.LensResult, error) {
	if l == nil || l.Client == nil || l.Endpoint == "" {
		return validation.LensResult{}, fmt.Errorf("remote lens not configured")
	}
	payload, err := json.Marshal(idea)
	if err != nil {
		return validation.LensResult{}, err
	}
	var out struct {
		Score    float64  `json:"score"`
		Analysis string   `json:"analysis"`
		Flags    []string `json:"flags"`
	}
	resp, err := l.Client.R().
		SetContext(ctx).
		SetBody(map[string]any{"lens": l.LensName, "idea": json.RawMessage(payload)}).
		SetResult(&out).
		Post(l.Endpoint)
	if err != nil {
		return validation.LensResult{}, fmt.Errorf("lens %s: %w", l.LensName, err)
	}
	if resp.IsError() {
		return validation.LensResult{}, fmt.Errorf("lens %s: status %d", l.LensName, resp.StatusCode())
	}
	return validation.LensResult{Score: out.Score, Analysis: out.Analysis, Flags: out.Flags}, nil
}
