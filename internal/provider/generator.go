package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"ideaflow/internal/models"
)

// IdeaGenerator is the opaque idea-generation capability invoked by the
// idea loop. Implementations return fully-populated ideas in generated state.
type IdeaGenerator interface {
	GenerateIdeas(ctx context.Context, domains []string) ([]models.Idea, error)
}

type generatedIdea struct {
	Title      string             `json:"title"`
	Thesis     string             `json:"thesis"`
	AssetClass string             `json:"asset_class"`
	Timeframe  string             `json:"timeframe"`
	Tickers    []models.TickerLeg `json:"tickers"`
	Conviction float64            `json:"conviction"`
	Tags       []string           `json:"tags"`
}

type generateResponse struct {
	Ideas []generatedIdea `json:"ideas"`
}

// HTTPIdeaGenerator calls an external generation endpoint. The endpoint is a
// black box: it receives the domain filter and returns candidate ideas.
type HTTPIdeaGenerator struct {
	Client    *resty.Client
	Endpoint  string
	AgentName string
	Logger    *zap.Logger
}

func NewHTTPIdeaGenerator(endpoint, agentName string, timeout time.Duration, logger *zap.Logger) *HTTPIdeaGenerator {
	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &HTTPIdeaGenerator{
		Client:    client,
		Endpoint:  endpoint,
		AgentName: agentName,
		Logger:    logger,
	}
}

func (g *HTTPIdeaGenerator) GenerateIdeas(ctx context.Context, domains []string) ([]models.Idea, error) {
	if g == nil || g.Client == nil || g.Endpoint == "" {
		return nil, fmt.Errorf("idea generator not configured")
	}
	var out generateResponse
	resp, err := g.Client.R().
		SetContext(ctx).
		SetBody(map[string]any{"domains": domains}).
		SetResult(&out).
		Post(g.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("generate ideas: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("generate ideas: status %d", resp.StatusCode())
	}
	ideas := make([]models.Idea, 0, len(out.Ideas))
	for _, gi := range out.Ideas {
		idea, err := g.toIdea(gi)
		if err != nil {
			if g.Logger != nil {
				g.Logger.Warn("skipping malformed generated idea", zap.Error(err))
			}
			continue
		}
		ideas = append(ideas, idea)
	}
	return ideas, nil
}

func (g *HTTPIdeaGenerator) toIdea(gi generatedIdea) (models.Idea, error) {
	if gi.Title == "" || len(gi.Tickers) == 0 {
		return models.Idea{}, fmt.Errorf("idea missing title or tickers")
	}
	tickers, err := json.Marshal(gi.Tickers)
	if err != nil {
		return models.Idea{}, err
	}
	var tags datatypes.JSON
	if len(gi.Tags) > 0 {
		if raw, err := json.Marshal(gi.Tags); err == nil {
			tags = raw
		}
	}
	return models.Idea{
		ID:          uuid.NewString(),
		Title:       gi.Title,
		Thesis:      gi.Thesis,
		AssetClass:  gi.AssetClass,
		Timeframe:   gi.Timeframe,
		Tickers:     tickers,
		Conviction:  clampConviction(gi.Conviction),
		Status:      models.IdeaStatusGenerated,
		Source:      models.IdeaSourceAgent,
		SourceAgent: g.AgentName,
		Tags:        tags,
	}, nil
}

// StubIdeaGenerator produces deterministic ideas from a small rotating
// catalog. Default when no generator endpoint is configured.
type StubIdeaGenerator struct {
	AgentName string

	cursor uint64
}

var stubCatalog = []generatedIdea{
	{
		Title:      "Mega-cap quality momentum",
		Thesis:     "Large-cap tech balance sheets support continued buybacks; momentum persists while rates stay rangebound. Risk: multiple compression on a rate shock.",
		AssetClass: "equities",
		Timeframe:  "3-6m",
		Tickers: []models.TickerLeg{
			{Ticker: "AAPL", Direction: models.DirectionLong, Weight: 0.5, AssetClass: "equities"},
			{Ticker: "MSFT", Direction: models.DirectionLong, Weight: 0.5, AssetClass: "equities"},
		},
		Conviction: 0.7,
		Tags:       []string{"momentum", "quality"},
	},
	{
		Title:      "Broad market hedge via duration",
		Thesis:     "Long duration as a hedge against growth downside; inverse equity correlation reasserts when inflation normalizes. Risk: supply-driven term premium.",
		AssetClass: "fixed_income",
		Timeframe:  "6-12m",
		Tickers: []models.TickerLeg{
			{Ticker: "TLT", Direction: models.DirectionLong, Weight: 1.0, AssetClass: "etf"},
		},
		Conviction: 0.55,
		Tags:       []string{"hedge", "macro"},
	},
	{
		Title:      "Semis inventory digestion short",
		Thesis:     "Channel inventory remains elevated; consensus estimates have not reset. Short the group until order momentum invalidates the thesis.",
		AssetClass: "equities",
		Timeframe:  "1-3m",
		Tickers: []models.TickerLeg{
			{Ticker: "SOXX", Direction: models.DirectionShort, Weight: 1.0, AssetClass: "etf"},
		},
		Conviction: 0.45,
		Tags:       []string{"contrarian", "semis"},
	},
}

func (g *StubIdeaGenerator) GenerateIdeas(ctx context.Context, domains []string) ([]models.Idea, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := atomic.AddUint64(&g.cursor, 1)
	gi := stubCatalog[int(n-1)%len(stubCatalog)]
	if len(domains) > 0 && !containsDomain(domains, gi.AssetClass) {
		return nil, nil
	}
	tickers, err := json.Marshal(gi.Tickers)
	if err != nil {
		return nil, err
	}
	tags, _ := json.Marshal(gi.Tags)
	name := g.AgentName
	if name == "" {
		name = "idea_generator"
	}
	return []models.Idea{{
		ID:          uuid.NewString(),
		Title:       gi.Title,
		Thesis:      gi.Thesis,
		AssetClass:  gi.AssetClass,
		Timeframe:   gi.Timeframe,
		Tickers:     tickers,
		Conviction:  gi.Conviction,
		Status:      models.IdeaStatusGenerated,
		Source:      models.IdeaSourceAgent,
		SourceAgent: name,
		Tags:        tags,
	}}, nil
}

func containsDomain(domains []string, domain string) bool {
	for _, d := range domains {
		if d == domain {
			return true
		}
	}
	return false
}

func clampConviction(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
