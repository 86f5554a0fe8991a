// Package automod classifies comment text before it is broadcast.
//
// The classifier is a black box that answers with one of four outcomes:
//
//	clean        → the text may be posted
//	flagged      → the text matched one or more categories (Labels)
//	unsupported  → the classifier cannot judge this input (e.g. language)
//	error        → the call itself failed; returned as a Go error
//
// What to do with unsupported and error outcomes is policy and belongs to
// the comment protocol, not here.
package automod

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// Verdict is the classifier's answer for a successful call.
type Verdict int

const (
	Clean Verdict = iota
	Flagged
	Unsupported
)

func (v Verdict) String() string {
	switch v {
	case Clean:
		return "clean"
	case Flagged:
		return "flagged"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Result is a verdict plus the labels that triggered a Flagged verdict.
type Result struct {
	Verdict Verdict
	Labels  []string
}

// Classifier judges a piece of user text.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// Unavailable answers Unsupported for every input. It stands in when no
// classifier is configured, so strict mode still refuses comments.
type Unavailable struct{}

func (Unavailable) Classify(context.Context, string) (Result, error) {
	return Result{Verdict: Unsupported}, nil
}

// New returns an OpenAI-backed classifier, or Unavailable when apiKey is empty.
func New(apiKey string, logger *slog.Logger) Classifier {
	if apiKey == "" {
		logger.Warn("OPENAI_API_KEY not set; automod will report every comment as unsupported")
		return Unavailable{}
	}
	return NewOpenAI(openai.NewClient(apiKey), logger)
}

// OpenAI classifies text with the moderation endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

func NewOpenAI(client *openai.Client, logger *slog.Logger) *OpenAI {
	return &OpenAI{client: client, model: openai.ModerationTextLatest, logger: logger}
}

func (o *OpenAI) Classify(ctx context.Context, text string) (Result, error) {
	resp, err := o.client.Moderations(ctx, openai.ModerationRequest{
		Input: text,
		Model: o.model,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusBadRequest {
			o.logger.Debug("moderation rejected input as unsupported", slog.String("error", apiErr.Message))
			return Result{Verdict: Unsupported}, nil
		}
		return Result{}, fmt.Errorf("automod: moderation call: %w", err)
	}
	if len(resp.Results) == 0 {
		return Result{}, errors.New("automod: moderation returned no results")
	}

	r := resp.Results[0]
	labels := labelsOf(r.Categories)
	if !r.Flagged && len(labels) == 0 {
		return Result{Verdict: Clean}, nil
	}
	return Result{Verdict: Flagged, Labels: labels}, nil
}

func labelsOf(c openai.ResultCategories) []string {
	var labels []string
	add := func(set bool, name string) {
		if set {
			labels = append(labels, name)
		}
	}
	add(c.Hate, "hate")
	add(c.HateThreatening, "hate/threatening")
	add(c.Harassment, "harassment")
	add(c.SelfHarm, "self-harm")
	add(c.Sexual, "sexual")
	add(c.SexualMinors, "sexual/minors")
	add(c.Violence, "violence")
	add(c.ViolenceGraphic, "violence/graphic")
	return labels
}
