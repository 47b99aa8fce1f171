package ticket

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"waybill/internal/logger"
	"waybill/pkg/models"
)

// ChatClient is the part of the OpenAI client the completer calls.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// CompleterConfig configures a Completer.
type CompleterConfig struct {
	Model       string
	Temperature float32
	MaxRetries  int
}

// Completer asks a chat model for the ticket fields regex extraction missed.
type Completer struct {
	client ChatClient
	config CompleterConfig
	log    zerolog.Logger
}

type completion struct {
	TripTicket   string `json:"trip_ticket"`
	DeliveryDate string `json:"delivery_date"`
	PlateNo      string `json:"plate_no"`
	Origin       string `json:"origin"`
}

// NewCompleter creates a completer using the OpenAI API.
func NewCompleter(apiKey, model string) (*Completer, error) {
	const op = "NewCompleter"

	if apiKey == "" {
		return nil, fmt.Errorf("%s: OPENAI_API_KEY environment variable is required", op)
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	return NewCompleterWithClient(openai.NewClient(apiKey), CompleterConfig{
		Model:       model,
		Temperature: 0,
		MaxRetries:  3,
	}), nil
}

// NewCompleterWithClient creates a completer with an explicit client.
func NewCompleterWithClient(client ChatClient, config CompleterConfig) *Completer {
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	return &Completer{
		client: client,
		config: config,
		log:    logger.WithComponent("ticket-completion"),
	}
}

// Complete fills d's missing fields from text and returns the names of the
// fields it filled. Fields already present are never overwritten.
func (c *Completer) Complete(ctx context.Context, text string, d *models.TicketData) ([]string, error) {
	const op = "Complete"

	missing := d.MissingFields()
	if len(missing) == 0 {
		return nil, nil
	}

	c.log.Info().
		Strs("missing_fields", missing).
		Str("model", c.config.Model).
		Msg("Asking chat model for missing ticket fields")

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.config.Model,
			Temperature: c.config.Temperature,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: buildPrompt(text, missing)},
			},
			MaxTokens: 300,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%s: %w", op, ctx.Err())
			}
			lastErr = err
			c.log.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("max_retries", c.config.MaxRetries).
				Msg("Chat completion failed, retrying")
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("no response choices")
			continue
		}

		content := resp.Choices[0].Message.Content
		var got completion
		if err := json.Unmarshal([]byte(content), &got); err != nil {
			lastErr = fmt.Errorf("parse completion JSON: %w", err)
			c.log.Warn().
				Err(err).
				Str("response", content).
				Int("attempt", attempt).
				Msg("Unparsable chat completion, retrying")
			continue
		}

		filled := merge(d, got)
		c.log.Info().
			Strs("filled_fields", filled).
			Int("attempt", attempt).
			Msg("Completed ticket fields")
		return filled, nil
	}

	return nil, fmt.Errorf("%s: all %d attempts failed, last error: %w", op, c.config.MaxRetries, lastErr)
}

const systemPrompt = `You read OCR text of Philippine trucking trip tickets.
Reply with a JSON object with the keys trip_ticket, delivery_date, plate_no and origin.
delivery_date must be MM-DD-YYYY. plate_no is three letters, a dash and three or four digits.
Use an empty string for anything the text does not show. Do not guess.`

func buildPrompt(text string, missing []string) string {
	var b strings.Builder
	b.WriteString("Find these fields: ")
	b.WriteString(strings.Join(missing, ", "))
	b.WriteString("\n\nTicket text:\n")
	b.WriteString(text)
	return b.String()
}

// merge copies completed values into empty fields of d.
func merge(d *models.TicketData, got completion) []string {
	var filled []string

	if d.TripTicket == "" {
		if v := strings.TrimSpace(got.TripTicket); v != "" {
			d.TripTicket = v
			filled = append(filled, "trip_ticket")
		}
	}
	if d.DeliveryDate == "" {
		parts := strings.FieldsFunc(strings.TrimSpace(got.DeliveryDate), func(r rune) bool { return r == '-' || r == '/' })
		if len(parts) == 3 {
			if v := normalizeDate(parts[0], parts[1], parts[2]); v != "" {
				d.DeliveryDate = v
				filled = append(filled, "delivery_date")
			}
		}
	}
	if d.PlateNo == "" {
		if v := strings.ToUpper(strings.TrimSpace(got.PlateNo)); v != "" {
			d.PlateNo = strings.ReplaceAll(v, " ", "-")
			filled = append(filled, "plate_no")
		}
	}
	if d.Origin == "" {
		if v := strings.TrimSpace(got.Origin); v != "" {
			d.Origin = v
			filled = append(filled, "origin")
		}
	}

	return filled
}
