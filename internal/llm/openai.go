package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Option func(*OpenAIProvider)

func WithTemperature(t float64) Option {
	return func(o *OpenAIProvider) { o.temperature = &t }
}

func WithMaxOutputTokens(n int64) Option {
	return func(o *OpenAIProvider) {
		if n > 0 {
			o.maxOutputTokens = &n
		}
	}
}

// WithHTTPClient replaces the default otelhttp-instrumented client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *OpenAIProvider) { o.httpClient = c }
}

type OpenAIProvider struct {
	client          *openai.Client
	httpClient      *http.Client
	model           string
	temperature     *float64
	maxOutputTokens *int64
}

func NewOpenAI(baseURL, apiKey, model string, opts ...Option) *OpenAIProvider {
	o := &OpenAIProvider{
		model: model,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(o)
	}

	var reqOpts []option.RequestOption
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, option.WithHTTPClient(o.httpClient))

	client := openai.NewClient(reqOpts...)
	o.client = &client
	return o
}

func (o *OpenAIProvider) Model() string { return o.model }

func (o *OpenAIProvider) ChatStream(ctx context.Context, input []responses.ResponseInputItemUnionParam, tools []responses.ToolUnionParam, onToken func(string)) (*responses.Response, error) {
	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(o.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: input,
		},
		Tools: tools,
	}
	if o.temperature != nil {
		params.Temperature = openai.Float(*o.temperature)
	}
	if o.maxOutputTokens != nil {
		params.MaxOutputTokens = openai.Int(*o.maxOutputTokens)
	}

	slog.Debug("llm: request", "model", o.model, "input_items", len(input), "tools", len(tools))

	stream := o.client.Responses.NewStreaming(ctx, params)
	defer stream.Close()

	var completed *responses.Response

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "response.output_text.delta":
			if event.Delta != "" && onToken != nil {
				onToken(event.Delta)
			}
		case "response.completed":
			resp := event.Response
			completed = &resp
		case "response.failed":
			return nil, fmt.Errorf("response failed: %s", event.Response.Error.Message)
		case "response.incomplete":
			return nil, fmt.Errorf("%w: %s", ErrIncompleteResponse, event.Response.IncompleteDetails.Reason)
		}
	}

	if err := stream.Err(); err != nil {
		return nil, err
	}

	if completed == nil {
		return nil, errors.New("stream ended without a completed response")
	}

	slog.Debug("llm: response",
		"model", completed.Model,
		"input_tokens", completed.Usage.InputTokens,
		"output_tokens", completed.Usage.OutputTokens,
	)
	return completed, nil
}
