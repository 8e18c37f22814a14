// Package knowledgebase provides the retrieveKnowledgeBase tool, a full text
// lookup over passages stored in a Qdrant collection.
package knowledgebase

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/koscakluka/ema-sonic/core/tools"
	"github.com/qdrant/go-client/qdrant"
)

const (
	Name        = "retrieveKnowledgeBase"
	description = "Search the knowledge base for passages relevant to a question. Use it before answering questions about products, policies or documentation."

	defaultLimit     = 5
	defaultTextField = "content"
)

// Scroller is the part of the Qdrant client the tool needs.
type Scroller interface {
	Scroll(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
}

type Params struct {
	Query string `json:"query" jsonschema:"description=Question or keywords to search for"`
}

type Passage struct {
	ID       string         `json:"id,omitempty"`
	Content  string         `json:"content"`
	Source   string         `json:"source,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Result struct {
	Passages []Passage `json:"passages"`
}

type Config struct {
	// URL is the Qdrant gRPC address, e.g. "https://example.qdrant.io:6334".
	URL            string
	APIKey         string
	CollectionName string
}

// Dial connects to Qdrant. The returned client should be closed by the caller.
func Dial(cfg Config) (*qdrant.Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}

	rawURL := cfg.URL
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse qdrant url: %w", err)
	}

	port := 6334
	if u.Port() != "" {
		if port, err = strconv.Atoi(u.Port()); err != nil {
			return nil, fmt.Errorf("invalid port: %w", err)
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return client, nil
}

type KnowledgeBase struct {
	scroller       Scroller
	collectionName string
	textField      string
	limit          uint32
}

type Option func(*KnowledgeBase)

// WithTextField sets the payload field that holds passage text. It needs a
// full text index in the collection.
func WithTextField(field string) Option {
	return func(k *KnowledgeBase) {
		k.textField = field
	}
}

func WithLimit(limit uint32) Option {
	return func(k *KnowledgeBase) {
		k.limit = limit
	}
}

func NewKnowledgeBase(scroller Scroller, collectionName string, opts ...Option) *KnowledgeBase {
	k := &KnowledgeBase{
		scroller:       scroller,
		collectionName: collectionName,
		textField:      defaultTextField,
		limit:          defaultLimit,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func New(scroller Scroller, collectionName string, opts ...Option) tools.Tool {
	return tools.New(Name, description, NewKnowledgeBase(scroller, collectionName, opts...).Retrieve)
}

func (k *KnowledgeBase) Retrieve(ctx context.Context, params Params) (Result, error) {
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return Result{}, fmt.Errorf("query is required")
	}

	limit := k.limit
	points, err := k.scroller.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: k.collectionName,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchText(k.textField, query)},
		},
		Limit:       &limit,
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return Result{}, fmt.Errorf("qdrant scroll failed: %w", err)
	}

	passages := make([]Passage, 0, len(points))
	for _, point := range points {
		passages = append(passages, k.toPassage(point))
	}
	return Result{Passages: passages}, nil
}

func (k *KnowledgeBase) toPassage(point *qdrant.RetrievedPoint) Passage {
	passage := Passage{}
	if point.GetId() != nil {
		if uuid := point.GetId().GetUuid(); uuid != "" {
			passage.ID = uuid
		} else {
			passage.ID = strconv.FormatUint(point.GetId().GetNum(), 10)
		}
	}

	for key, value := range point.GetPayload() {
		switch key {
		case k.textField:
			passage.Content = value.GetStringValue()
		case "source", "source_id":
			passage.Source = value.GetStringValue()
		default:
			if passage.Metadata == nil {
				passage.Metadata = map[string]any{}
			}
			passage.Metadata[key] = extractValue(value)
		}
	}
	return passage
}

func extractValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}

	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_ListValue:
		list := make([]any, 0, len(val.ListValue.GetValues()))
		for _, item := range val.ListValue.GetValues() {
			list = append(list, extractValue(item))
		}
		return list
	case *qdrant.Value_StructValue:
		fields := map[string]any{}
		for key, item := range val.StructValue.GetFields() {
			fields[key] = extractValue(item)
		}
		return fields
	}
	return nil
}
