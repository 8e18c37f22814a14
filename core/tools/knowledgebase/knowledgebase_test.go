package knowledgebase

import (
	"context"
	"errors"
	"testing"

	"github.com/qdrant/go-client/qdrant"
)

type stubScroller struct {
	points  []*qdrant.RetrievedPoint
	err     error
	request *qdrant.ScrollPoints
}

func (s *stubScroller) Scroll(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error) {
	s.request = request
	return s.points, s.err
}

func TestRetrieveBuildsTextMatchScroll(t *testing.T) {
	scroller := &stubScroller{points: []*qdrant.RetrievedPoint{
		{
			Id: qdrant.NewIDNum(7),
			Payload: qdrant.NewValueMap(map[string]any{
				"content": "Returns are accepted within 30 days.",
				"source":  "policies.md",
				"page":    3,
			}),
		},
	}}
	kb := NewKnowledgeBase(scroller, "docs", WithLimit(3))

	result, err := kb.Retrieve(context.Background(), Params{Query: "returns"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if scroller.request.GetCollectionName() != "docs" {
		t.Fatalf("expected docs collection, got %q", scroller.request.GetCollectionName())
	}
	if scroller.request.GetLimit() != 3 {
		t.Fatalf("expected limit 3, got %d", scroller.request.GetLimit())
	}
	must := scroller.request.GetFilter().GetMust()
	if len(must) != 1 {
		t.Fatalf("expected 1 condition, got %d", len(must))
	}
	field := must[0].GetField()
	if field.GetKey() != "content" || field.GetMatch().GetText() != "returns" {
		t.Fatalf("expected text match on content, got %v", field)
	}

	if len(result.Passages) != 1 {
		t.Fatalf("expected 1 passage, got %d", len(result.Passages))
	}
	passage := result.Passages[0]
	if passage.ID != "7" || passage.Content != "Returns are accepted within 30 days." || passage.Source != "policies.md" {
		t.Fatalf("unexpected passage %+v", passage)
	}
	if passage.Metadata["page"] != int64(3) {
		t.Fatalf("expected page metadata, got %v", passage.Metadata)
	}
}

func TestRetrieveRequiresQuery(t *testing.T) {
	kb := NewKnowledgeBase(&stubScroller{}, "docs")
	if _, err := kb.Retrieve(context.Background(), Params{Query: "  "}); err == nil {
		t.Fatalf("expected error for empty query")
	}
}

func TestRetrieveWrapsScrollError(t *testing.T) {
	scrollErr := errors.New("unavailable")
	kb := NewKnowledgeBase(&stubScroller{err: scrollErr}, "docs")

	if _, err := kb.Retrieve(context.Background(), Params{Query: "x"}); !errors.Is(err, scrollErr) {
		t.Fatalf("expected wrapped scroll error, got %v", err)
	}
}

func TestDialRequiresURL(t *testing.T) {
	if _, err := Dial(Config{}); err == nil {
		t.Fatalf("expected error without url")
	}
}
