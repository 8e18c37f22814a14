package datetime

import (
	"context"
	"testing"
	"time"
)

func TestDateAndTime(t *testing.T) {
	fixed := time.Date(2024, time.March, 9, 18, 30, 0, 0, time.UTC)
	tool := New(WithClock(func() time.Time { return fixed }))

	output, err := tool.Execute(context.Background(), `{"timezone":"UTC"}`)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	result, ok := output.(Result)
	if !ok {
		t.Fatalf("expected Result, got %T", output)
	}
	if result.Date != "2024-03-09" || result.FormattedTime != "06:30 PM" || result.DayOfWeek != "SATURDAY" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestDateAndTimeDefaultsToPacific(t *testing.T) {
	fixed := time.Date(2024, time.March, 9, 6, 0, 0, 0, time.UTC)
	tool := New(WithClock(func() time.Time { return fixed }))

	output, err := tool.Execute(context.Background(), "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	result := output.(Result)
	if result.Timezone != defaultTimezone {
		t.Fatalf("expected %q, got %q", defaultTimezone, result.Timezone)
	}
	if result.Day != 8 {
		t.Fatalf("expected previous day in Pacific Time, got %d", result.Day)
	}
}

func TestDateAndTimeUnknownZone(t *testing.T) {
	if _, err := New().Execute(context.Background(), `{"timezone":"Nowhere/Special"}`); err == nil {
		t.Fatalf("expected error for unknown zone")
	}
}
