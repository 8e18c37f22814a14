// Package datetime provides the getDateAndTimeTool tool.
package datetime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/koscakluka/ema-sonic/core/tools"
)

const (
	Name        = "getDateAndTimeTool"
	description = "Get information about the current date and time. Optionally takes an IANA time zone name, defaults to Pacific Time."

	defaultTimezone = "America/Los_Angeles"
)

type Params struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA time zone name such as Europe/Zagreb"`
}

type Result struct {
	FormattedTime string `json:"formattedTime"`
	Date          string `json:"date"`
	Year          int    `json:"year"`
	Month         int    `json:"month"`
	Day           int    `json:"day"`
	DayOfWeek     string `json:"dayOfWeek"`
	Timezone      string `json:"timezone"`
}

type options struct {
	now func() time.Time
}

type Option func(*options)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func New(opts ...Option) tools.Tool {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return tools.New(Name, description, func(ctx context.Context, params Params) (Result, error) {
		zone := strings.TrimSpace(params.Timezone)
		if zone == "" {
			zone = defaultTimezone
		}
		location, err := time.LoadLocation(zone)
		if err != nil {
			return Result{}, fmt.Errorf("unknown time zone %q: %w", zone, err)
		}

		now := o.now().In(location)
		return Result{
			FormattedTime: now.Format("03:04 PM"),
			Date:          now.Format("2006-01-02"),
			Year:          now.Year(),
			Month:         int(now.Month()),
			Day:           now.Day(),
			DayOfWeek:     strings.ToUpper(now.Weekday().String()),
			Timezone:      zone,
		}, nil
	})
}
