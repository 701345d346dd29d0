package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/nidoux/keet/internal/ai"
)

// GetCurrentTime reports the current date and time, optionally in a given
// IANA timezone.
type GetCurrentTime struct{}

func NewGetCurrentTime() *GetCurrentTime { return &GetCurrentTime{} }

func (t *GetCurrentTime) Name() string { return "get_current_time" }

func (t *GetCurrentTime) Description() string {
	return `Get the current date and time.
When to use: the user asks what time or day it is, or a reply depends on the current moment.
Accepts an optional IANA timezone like "America/Bogota"; defaults to UTC.`
}

func (t *GetCurrentTime) Parameters() *ai.ParamSchema {
	return &ai.ParamSchema{
		Type: "object",
		Properties: map[string]*ai.ParamSchema{
			"timezone": {
				Type:        "string",
				Description: "IANA timezone name, e.g. America/Bogota. Defaults to UTC.",
			},
		},
	}
}

func (t *GetCurrentTime) Execute(_ context.Context, args map[string]any) (map[string]any, error) {
	loc := time.UTC
	if tz := optionalStringArg(args, "timezone"); tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("unknown timezone: %s", tz)
		}
	}

	now := time.Now().In(loc)
	return map[string]any{
		"timezone": loc.String(),
		"datetime": now.Format(time.RFC3339),
		"weekday":  now.Weekday().String(),
	}, nil
}

var _ ai.Tool = (*GetCurrentTime)(nil)
