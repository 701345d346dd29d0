package tools

import (
	"context"

	"github.com/nidoux/keet/internal/ai"
)

// GetWeather reports the current temperature for a location. It does not
// call a real weather service yet; it returns a fixed demo value.
// TODO: back this with a real weather API.
type GetWeather struct{}

func NewGetWeather() *GetWeather { return &GetWeather{} }

func (t *GetWeather) Name() string { return "get_weather" }

func (t *GetWeather) Description() string {
	return "Get current temperature for a given location."
}

func (t *GetWeather) Parameters() *ai.ParamSchema {
	return &ai.ParamSchema{
		Type: "object",
		Properties: map[string]*ai.ParamSchema{
			"location": {
				Type:        "string",
				Description: "City and country e.g. Bogotá, Colombia",
			},
		},
		Required: []string{"location"},
	}
}

func (t *GetWeather) Execute(_ context.Context, args map[string]any) (map[string]any, error) {
	location, err := stringArg(args, "location")
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"location":      location,
		"temperature_c": 22,
	}, nil
}

var _ ai.Tool = (*GetWeather)(nil)
