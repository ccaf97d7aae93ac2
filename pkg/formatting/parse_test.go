package formatting_test

import (
	"errors"
	"testing"

	"github.com/tiptoro/gateway/pkg/formatting"
)

type analysis struct {
	Summary string   `json:"summary"`
	Nodes   []string `json:"nodes"`
}

func TestParse(t *testing.T) {
	t.Run("direct JSON", func(t *testing.T) {
		got, err := formatting.Parse[analysis](`{"summary":"sign error","nodes":["fractions"]}`)
		if err != nil {
			t.Fatalf("Parse error: %v", err)
		}
		if got.Summary != "sign error" || len(got.Nodes) != 1 {
			t.Errorf("Parse = %+v", got)
		}
	})

	t.Run("markdown fenced JSON", func(t *testing.T) {
		input := "```json\n{\"summary\":\"fenced\",\"nodes\":[]}\n```"
		got, err := formatting.Parse[analysis](input)
		if err != nil {
			t.Fatalf("Parse error: %v", err)
		}
		if got.Summary != "fenced" {
			t.Errorf("Summary = %q, want fenced", got.Summary)
		}
	})

	t.Run("fenced with surrounding prose", func(t *testing.T) {
		input := "Here is the analysis:\n```json\n{\"summary\":\"wrapped\",\"nodes\":[\"algebra\"]}\n```\nDone."
		got, err := formatting.Parse[analysis](input)
		if err != nil {
			t.Fatalf("Parse error: %v", err)
		}
		if got.Summary != "wrapped" {
			t.Errorf("Summary = %q, want wrapped", got.Summary)
		}
	})

	t.Run("fence without language tag", func(t *testing.T) {
		input := "```\n{\"summary\":\"bare\",\"nodes\":[]}\n```"
		got, err := formatting.Parse[analysis](input)
		if err != nil {
			t.Fatalf("Parse error: %v", err)
		}
		if got.Summary != "bare" {
			t.Errorf("Summary = %q, want bare", got.Summary)
		}
	})

	t.Run("prose without JSON returns ErrParseFailed", func(t *testing.T) {
		_, err := formatting.Parse[analysis]("the student made a careless mistake")
		if !errors.Is(err, formatting.ErrParseFailed) {
			t.Errorf("error = %v, want ErrParseFailed", err)
		}
	})

	t.Run("broken JSON in fence returns ErrParseFailed", func(t *testing.T) {
		_, err := formatting.Parse[analysis]("```json\n{broken\n```")
		if !errors.Is(err, formatting.ErrParseFailed) {
			t.Errorf("error = %v, want ErrParseFailed", err)
		}
	})

	t.Run("parses into map type", func(t *testing.T) {
		got, err := formatting.Parse[map[string]any](`{"key":"value"}`)
		if err != nil {
			t.Fatalf("Parse error: %v", err)
		}
		if got["key"] != "value" {
			t.Errorf("got[key] = %v, want value", got["key"])
		}
	})
}
