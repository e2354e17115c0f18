package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// listEnvelope decodes either a bare JSON array or {"<key>": [...]}.
type listEnvelope[T any] struct {
	key   string
	items []T
}

func (l *listEnvelope[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &l.items)
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return err
	}
	raw, ok := wrapped[l.key]
	if !ok {
		return nil
	}
	return json.Unmarshal(raw, &l.items)
}

// ListGames returns the game catalog.
func (c *Client) ListGames(ctx context.Context) ([]Game, error) {
	out := &listEnvelope[Game]{key: "games"}
	if err := c.do(ctx, http.MethodGet, "/games", nil, nil, out); err != nil {
		return nil, err
	}
	if out.items == nil {
		return []Game{}, nil
	}
	return out.items, nil
}

// CreateGame adds a catalog entry.
func (c *Client) CreateGame(ctx context.Context, game Game) (Game, error) {
	game.ID = ""
	var out Game
	if err := c.do(ctx, http.MethodPost, "/games", nil, game, &out); err != nil {
		return Game{}, err
	}
	return out, nil
}

// UpdateGame replaces an existing catalog entry.
func (c *Client) UpdateGame(ctx context.Context, game Game) (Game, error) {
	if strings.TrimSpace(game.ID) == "" {
		return Game{}, fmt.Errorf("api: game id is required")
	}
	var out Game
	if err := c.do(ctx, http.MethodPut, "/games/"+escape(game.ID), nil, game, &out); err != nil {
		return Game{}, err
	}
	return out, nil
}

// DeleteGame removes a catalog entry.
func (c *Client) DeleteGame(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("api: game id is required")
	}
	return c.do(ctx, http.MethodDelete, "/games/"+escape(id), nil, nil, nil)
}

// ListRules returns every rule section.
func (c *Client) ListRules(ctx context.Context) ([]RuleSection, error) {
	out := &listEnvelope[RuleSection]{key: "rules"}
	if err := c.do(ctx, http.MethodGet, "/rules", nil, nil, out); err != nil {
		return nil, err
	}
	if out.items == nil {
		return []RuleSection{}, nil
	}
	return out.items, nil
}

// CreateRule adds a rule section.
func (c *Client) CreateRule(ctx context.Context, rule RuleSection) (RuleSection, error) {
	rule.ID = ""
	var out RuleSection
	if err := c.do(ctx, http.MethodPost, "/rules", nil, rule, &out); err != nil {
		return RuleSection{}, err
	}
	return out, nil
}

// UpdateRule replaces an existing rule section.
func (c *Client) UpdateRule(ctx context.Context, rule RuleSection) (RuleSection, error) {
	if strings.TrimSpace(rule.ID) == "" {
		return RuleSection{}, fmt.Errorf("api: rule id is required")
	}
	var out RuleSection
	if err := c.do(ctx, http.MethodPut, "/rules/"+escape(rule.ID), nil, rule, &out); err != nil {
		return RuleSection{}, err
	}
	return out, nil
}

// DeleteRule removes a rule section.
func (c *Client) DeleteRule(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("api: rule id is required")
	}
	return c.do(ctx, http.MethodDelete, "/rules/"+escape(id), nil, nil, nil)
}
