package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	pathCheckEligibility = "/application-manager/check-eligibility"
	pathSubmit           = "/application-manager/submit-with-discord"
	pathGrantReapply     = "/application-manager/ceo/grant-reapply/"
	pathManagerAll       = "/applications/manager/all"
	pathManagerAccept    = "/applications/manager/accept/"
	pathManagerReject    = "/applications/manager/reject/"
	pathManagerRoot      = "/applications/manager/"
)

// CheckEligibility asks the backend whether the current user may apply.
func (c *Client) CheckEligibility(ctx context.Context) (Eligibility, error) {
	var out Eligibility
	if err := c.do(ctx, http.MethodPost, pathCheckEligibility, nil, nil, &out); err != nil {
		return Eligibility{}, err
	}
	return out, nil
}

// SubmitApplication sends the flattened wizard answers.
func (c *Client) SubmitApplication(ctx context.Context, fields map[string]string) (SubmitResult, error) {
	if fields == nil {
		fields = map[string]string{}
	}
	var out SubmitResult
	if err := c.do(ctx, http.MethodPost, pathSubmit, nil, fields, &out); err != nil {
		return SubmitResult{}, err
	}
	return out, nil
}

// ListApplications fetches the manager list for one facet.
func (c *Client) ListApplications(ctx context.Context, facet Facet) ([]Application, error) {
	if facet == "" {
		facet = FacetAll
	}
	query := url.Values{"status": []string{string(facet)}}
	var out struct {
		Applications []Application `json:"applications"`
	}
	if err := c.do(ctx, http.MethodGet, pathManagerAll, query, nil, &out); err != nil {
		return nil, err
	}
	if out.Applications == nil {
		return []Application{}, nil
	}
	return out.Applications, nil
}

// AcceptApplication moves a pending application to accepted.
func (c *Client) AcceptApplication(ctx context.Context, id, notes string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("api: application id is required")
	}
	body := map[string]string{"notes": notes}
	return c.do(ctx, http.MethodPost, pathManagerAccept+escape(id), nil, body, nil)
}

// RejectApplication moves a pending application to rejected.
func (c *Client) RejectApplication(ctx context.Context, id, reason string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("api: application id is required")
	}
	body := map[string]string{"reason": reason}
	return c.do(ctx, http.MethodPost, pathManagerReject+escape(id), nil, body, nil)
}

// DeleteApplication removes an application regardless of status.
func (c *Client) DeleteApplication(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("api: application id is required")
	}
	return c.do(ctx, http.MethodDelete, pathManagerRoot+escape(id), nil, nil, nil)
}

// GrantReapply lets a rejected user skip the reapply cooldown.
func (c *Client) GrantReapply(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("api: user id is required")
	}
	return c.do(ctx, http.MethodPost, pathGrantReapply+escape(userID), nil, nil, nil)
}
