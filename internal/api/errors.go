package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Detail is the decoded "detail" member of an error response. It is one of
// StringDetail or StructuredDetail; anything else decodes to nil.
type Detail interface {
	isDetail()
}

// StringDetail is a plain message meant to be shown verbatim.
type StringDetail string

// StructuredDetail is an eligibility-style error carrying a machine reason.
type StructuredDetail struct {
	Reason        string `json:"reason"`
	Message       string `json:"message,omitempty"`
	DaysRemaining *int   `json:"days_remaining,omitempty"`
}

func (StringDetail) isDetail()     {}
func (StructuredDetail) isDetail() {}

// ParseDetail resolves the detail shape of an error body once, at the call
// boundary. Bodies without a usable detail return nil.
func ParseDetail(body []byte) Detail {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return nil
	}
	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return StringDetail(text)
	}
	var structured StructuredDetail
	if err := json.Unmarshal(envelope.Detail, &structured); err == nil && strings.TrimSpace(structured.Reason) != "" {
		return structured
	}
	return nil
}

// APIError is returned for every non-2xx response.
type APIError struct {
	Method    string
	Path      string
	Status    int
	Detail    Detail
	RequestID string
}

func (e *APIError) Error() string {
	base := fmt.Sprintf("api: %s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
	switch d := e.Detail.(type) {
	case StringDetail:
		return base + ": " + string(d)
	case StructuredDetail:
		if d.Message != "" {
			return fmt.Sprintf("%s: %s (%s)", base, d.Message, d.Reason)
		}
		return fmt.Sprintf("%s: %s", base, d.Reason)
	}
	return base
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// DetailOf extracts the decoded detail from err, if any.
func DetailOf(err error) Detail {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return nil
}

// Message turns err into user-facing text: a string detail verbatim, a
// structured detail's message, or fallback for everything else.
func Message(err error, fallback string) string {
	switch d := DetailOf(err).(type) {
	case StringDetail:
		return string(d)
	case StructuredDetail:
		if msg := strings.TrimSpace(d.Message); msg != "" {
			return msg
		}
	}
	return fallback
}
