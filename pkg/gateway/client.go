// Package gateway talks to the tour-generation backend.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"cicerone/pkg/model"
	"cicerone/pkg/request"
)

// Kind classifies gateway failures.
type Kind string

const (
	KindTransport Kind = "transport"
	KindStatus    Kind = "status"
	KindDecode    Kind = "decode"
	KindEmpty     Kind = "empty"
)

// Error is a typed gateway failure. HTTPStatus is zero unless Kind is
// KindStatus. Callers map it to an error state and a notification; the
// gateway never retries beyond the transport layer's own policy.
type Error struct {
	Kind       Kind
	HTTPStatus int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("gateway: %s (status %d)", e.Message, e.HTTPStatus)
	}
	return "gateway: " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NextRecordParams carries the per-fetch inputs for the next narration record.
type NextRecordParams struct {
	Lat          float64
	Lng          float64
	DurationHint string
	UserText     string
	Pace         string
	LLMVariant   string
	VoiceVariant string
}

// recordRequest is the wire shape of the next-record request body.
type recordRequest struct {
	Duration string `json:"duration"`
	Point    struct {
		Lat string `json:"lat"`
		Lng string `json:"lng"`
	} `json:"point"`
	UserText  string `json:"user_text"`
	Pace      string `json:"pace"`
	TypeLLM   string `json:"type_llm"`
	TypeVoice string `json:"type_voice"`
}

type recordResponse struct {
	Record *model.TourRecord `json:"record"`
}

// Client fetches tour records from the backend over the queued HTTP client.
type Client struct {
	http    *request.Client
	baseURL string
	token   string
}

// NewClient creates a gateway client. token may be empty for backends
// without auth.
func NewClient(http *request.Client, baseURL, token string) *Client {
	return &Client{
		http:    http,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// NextRecord requests the next narration record for a tour at a position.
func (c *Client) NextRecord(ctx context.Context, tourID string, p NextRecordParams) (*model.TourRecord, error) {
	var body recordRequest
	body.Duration = p.DurationHint
	body.Point.Lat = formatCoord(p.Lat)
	body.Point.Lng = formatCoord(p.Lng)
	body.UserText = p.UserText
	body.Pace = p.Pace
	body.TypeLLM = p.LLMVariant
	body.TypeVoice = p.VoiceVariant

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Kind: KindDecode, Message: "failed to encode request", Cause: err}
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"X-Request-Id": uuid.NewString(),
	}
	if c.token != "" {
		headers["Authorization"] = "Bearer " + c.token
	}

	u := fmt.Sprintf("%s/tours/%s/next", c.baseURL, tourID)
	respBody, err := c.http.Post(ctx, u, payload, headers)
	if err != nil {
		var statusErr *request.StatusError
		if errors.As(err, &statusErr) {
			return nil, &Error{
				Kind:       KindStatus,
				HTTPStatus: statusErr.StatusCode,
				Message:    "backend rejected record request",
				Cause:      err,
			}
		}
		return nil, &Error{Kind: KindTransport, Message: "record request failed", Cause: err}
	}

	var resp recordResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &Error{Kind: KindDecode, Message: "unreadable record response", Cause: err}
	}
	if resp.Record == nil {
		return nil, &Error{Kind: KindEmpty, Message: "response carried no record"}
	}
	return resp.Record, nil
}

// GetTour fetches tour metadata.
func (c *Client) GetTour(ctx context.Context, tourID string) (*model.Tour, error) {
	headers := map[string]string{}
	if c.token != "" {
		headers["Authorization"] = "Bearer " + c.token
	}

	u := fmt.Sprintf("%s/tours/%s", c.baseURL, tourID)
	respBody, err := c.http.GetWithHeaders(ctx, u, headers, "")
	if err != nil {
		var statusErr *request.StatusError
		if errors.As(err, &statusErr) {
			return nil, &Error{
				Kind:       KindStatus,
				HTTPStatus: statusErr.StatusCode,
				Message:    "backend rejected tour request",
				Cause:      err,
			}
		}
		return nil, &Error{Kind: KindTransport, Message: "tour request failed", Cause: err}
	}

	var tour model.Tour
	if err := json.Unmarshal(respBody, &tour); err != nil {
		return nil, &Error{Kind: KindDecode, Message: "unreadable tour response", Cause: err}
	}
	return &tour, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
