package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hedeqiang/telreg/broadcast"
	"github.com/hedeqiang/telreg/status"
)

// DataConnectionFailed is the notify endpoint for failed data connection
// attempts. It has no status field of its own.
const DataConnectionFailed = "data_connection_failed"

// NotifyRequest is the body of POST /v1/notify/{field}. Only the members
// used by the target field are read:
//
//	call_state              state, incomingNumber
//	service_state           serviceState
//	signal_strength         asu
//	message_waiting         value
//	call_forwarding         value
//	data_activity           activity
//	data_connection         state, possible, reason, apn, iface
//	data_connection_failed  reason
//	cell_location           cellLocation
type NotifyRequest struct {
	State          string               `json:"state,omitempty"`
	IncomingNumber string               `json:"incomingNumber,omitempty"`
	ServiceState   *status.ServiceState `json:"serviceState,omitempty"`
	ASU            *int                 `json:"asu,omitempty"`
	Value          *bool                `json:"value,omitempty"`
	Activity       string               `json:"activity,omitempty"`
	Possible       bool                 `json:"possible,omitempty"`
	Reason         string               `json:"reason,omitempty"`
	APN            string               `json:"apn,omitempty"`
	Iface          string               `json:"iface,omitempty"`
	CellLocation   status.CellLocation  `json:"cellLocation,omitempty"`
}

// StatusError is returned when the server answers with an unexpected
// status code.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport/http: HTTP %d: %s", e.Code, e.Body)
}

// HTTP is a client for the registry's HTTP endpoints.
type HTTP struct {
	base   string
	token  string
	client *http.Client
}

// NewHTTP creates a client for the server at base. token, when set, is
// sent as a bearer token.
func NewHTTP(base, token string) *HTTP {
	return &HTTP{
		base:   joinPath(base, ""),
		token:  token,
		client: &http.Client{},
	}
}

// Notify posts an update for field.
func (h *HTTP) Notify(ctx context.Context, field string, req NotifyRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("transport/http: marshal request: %w", err)
	}
	_, err = h.do(ctx, http.MethodPost, "/v1/notify/"+url.PathEscape(field), body, http.StatusNoContent)
	return err
}

// Dump fetches the registry dump in format ("text" or "json").
func (h *HTTP) Dump(ctx context.Context, format string) ([]byte, error) {
	return h.do(ctx, http.MethodGet, "/v1/dump?format="+url.QueryEscape(format), nil, http.StatusOK)
}

// Sticky fetches the last announcement retained for topic.
func (h *HTTP) Sticky(ctx context.Context, topic string) (broadcast.Announcement, error) {
	data, err := h.do(ctx, http.MethodGet, "/v1/sticky/"+url.PathEscape(topic), nil, http.StatusOK)
	if err != nil {
		return broadcast.Announcement{}, err
	}
	var a broadcast.Announcement
	if err := json.Unmarshal(data, &a); err != nil {
		return broadcast.Announcement{}, fmt.Errorf("transport/http: unmarshal announcement: %w", err)
	}
	return a, nil
}

func (h *HTTP) do(ctx context.Context, method, path string, body []byte, want int) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.base+path, rd)
	if err != nil {
		return nil, fmt.Errorf("transport/http: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport/http: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport/http: read response: %w", err)
	}

	if resp.StatusCode != want {
		text := string(respBody)
		if len(text) > 256 {
			text = text[:256]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: text}
	}
	return respBody, nil
}
