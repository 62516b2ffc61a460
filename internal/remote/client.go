// Package remote is the HTTP client for the remote document store that
// keeps a user's emergency contact selections and location log.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/trailguard/internal/apperr"
	"github.com/starford/trailguard/internal/models"
	"github.com/starford/trailguard/internal/ports"
)

var (
	_ ports.ContactStore     = (*Client)(nil)
	_ ports.LocationLogStore = (*Client)(nil)
)

// Client talks to the document store:
//
//	GET  {base}/users/{uid}/emergency_contacts
//	PUT  {base}/users/{uid}/emergency_contacts
//	POST {base}/users/{uid}/locations
type Client struct {
	base  string
	token string
	http  *http.Client
}

// New creates a Client. timeout bounds every request.
func New(baseURL, token string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("remote: invalid base url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:  strings.TrimRight(baseURL, "/"),
		token: token,
		http:  &http.Client{Timeout: timeout},
	}, nil
}

type contactDoc struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
	RawInfo     string `json:"rawInfo,omitempty"`
	IsSelected  bool   `json:"isSelected"`
}

type contactsDoc struct {
	Contacts  []contactDoc `json:"contacts"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

type locationDoc struct {
	UserID       string    `json:"userId"`
	TripID       string    `json:"tripId,omitempty"`
	Type         string    `json:"type"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	BatteryLevel *int      `json:"batteryLevel,omitempty"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

// LoadSelections fetches the stored contact list. A missing document is an
// empty list.
func (c *Client) LoadSelections(ctx context.Context, userID string) ([]models.Contact, error) {
	var doc contactsDoc
	status, err := c.do(ctx, http.MethodGet, c.contactsPath(userID), nil, &doc)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]models.Contact, 0, len(doc.Contacts))
	for _, d := range doc.Contacts {
		out = append(out, models.Contact{
			DisplayName:   d.Name,
			PhoneNumber:   d.PhoneNumber,
			Selected:      d.IsSelected,
			SourceRawForm: d.RawInfo,
		})
	}
	return out, nil
}

// SaveSelections replaces the stored contact list.
func (c *Client) SaveSelections(ctx context.Context, userID string, contacts []models.Contact) error {
	doc := contactsDoc{Contacts: make([]contactDoc, 0, len(contacts)), UpdatedAt: time.Now().UTC()}
	for _, ct := range contacts {
		doc.Contacts = append(doc.Contacts, contactDoc{
			Name:        ct.DisplayName,
			PhoneNumber: ct.PhoneNumber,
			RawInfo:     ct.SourceRawForm,
			IsSelected:  ct.Selected,
		})
	}
	_, err := c.do(ctx, http.MethodPut, c.contactsPath(userID), doc, nil)
	return err
}

// Append adds one record to the user's location log.
func (c *Client) Append(ctx context.Context, rec models.LocationRecord) error {
	doc := locationDoc{
		UserID:       rec.UserID,
		TripID:       rec.JourneyID,
		Type:         string(rec.Alert),
		BatteryLevel: rec.BatteryLevel,
		Message:      rec.Message,
		Timestamp:    rec.CreatedAt.UTC(),
	}
	if rec.Position != nil {
		lat, lon := rec.Position.Latitude, rec.Position.Longitude
		doc.Latitude, doc.Longitude = &lat, &lon
	}
	_, err := c.do(ctx, http.MethodPost, "/users/"+url.PathEscape(rec.UserID)+"/locations", doc, nil)
	return err
}

func (c *Client) contactsPath(userID string) string {
	return "/users/" + url.PathEscape(userID) + "/emergency_contacts"
}

// do performs one JSON request. Transport failures and non-2xx answers wrap
// apperr.ErrStoreUnavailable.
func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("remote: encode: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return 0, fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("remote: %s %s: %v: %w", method, path, err, apperr.ErrStoreUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return resp.StatusCode, fmt.Errorf("remote: %s %s: status %d: %w", method, path, resp.StatusCode, apperr.ErrStoreUnavailable)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("remote: decode %s: %v: %w", path, err, apperr.ErrStoreUnavailable)
		}
	}
	return resp.StatusCode, nil
}
