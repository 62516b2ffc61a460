package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/trailguard/internal/apperr"
	"github.com/starford/trailguard/internal/models"
)

// docStore is an in-memory stand-in for the document store.
type docStore struct {
	mu        sync.Mutex
	contacts  map[string]contactsDoc
	locations []locationDoc
	auth      string
	fail      bool
}

func newDocStore() *docStore {
	return &docStore{contacts: make(map[string]contactsDoc)}
}

func (s *docStore) router() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.mu.Lock()
			s.auth = r.Header.Get("Authorization")
			fail := s.fail
			s.mu.Unlock()
			if fail {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Get("/users/{uid}/emergency_contacts", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		doc, ok := s.contacts[chi.URLParam(r, "uid")]
		s.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(doc)
	})
	r.Put("/users/{uid}/emergency_contacts", func(w http.ResponseWriter, r *http.Request) {
		var doc contactsDoc
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.contacts[chi.URLParam(r, "uid")] = doc
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/users/{uid}/locations", func(w http.ResponseWriter, r *http.Request) {
		var doc locationDoc
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.locations = append(s.locations, doc)
		s.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	return r
}

func TestClient_SelectionsRoundTrip(t *testing.T) {
	ds := newDocStore()
	srv := httptest.NewServer(ds.router())
	defer srv.Close()

	c, err := New(srv.URL+"/", "tok", time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	got, err := c.LoadSelections(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got, "missing document is an empty list")

	in := []models.Contact{
		{DisplayName: "Mom", PhoneNumber: "+919876543210", Selected: true, SourceRawForm: "98765 43210"},
		{DisplayName: "Dad", PhoneNumber: "+919876543211"},
	}
	require.NoError(t, c.SaveSelections(ctx, "u1", in))
	assert.Equal(t, "Bearer tok", ds.auth)

	got, err = c.LoadSelections(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestClient_AppendLocation(t *testing.T) {
	ds := newDocStore()
	srv := httptest.NewServer(ds.router())
	defer srv.Close()

	c, err := New(srv.URL, "", time.Second)
	require.NoError(t, err)

	battery := 42
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, c.Append(context.Background(), models.LocationRecord{
		JourneyID:    "j1",
		UserID:       "u1",
		Alert:        models.AlertSOS,
		Position:     &models.Position{Latitude: 12.5, Longitude: 77.25},
		BatteryLevel: &battery,
		Message:      "EMERGENCY",
		CreatedAt:    at,
	}))
	require.NoError(t, c.Append(context.Background(), models.LocationRecord{
		UserID:    "u1",
		Alert:     models.AlertSOS,
		Message:   "no fix",
		CreatedAt: at,
	}))

	require.Len(t, ds.locations, 2)
	first := ds.locations[0]
	assert.Equal(t, "j1", first.TripID)
	assert.Equal(t, "sos", first.Type)
	require.NotNil(t, first.Latitude)
	assert.InDelta(t, 12.5, *first.Latitude, 1e-9)
	assert.Equal(t, 42, *first.BatteryLevel)
	assert.True(t, at.Equal(first.Timestamp))
	assert.Nil(t, ds.locations[1].Latitude)
	assert.Empty(t, ds.auth)
}

func TestClient_FailuresWrapStoreUnavailable(t *testing.T) {
	ds := newDocStore()
	ds.fail = true
	srv := httptest.NewServer(ds.router())

	c, err := New(srv.URL, "", time.Second)
	require.NoError(t, err)

	_, err = c.LoadSelections(context.Background(), "u1")
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
	assert.ErrorIs(t, c.SaveSelections(context.Background(), "u1", nil), apperr.ErrStoreUnavailable)

	srv.Close()
	_, err = c.LoadSelections(context.Background(), "u1")
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New("not a url", "", 0)
	assert.Error(t, err)
	_, err = New("", "", 0)
	assert.Error(t, err)
}
