package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"inbox-deals-api/internal/backfill"
	"inbox-deals-api/internal/deals"
	"inbox-deals-api/internal/events"
	"inbox-deals-api/internal/jobstore"
	"inbox-deals-api/internal/models"
	"inbox-deals-api/internal/session"
	"inbox-deals-api/internal/upstream"
)

// fakeUpstreamServer simulates the consumed services. promoCount is read
// atomically so tests can grow the promotion list between refresh ticks.
type fakeUpstreamServer struct {
	srv        *httptest.Server
	promoCount int32
	authFail   bool
	startFail  bool
	jobState   models.JobState
}

func newFakeUpstream(t *testing.T) *fakeUpstreamServer {
	t.Helper()

	f := &fakeUpstreamServer{jobState: models.JobStateComplete}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/nylas/auth", func(w http.ResponseWriter, r *http.Request) {
		if f.authFail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(models.AuthInitResponse{AuthURL: "https://oauth.example/consent"})
	})
	mux.HandleFunc("POST /admin/backfill", func(w http.ResponseWriter, r *http.Request) {
		if f.startFail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(models.BackfillResponse{RequestID: "req-1"})
	})
	mux.HandleFunc("GET /admin/backfill/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.JobStatus{
			RequestID:  "req-1",
			State:      f.jobState,
			IsComplete: f.jobState == models.JobStateComplete,
		})
	})
	mux.HandleFunc("GET /api/v1/users/", func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.LoadInt32(&f.promoCount))
		promos := make([]models.RawPromotion, n)
		for i := range promos {
			promos[i] = models.RawPromotion{
				ID:      fmt.Sprintf("p-%d", i),
				Subject: "20% off flights",
				Sale:    &models.RawSale{Brand: "Delta"},
			}
		}
		json.NewEncoder(w).Encode(models.PromotionsResponse{Promotions: promos})
	})

	f.srv = httptest.NewServer(mux)
	return f
}

func setupTestHandler(t *testing.T, fake *fakeUpstreamServer) (*chi.Mux, func()) {
	t.Helper()

	storePath := "./test_handler_" + time.Now().Format("20060102150405.000000000") + ".db"
	store, err := jobstore.NewStore(storePath)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}

	up := upstream.NewClient(fake.srv.URL, time.Second)
	orch := backfill.NewOrchestrator(store, up, "tenant", 90, 50)
	poller := backfill.NewPoller(up, backfill.Policy{Interval: time.Millisecond, MaxAttempts: 5})
	fetcher := deals.NewFetcher(up, nil, nil, 0)
	ev := events.NewManager(false)
	sessions := session.NewManager()
	connector := session.NewConnector(orch, poller, fetcher, ev, nil, 20*time.Millisecond)

	h := NewHandler(up, sessions, connector, ev, Options{
		Provider:    "google",
		RedirectURL: "http://localhost:8080/connected.html",
	})

	r := chi.NewRouter()
	r.Post("/api/connect", h.Connect)
	r.Post("/api/sessions", h.CreateSession)
	r.Get("/api/sessions/{session_id}", h.GetSession)
	r.Get("/api/sessions/{session_id}/deals", h.GetDeals)
	r.Get("/api/sessions/{session_id}/notifications", h.GetNotifications)
	r.Post("/api/sessions/{session_id}/visibility", h.SetVisibility)
	r.Delete("/api/sessions/{session_id}", h.DeleteSession)

	cleanup := func() {
		sessions.Shutdown()
		store.Close()
		os.Remove(storePath)
		fake.srv.Close()
	}

	return r, cleanup
}

func postJSON(t *testing.T, r http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewBuffer(data))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func getJSON(t *testing.T, r http.Handler, path string, dest interface{}) int {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if dest != nil && rr.Code < 300 {
		if err := json.Unmarshal(rr.Body.Bytes(), dest); err != nil {
			t.Fatalf("Failed to unmarshal %s response: %v", path, err)
		}
	}
	return rr.Code
}

// waitForPhase polls the session status endpoint until the wanted phase.
func waitForPhase(t *testing.T, r http.Handler, sessionID, want string) models.SessionResponse {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var snap models.SessionResponse
		if code := getJSON(t, r, "/api/sessions/"+sessionID, &snap); code != http.StatusOK {
			t.Fatalf("Status poll returned %d", code)
		}
		if snap.Phase == want {
			return snap
		}
		if snap.Phase == "failed" && want != "failed" {
			t.Fatalf("Session failed: %s", snap.Error)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Session never reached phase %q", want)
	return models.SessionResponse{}
}

func TestConnect_ReturnsAuthURL(t *testing.T) {
	r, cleanup := setupTestHandler(t, newFakeUpstream(t))
	defer cleanup()

	rr := postJSON(t, r, "/api/connect", models.ConnectRequest{Email: "user@example.com"})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var resp models.ConnectResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.AuthURL != "https://oauth.example/consent" {
		t.Errorf("Unexpected auth URL: %q", resp.AuthURL)
	}
}

func TestConnect_InvalidEmail(t *testing.T) {
	r, cleanup := setupTestHandler(t, newFakeUpstream(t))
	defer cleanup()

	rr := postJSON(t, r, "/api/connect", models.ConnectRequest{Email: "not-an-email"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rr.Code)
	}
}

func TestConnect_UpstreamFailure(t *testing.T) {
	fake := newFakeUpstream(t)
	fake.authFail = true
	r, cleanup := setupTestHandler(t, fake)
	defer cleanup()

	rr := postJSON(t, r, "/api/connect", models.ConnectRequest{Email: "user@example.com"})
	if rr.Code != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", rr.Code)
	}
}

func TestCreateSession_MissingGrant(t *testing.T) {
	r, cleanup := setupTestHandler(t, newFakeUpstream(t))
	defer cleanup()

	rr := postJSON(t, r, "/api/sessions", models.CreateSessionRequest{Email: "user@example.com"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 without grant id, got %d", rr.Code)
	}
}

func TestGetSession_MalformedID(t *testing.T) {
	r, cleanup := setupTestHandler(t, newFakeUpstream(t))
	defer cleanup()

	if code := getJSON(t, r, "/api/sessions/not-a-uuid", nil); code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed session id, got %d", code)
	}
}

func TestConnectFlow_EndToEnd(t *testing.T) {
	fake := newFakeUpstream(t)
	atomic.StoreInt32(&fake.promoCount, 2)
	r, cleanup := setupTestHandler(t, fake)
	defer cleanup()

	rr := postJSON(t, r, "/api/sessions", models.CreateSessionRequest{
		GrantID: "grant-abc123",
		Email:   "user@example.com",
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d. Body: %s", rr.Code, rr.Body.String())
	}

	var created models.SessionResponse
	json.Unmarshal(rr.Body.Bytes(), &created)
	if created.SessionID == "" {
		t.Fatal("Expected a session id")
	}

	snap := waitForPhase(t, r, created.SessionID, "ready")
	if snap.DealCount != 2 {
		t.Errorf("Expected 2 deals after initial load, got %d", snap.DealCount)
	}

	var list models.DealsResponse
	if code := getJSON(t, r, "/api/sessions/"+created.SessionID+"/deals", &list); code != http.StatusOK {
		t.Fatalf("Deals returned %d", code)
	}
	if list.Total != 2 {
		t.Errorf("Expected 2 deals, got %d", list.Total)
	}
	if list.Deals[0].Category != models.CategoryTravel {
		t.Errorf("Expected travel deals, got %s", list.Deals[0].Category)
	}

	// Category filter with no matches.
	var empty models.DealsResponse
	getJSON(t, r, "/api/sessions/"+created.SessionID+"/deals?category=food", &empty)
	if empty.Total != 0 {
		t.Errorf("Expected 0 food deals, got %d", empty.Total)
	}

	// Grow the upstream list; the refresh loop should merge and notify.
	atomic.StoreInt32(&fake.promoCount, 5)

	deadline := time.Now().Add(2 * time.Second)
	var notes models.NotificationsResponse
	for time.Now().Before(deadline) {
		getJSON(t, r, "/api/sessions/"+created.SessionID+"/notifications", &notes)
		if len(notes.Notifications) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(notes.Notifications) == 0 {
		t.Fatal("Expected a refresh notification")
	}
	if notes.Notifications[0].Message != "3 new deals found" {
		t.Errorf("Unexpected notification: %q", notes.Notifications[0].Message)
	}

	// Visibility transitions.
	rr = postJSON(t, r, "/api/sessions/"+created.SessionID+"/visibility", models.VisibilityRequest{Visible: false})
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rr.Code)
	}

	// Logout.
	req := httptest.NewRequest("DELETE", "/api/sessions/"+created.SessionID, nil)
	del := httptest.NewRecorder()
	r.ServeHTTP(del, req)
	if del.Code != http.StatusNoContent {
		t.Errorf("Expected 204 on delete, got %d", del.Code)
	}

	if code := getJSON(t, r, "/api/sessions/"+created.SessionID, nil); code != http.StatusNotFound {
		t.Errorf("Expected 404 after logout, got %d", code)
	}
}

func TestConnectFlow_BackfillStartFails(t *testing.T) {
	fake := newFakeUpstream(t)
	fake.startFail = true
	r, cleanup := setupTestHandler(t, fake)
	defer cleanup()

	rr := postJSON(t, r, "/api/sessions", models.CreateSessionRequest{
		GrantID: "grant-abc123",
		Email:   "user@example.com",
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", rr.Code)
	}

	var created models.SessionResponse
	json.Unmarshal(rr.Body.Bytes(), &created)

	snap := waitForPhase(t, r, created.SessionID, "failed")
	if snap.Error == "" {
		t.Error("Expected a user-visible error message")
	}
}

func TestConnectFlow_JobFailed(t *testing.T) {
	fake := newFakeUpstream(t)
	fake.jobState = models.JobStateFailed
	r, cleanup := setupTestHandler(t, fake)
	defer cleanup()

	rr := postJSON(t, r, "/api/sessions", models.CreateSessionRequest{
		GrantID: "grant-abc123",
		Email:   "user@example.com",
	})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", rr.Code)
	}

	var created models.SessionResponse
	json.Unmarshal(rr.Body.Bytes(), &created)

	waitForPhase(t, r, created.SessionID, "failed")
}
