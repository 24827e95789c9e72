package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"safe-eye-console/internal/domain/entity"
)

type fakeSession struct {
	token        string
	unauthorized int
}

func (s *fakeSession) AccessToken() (string, bool) { return s.token, s.token != "" }
func (s *fakeSession) HandleUnauthorized()         { s.unauthorized++; s.token = "" }

func newTestClient(t *testing.T, handler http.Handler) (*Client, *fakeSession) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL+"/", time.Second)
	session := &fakeSession{token: "access-1"}
	client.SetSession(session)
	return client, session
}

func TestClient_ObtainTokens(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Empty(t, r.Header.Get("Authorization"))

		var creds entity.Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(entity.Tokens{Access: "a", Refresh: "r"})
	})
	client, session := newTestClient(t, mux)

	tokens, err := client.ObtainTokens(context.Background(), entity.Credentials{Username: "admin", Password: "secret"})
	require.NoError(t, err)
	require.Equal(t, entity.Tokens{Access: "a", Refresh: "r"}, tokens)

	_, err = client.ObtainTokens(context.Background(), entity.Credentials{Username: "admin", Password: "bad"})
	require.ErrorIs(t, err, entity.ErrUnauthorized)
	require.Zero(t, session.unauthorized, "failed login must not end the session")
}

func TestClient_ListIncidentsSendsBearer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/incidents/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `[
			{"id": 2, "incident_type": "accident", "description": "", "location": "Main St",
			 "timestamp": "2025-03-10T08:05:00.123456Z", "reported_by": null, "confidence": 0.87},
			{"id": 1, "incident_type": "normal", "description": "", "location": "",
			 "timestamp": "2025-03-09T10:00:00Z", "reported_by": 4}
		]`)
	})
	client, _ := newTestClient(t, mux)

	incidents, err := client.Incidents().List(context.Background())
	require.NoError(t, err)
	require.Len(t, incidents, 2)
	require.EqualValues(t, 2, incidents[0].ID)
	require.Nil(t, incidents[0].ReportedBy)
	require.InDelta(t, 0.87, *incidents[0].Confidence, 1e-9)
	require.EqualValues(t, 4, *incidents[1].ReportedBy)
}

func TestClient_UnauthorizedEndsSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/incidents/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	client, session := newTestClient(t, mux)

	_, err := client.ListIncidents(context.Background())
	require.ErrorIs(t, err, entity.ErrUnauthorized)
	require.Equal(t, 1, session.unauthorized)
}

func TestClient_StatusError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/notifications/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	client, session := newTestClient(t, mux)

	_, err := client.Notifications().List(context.Background())
	var statusErr *entity.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadGateway, statusErr.Code)
	require.Equal(t, "boom", statusErr.Body)
	require.Zero(t, session.unauthorized)
}

func TestClient_PatchRequests(t *testing.T) {
	var got []string
	mux := http.NewServeMux()
	handler := func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		body, _ := io.ReadAll(r.Body)
		got = append(got, r.URL.Path+" "+string(body))
		_, _ = io.WriteString(w, `{}`)
	}
	mux.HandleFunc("/api/incidents/", handler)
	mux.HandleFunc("/api/notifications/", handler)
	client, _ := newTestClient(t, mux)

	require.NoError(t, client.Incidents().UpdateStatus(context.Background(), 9, entity.IncidentStatusResolved))
	require.NoError(t, client.Notifications().MarkRead(context.Background(), 3))
	require.Equal(t, []string{
		`/api/incidents/9/ {"status":"resolved"}`,
		`/api/notifications/3/ {"is_read":true}`,
	}, got)
}

func TestClient_DetectImage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ai/incident/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		require.Equal(t, "crash.png", header.Filename)
		require.Equal(t, []byte("\x89PNG\r\n\x1a\nrest"), data)

		_, _ = io.WriteString(w, `{"detections":[{"label":"accident","confidence":0.9,"box":[1,2,3,4]}],"total_detections":1}`)
	})
	mux.HandleFunc("/empty/api/ai/incident/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"total_detections":0}`)
	})
	client, _ := newTestClient(t, mux)

	dets, err := client.DetectImage(context.Background(), &entity.ImageUpload{
		Filename: "crash.png",
		Data:     []byte("\x89PNG\r\n\x1a\nrest"),
	})
	require.NoError(t, err)
	require.Len(t, dets, 1)
	require.Equal(t, "accident", dets[0].Label)
	require.Equal(t, entity.Box{X1: 1, Y1: 2, X2: 3, Y2: 4}, *dets[0].Box)

	client.baseURL += "/empty"
	dets, err = client.DetectImage(context.Background(), &entity.ImageUpload{Filename: "a.jpg", Data: []byte{1}})
	require.NoError(t, err)
	require.NotNil(t, dets)
	require.Empty(t, dets)

	_, err = client.DetectImage(context.Background(), nil)
	require.ErrorIs(t, err, entity.ErrNoImage)
}
