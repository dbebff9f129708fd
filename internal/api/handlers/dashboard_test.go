package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmagar/editcount/internal/dashboard"
	"github.com/jmagar/editcount/internal/models"
	"github.com/jmagar/editcount/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

type fixedSnapshot struct {
	snapshot models.Snapshot
	ok       bool
}

func (f fixedSnapshot) Snapshot() (models.Snapshot, bool) {
	return f.snapshot, f.ok
}

func setupDashboardTestRouter(source SnapshotSource, broadcaster *services.Broadcaster) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	h := NewDashboardHandler(source, broadcaster, "Wedding season", nil)
	router.GET("/", h.Index)
	router.GET("/api/v1/counts", h.GetCounts)
	router.GET("/api/v1/events", h.Events)

	return router
}

func TestDashboardHandler_Index(t *testing.T) {
	scannedAt := time.Now().Add(-2 * time.Hour)
	source := fixedSnapshot{snapshot: models.NewSnapshot(testGroups, scannedAt), ok: true}
	router := setupDashboardTestRouter(source, services.NewBroadcaster())

	w := serve(router, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))

	doc, err := html.Parse(w.Body)
	require.NoError(t, err)

	assert.Equal(t, "3/1/6", dashboard.FindByID(doc, dashboard.IDLabel).FirstChild.Data)
	assert.NotNil(t, dashboard.FindByID(doc, dashboard.IDComplete).FirstChild)
	assert.NotNil(t, dashboard.FindByID(doc, dashboard.IDInProgress).FirstChild)
	assert.Equal(t, "Wedding season", dashboard.FindByID(doc, dashboard.IDHeading).FirstChild.Data)
	assert.Contains(t, dashboard.FindByID(doc, dashboard.IDScanned).FirstChild.Data, "2 hours ago")
}

func TestDashboardHandler_IndexBeforeFirstScan(t *testing.T) {
	router := setupDashboardTestRouter(fixedSnapshot{}, services.NewBroadcaster())

	w := serve(router, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, w.Code)

	doc, err := html.Parse(w.Body)
	require.NoError(t, err)
	assert.Equal(t, "0/0/0", dashboard.FindByID(doc, dashboard.IDLabel).FirstChild.Data)
	assert.Equal(t, "Not scanned yet", dashboard.FindByID(doc, dashboard.IDScanned).FirstChild.Data)
}

func TestDashboardHandler_GetCounts(t *testing.T) {
	tests := []struct {
		name           string
		source         fixedSnapshot
		expectedTotals models.Totals
		expectedGroups int
	}{
		{
			name:           "after scan",
			source:         fixedSnapshot{snapshot: models.NewSnapshot(testGroups, time.Now()), ok: true},
			expectedTotals: models.Totals{Edited: 3, Deleted: 1, Total: 6},
			expectedGroups: 1,
		},
		{
			name:           "before first scan",
			source:         fixedSnapshot{},
			expectedTotals: models.Totals{},
			expectedGroups: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupDashboardTestRouter(tt.source, services.NewBroadcaster())

			w := serve(router, http.MethodGet, "/api/v1/counts")
			require.Equal(t, http.StatusOK, w.Code)

			var response CountsResponse
			decode(t, w, &response)
			assert.True(t, response.Success)
			assert.Equal(t, tt.source.ok, response.Scanned)
			assert.Equal(t, tt.expectedTotals, response.Data.Totals)
			assert.Len(t, response.Data.Groups, tt.expectedGroups)
		})
	}
}

func TestDashboardHandler_GetCountsShape(t *testing.T) {
	source := fixedSnapshot{snapshot: models.NewSnapshot(testGroups, time.Now()), ok: true}
	router := setupDashboardTestRouter(source, services.NewBroadcaster())

	w := serve(router, http.MethodGet, "/api/v1/counts")

	var raw map[string]interface{}
	decode(t, w, &raw)
	album := raw["data"].(map[string]interface{})["groups"].([]interface{})[0].(map[string]interface{})["albums"].([]interface{})[1]
	assert.Equal(t, map[string]interface{}{"album": "Y", "edited": 1.0, "deleted": 1.0, "total": 4.0}, album)
}

func TestDashboardHandler_Events(t *testing.T) {
	broadcaster := services.NewBroadcaster()
	router := setupDashboardTestRouter(fixedSnapshot{}, broadcaster)

	server := httptest.NewServer(router)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/v1/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return broadcaster.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	snapshot := models.NewSnapshot(testGroups, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	broadcaster.Publish(snapshot)

	reader := bufio.NewReader(resp.Body)
	var event, data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")

		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimPrefix(line, "data:")
		}
	}

	assert.Equal(t, EventCounts, event)

	var received models.Snapshot
	require.NoError(t, json.Unmarshal([]byte(data), &received))
	assert.Equal(t, snapshot.Totals, received.Totals)
	assert.True(t, snapshot.ScannedAt.Equal(received.ScannedAt))

	cancel()
	require.Eventually(t, func() bool { return broadcaster.SubscriberCount() == 0 }, time.Second, 5*time.Millisecond)
}
