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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/codewatch/dto"
	"github.com/customeros/codewatch/internal/enum"
	apperrors "github.com/customeros/codewatch/internal/errors"
	"github.com/customeros/codewatch/internal/logger"
	"github.com/customeros/codewatch/internal/models"
	"github.com/customeros/codewatch/services/events"
)

type mockMonitor struct {
	mock.Mock
}

func (m *mockMonitor) Start(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *mockMonitor) Stop() bool {
	return m.Called().Bool(0)
}

func (m *mockMonitor) Active() bool {
	return m.Called().Bool(0)
}

func (m *mockMonitor) RunID() string {
	return m.Called().String(0)
}

func (m *mockMonitor) RequestResync(reason string) bool {
	return m.Called(reason).Bool(0)
}

func (m *mockMonitor) CheckNow(ctx context.Context) ([]models.EmailRecord, error) {
	args := m.Called(ctx)
	records, _ := args.Get(0).([]models.EmailRecord)
	return records, args.Error(1)
}

func (m *mockMonitor) Records(category enum.Category, account string) []models.EmailRecord {
	records, _ := m.Called(category, account).Get(0).([]models.EmailRecord)
	return records
}

func (m *mockMonitor) Stats() models.RecordStats {
	return m.Called().Get(0).(models.RecordStats)
}

func (m *mockMonitor) Status() []models.SessionStatus {
	statuses, _ := m.Called().Get(0).([]models.SessionStatus)
	return statuses
}

func (m *mockMonitor) Accounts() []models.Account {
	accounts, _ := m.Called().Get(0).([]models.Account)
	return accounts
}

func (m *mockMonitor) Settings() models.Settings {
	return m.Called().Get(0).(models.Settings)
}

func (m *mockMonitor) UpdateSettings(update models.SettingsUpdate) (models.Settings, error) {
	args := m.Called(update)
	return args.Get(0).(models.Settings), args.Error(1)
}

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, method, path, body string, register func(r *gin.Engine)) *httptest.ResponseRecorder {
	t.Helper()
	r := gin.New()
	register(r)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func signInRecord(id string) models.EmailRecord {
	return models.EmailRecord{
		ID:        id,
		Account:   "alice@gmail.com",
		Subject:   "Your sign-in code",
		Timestamp: 1700000000,
		Category:  enum.CategorySignInCode,
		Payload:   "8423",
	}
}

func TestHealthCheck(t *testing.T) {
	monitor := &mockMonitor{}
	monitor.On("Active").Return(true)

	w := serve(t, http.MethodGet, "/health", "", func(r *gin.Engine) {
		r.GET("/health", HealthCheck(monitor))
	})

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["monitoring"])
}

func TestStatus_ListsSessions(t *testing.T) {
	monitor := &mockMonitor{}
	monitor.On("Active").Return(true)
	monitor.On("RunID").Return("run-1")
	monitor.On("Status").Return([]models.SessionStatus{{Account: "alice@gmail.com"}})

	w := serve(t, http.MethodGet, "/status", "", func(r *gin.Engine) {
		r.GET("/status", Status(monitor))
	})

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["active"])
	assert.Equal(t, "run-1", body["runId"])
	assert.Len(t, body["accounts"], 1)
}

func TestListEmails_Filtered(t *testing.T) {
	monitor := &mockMonitor{}
	monitor.On("Records", enum.CategorySignInCode, "alice@gmail.com").Return([]models.EmailRecord{signInRecord("7")})

	w := serve(t, http.MethodGet, "/api/emails?type=sign_in_code&account=alice@gmail.com", "", func(r *gin.Engine) {
		r.GET("/api/emails", ListEmails(monitor))
	})

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Emails []models.EmailRecord `json:"emails"`
		Total  int                  `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	assert.Equal(t, "8423", body.Emails[0].Payload)
}

func TestListEmails_UnknownType(t *testing.T) {
	monitor := &mockMonitor{}

	w := serve(t, http.MethodGet, "/api/emails?type=newsletter", "", func(r *gin.Engine) {
		r.GET("/api/emails", ListEmails(monitor))
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	monitor.AssertNotCalled(t, "Records", mock.Anything, mock.Anything)
}

func TestStats(t *testing.T) {
	monitor := &mockMonitor{}
	monitor.On("Active").Return(true)
	monitor.On("Stats").Return(models.RecordStats{
		Total:      3,
		ByCategory: map[enum.Category]int{enum.CategorySignInCode: 2, enum.CategoryHouseholdUpdate: 1},
		ByAccount:  map[string]int{"alice@gmail.com": 3},
	})

	w := serve(t, http.MethodGet, "/api/stats", "", func(r *gin.Engine) {
		r.GET("/api/stats", Stats(monitor))
	})

	body := decode(t, w)
	assert.Equal(t, float64(3), body["total"])
	assert.Equal(t, true, body["monitoringActive"])
	assert.Equal(t, map[string]any{"sign_in_code": float64(2), "household_update": float64(1)}, body["byType"])
}

func TestListAccounts_HidesCredentials(t *testing.T) {
	monitor := &mockMonitor{}
	monitor.On("Accounts").Return([]models.Account{{Address: "alice@gmail.com", Credential: "secret"}})

	w := serve(t, http.MethodGet, "/api/accounts", "", func(r *gin.Engine) {
		r.GET("/api/accounts", ListAccounts(monitor))
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alice@gmail.com")
	assert.NotContains(t, w.Body.String(), "secret")
}

func TestStartMonitoring(t *testing.T) {
	tests := []struct {
		name       string
		started    bool
		err        error
		wantCode   int
		wantStatus string
	}{
		{name: "started", started: true, wantCode: http.StatusOK, wantStatus: "started"},
		{name: "already running", started: false, wantCode: http.StatusOK, wantStatus: "already_running"},
		{name: "no accounts", err: apperrors.ErrNoAccounts, wantCode: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			monitor := &mockMonitor{}
			monitor.On("Start", mock.Anything).Return(tt.started, tt.err)

			w := serve(t, http.MethodPost, "/api/start", "", func(r *gin.Engine) {
				r.POST("/api/start", StartMonitoring(monitor))
			})

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantStatus != "" {
				assert.Equal(t, tt.wantStatus, decode(t, w)["status"])
			}
		})
	}
}

func TestStopMonitoring(t *testing.T) {
	monitor := &mockMonitor{}
	monitor.On("Stop").Return(false)

	w := serve(t, http.MethodPost, "/api/stop", "", func(r *gin.Engine) {
		r.POST("/api/stop", StopMonitoring(monitor))
	})

	assert.Equal(t, "not_running", decode(t, w)["status"])
}

func TestCheckNow_ReportsNewRecords(t *testing.T) {
	monitor := &mockMonitor{}
	monitor.On("CheckNow", mock.Anything).Return([]models.EmailRecord{signInRecord("9")}, nil)
	monitor.On("Stats").Return(models.RecordStats{Total: 4})

	w := serve(t, http.MethodPost, "/api/check", "", func(r *gin.Engine) {
		r.POST("/api/check", CheckNow(monitor))
	})

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["newRecords"])
	assert.Equal(t, float64(4), body["total"])
}

func TestCheckNow_AllAccountsUnreachable(t *testing.T) {
	monitor := &mockMonitor{}
	monitor.On("CheckNow", mock.Anything).Return(nil, apperrors.ErrResyncFailed)

	w := serve(t, http.MethodPost, "/api/check", "", func(r *gin.Engine) {
		r.POST("/api/check", CheckNow(monitor))
	})

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestUpdateSettings(t *testing.T) {
	monitor := &mockMonitor{}
	updated := models.DefaultSettings()
	updated.PollIntervalSeconds = 10
	interval := 10
	monitor.On("UpdateSettings", models.SettingsUpdate{PollIntervalSeconds: &interval}).Return(updated, nil)

	w := serve(t, http.MethodPost, "/api/settings", `{"pollIntervalSeconds": 10}`, func(r *gin.Engine) {
		r.POST("/api/settings", UpdateSettings(monitor))
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(10), decode(t, w)["pollIntervalSeconds"])
}

func TestUpdateSettings_Rejected(t *testing.T) {
	monitor := &mockMonitor{}
	invalid := apperrors.NewMultiErrors()
	invalid.AddConfig(apperrors.NewConfigError("pollIntervalSeconds", "must be between 1 and 3600"))
	monitor.On("UpdateSettings", mock.Anything).Return(models.DefaultSettings(), invalid.ErrorOrNil())

	w := serve(t, http.MethodPost, "/api/settings", `{"pollIntervalSeconds": 0}`, func(r *gin.Engine) {
		r.POST("/api/settings", UpdateSettings(monitor))
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "pollIntervalSeconds")
}

func TestUpdateSettings_MalformedBody(t *testing.T) {
	monitor := &mockMonitor{}

	w := serve(t, http.MethodPost, "/api/settings", `{"pollIntervalSeconds": "fast"}`, func(r *gin.Engine) {
		r.POST("/api/settings", UpdateSettings(monitor))
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	monitor.AssertNotCalled(t, "UpdateSettings", mock.Anything)
}

func TestStream_GreetsThenForwardsEvents(t *testing.T) {
	monitor := &mockMonitor{}
	monitor.On("Active").Return(true)
	monitor.On("Stats").Return(models.RecordStats{Total: 2})
	hub := events.NewHub(logger.NewNopLogger(), 4)

	r := gin.New()
	r.GET("/api/stream", Stream(hub, monitor))
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "event:") {
				lines <- strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			}
		}
		close(lines)
	}()

	nextEvent := func() string {
		select {
		case name := <-lines:
			return name
		case <-time.After(3 * time.Second):
			t.Fatal("no event received")
			return ""
		}
	}

	assert.Equal(t, "connected", nextEvent())

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)
	event := dto.NewEvent(enum.EventNewRecords, time.Now(), dto.NewRecordsEvent{Count: 1, Records: []models.EmailRecord{signInRecord("1")}})
	require.NoError(t, hub.Publish(context.Background(), event))

	assert.Equal(t, "new_records", nextEvent())
}
