// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licenseops/dunning/internal/domain"
	"github.com/licenseops/dunning/internal/metrics"
	"github.com/licenseops/dunning/internal/models"
	"github.com/licenseops/dunning/internal/services/dunning"
	"github.com/licenseops/dunning/internal/services/dunning/email"
	"github.com/licenseops/dunning/internal/services/jobs"
	"github.com/licenseops/dunning/internal/services/ledger"
	"github.com/licenseops/dunning/internal/testdb"
)

const testSecret = "test-shared-secret"

type testEnv struct {
	deps   *Dependencies
	router *chi.Mux
}

type envOption func(cfg *domain.Config)

func withSecret(secret string) envOption {
	return func(cfg *domain.Config) { cfg.SharedSecret = secret }
}

func withEmailProvider(url string) envOption {
	return func(cfg *domain.Config) {
		cfg.EmailAPIURL = url
		cfg.EmailAPIKey = "mail-key"
		cfg.EmailFrom = "billing@example.com"
	}
}

func newTestDependencies(t *testing.T, opts ...envOption) *Dependencies {
	t.Helper()

	cfg := &domain.Config{
		SharedSecret:       testSecret,
		CORSAllowedOrigins: []string{"https://example.com"},
		MetricsEnabled:     true,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	db := testdb.Open(t)
	licenseStore := models.NewLicenseStore(db)
	jobStore := models.NewNotificationJobStore(db)

	ledgerSvc := ledger.NewService(licenseStore)
	jobsSvc := jobs.NewService(jobStore, models.NewNotificationLogStore(db), jobs.WithCountryCode("51"))
	manager := metrics.NewManager(jobStore)

	dispatcher := dunning.NewDispatcher(ledgerSvc, jobsSvc, dunning.Config{
		PaymentURL: "https://pay.example.com",
	},
		dunning.WithEmailSender(email.NewClient(email.ConfigFromDomain(cfg))),
		dunning.WithRecorder(manager.Dispatch),
	)

	return &Dependencies{
		Config:     cfg,
		DB:         db,
		Ledger:     ledgerSvc,
		Scanner:    ledger.NewScanner(licenseStore, nil),
		Jobs:       jobsSvc,
		Dispatcher: dispatcher,
		Metrics:    manager,
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	deps := newTestDependencies(t, opts...)
	router, err := NewServer(deps).Handler()
	require.NoError(t, err)
	return &testEnv{deps: deps, router: router}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) guarded(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, "X-Dunning-Secret", testSecret)
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (e *testEnv) createLicense(t *testing.T, l *models.License) *models.License {
	t.Helper()
	created, err := e.deps.Ledger.Create(context.Background(), l, ledger.CreateOptions{})
	require.NoError(t, err)
	return created
}

func sampleLicense() *models.License {
	next := time.Now().UTC().AddDate(0, 0, 10)
	return &models.License{
		RucOrDni:       "20123456789",
		CompanyName:    "Acme SAC",
		ServiceName:    "ERP Cloud",
		Domain:         "acme.example.com",
		Email:          "billing@acme.example.com",
		PhoneNumber:    "987654321",
		Amount:         decimal.NewFromInt(150),
		Currency:       "PEN",
		Frequency:      models.FrequencyMonthly,
		NextPaymentDue: &next,
	}
}

const jobBody = `{
	"rucOrDni": "20123456789",
	"companyName": "Acme SAC",
	"phoneNumber": "987654321",
	"licenseIds": [7, "8"],
	"severity": "overdue",
	"totalDue": "165.00",
	"message": "Su licencia tiene un saldo pendiente."
}`

func TestGuardedRoutesRejectMissingOrWrongSecret(t *testing.T) {
	env := newTestEnv(t)

	routes := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/license-notification-jobs", ""},
		{http.MethodPost, "/license-notification-jobs", jobBody},
		{http.MethodPost, "/license-notification-jobs", "[" + jobBody + "]"},
		{http.MethodPatch, "/license-notification-jobs/abc", `{"status":"sent"}`},
		{http.MethodPost, "/license-notification-logs", `{}`},
		{http.MethodGet, "/licenses/overdue", ""},
		{http.MethodGet, "/licenses/verify?domain=acme.example.com", ""},
		{http.MethodPost, "/licenses", `{"companyName":"Acme","amount":"10","frequency":"monthly"}`},
		{http.MethodPost, "/licenses/1/send-email", ""},
		{http.MethodPost, "/licenses/1/send-whatsapp", ""},
	}

	for _, rt := range routes {
		rec := env.do(t, rt.method, rt.path, rt.body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s without secret", rt.method, rt.path)

		rec = env.do(t, rt.method, rt.path, rt.body, "X-Dunning-Secret", "wrong")
		assert.Equal(t, http.StatusForbidden, rec.Code, "%s %s with wrong secret", rt.method, rt.path)
	}

	ctx := context.Background()
	found, err := env.deps.Jobs.Find(ctx, models.JobFilter{})
	require.NoError(t, err)
	assert.Empty(t, found, "rejected requests must not create jobs")

	licenses, err := env.deps.Ledger.Find(ctx, models.LicenseFilter{})
	require.NoError(t, err)
	assert.Empty(t, licenses, "rejected requests must not create licenses")
}

func TestGuardFailsClosedWithoutSecret(t *testing.T) {
	env := newTestEnv(t, withSecret(""))

	rec := env.do(t, http.MethodGet, "/license-notification-jobs", "", "X-Dunning-Secret", "anything")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// the internal subset stays reachable
	rec = env.do(t, http.MethodGet, "/license-jobs", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBearerSecretAccepted(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/license-notification-jobs", "", "Authorization", "Bearer "+testSecret)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, rec)["status"])

	rec = env.do(t, http.MethodGet, "/health/readiness", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decodeBody[map[string]string](t, rec)["status"])

	rec = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dunning_notification_jobs")
}

func TestLicenseLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.guarded(t, http.MethodPost, "/licenses", `{
		"rucOrDni": "20123456789",
		"companyName": "Acme SAC",
		"serviceName": "ERP Cloud",
		"domain": "Acme.Example.com",
		"amount": "300",
		"currency": "pen",
		"frequency": "monthly",
		"lateFeePercentage": "10"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeBody[map[string]any](t, rec)
	id := int64(created["id"].(float64))
	assert.Equal(t, "pending", created["status"])
	assert.Equal(t, "PEN", created["currency"])
	assert.Regexp(t, `^LIC-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`, created["licenseKey"])
	require.Contains(t, created, "summary")

	path := "/licenses/" + jsonID(id)

	rec = env.guarded(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.guarded(t, http.MethodGet, "/licenses/verify?domain=acme.example.com", "")
	require.Equal(t, http.StatusOK, rec.Code)
	verify := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, verify["valid"])
	assert.NotNil(t, verify["license"])

	rec = env.guarded(t, http.MethodPost, path+"/renew", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	renewed := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "paid", renewed["license"].(map[string]any)["status"])
	assert.Equal(t, true, renewed["payment"].(map[string]any)["approved"])

	rec = env.guarded(t, http.MethodPost, path+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decodeBody[map[string]any](t, rec)["status"])

	rec = env.guarded(t, http.MethodPut, path, `{
		"companyName": "Acme SAC",
		"amount": "300",
		"frequency": "monthly",
		"status": "pending"
	}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.guarded(t, http.MethodGet, "/licenses/verify?domain=acme.example.com", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody[map[string]any](t, rec)["valid"])
}

func TestLicenseErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.guarded(t, http.MethodPost, "/licenses", `{"companyName":"Acme","frequency":"monthly"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "amount", decodeBody[map[string]any](t, rec)["field"])

	rec = env.guarded(t, http.MethodPost, "/licenses", `{"companyName":"Acme","amount":"10","frequency":"weekly"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.guarded(t, http.MethodGet, "/licenses/999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.guarded(t, http.MethodGet, "/licenses/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.guarded(t, http.MethodGet, "/licenses/verify", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.guarded(t, http.MethodGet, "/licenses/verify?licenseKey=LIC-0000-0000-0000", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env.createLicense(t, sampleLicense())
	dup := sampleLicense()
	_, err := env.deps.Ledger.Create(context.Background(), dup, ledger.CreateOptions{})
	assert.ErrorIs(t, err, models.ErrLicenseConflict)
}

func TestOverdueEndpointHonoursGrace(t *testing.T) {
	env := newTestEnv(t)

	end := time.Now().UTC().AddDate(0, 0, -2)
	inGrace := sampleLicense()
	inGrace.EndDate = &end
	inGrace.GracePeriodDays = 5
	env.createLicense(t, inGrace)

	expiredEnd := time.Now().UTC().AddDate(0, 0, -20)
	expired := sampleLicense()
	expired.Domain = "old.example.com"
	expired.EndDate = &expiredEnd
	expired.GracePeriodDays = 3
	expired.LateFeePercentage = decimal.NewNullDecimal(decimal.NewFromInt(10))
	env.createLicense(t, expired)

	rec := env.guarded(t, http.MethodGet, "/licenses/overdue", "")
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeBody[ledger.ScanResult](t, rec)
	require.Equal(t, 1, result.Count)
	assert.Equal(t, "old.example.com", result.Items[0].Domain)
	assert.Equal(t, ledger.StateExpired, result.Items[0].Summary.Validity.State)
	assert.True(t, result.Items[0].Summary.TotalDue.Equal(decimal.NewFromInt(165)))

	rec = env.guarded(t, http.MethodGet, "/licenses/overdue?grace=true&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decodeBody[ledger.ScanResult](t, rec).Count)

	rec = env.guarded(t, http.MethodGet, "/licenses/overdue?grace=1&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[ledger.ScanResult](t, rec).Count)
}

func TestCreateJobIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	rec := env.guarded(t, http.MethodPost, "/license-notification-jobs", jobBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decodeBody[jobs.UpsertResult](t, rec)
	assert.False(t, first.Duplicate)
	assert.Equal(t, []string{"7", "8"}, first.Job.LicenseIDs)

	reordered := strings.Replace(jobBody, `[7, "8"]`, `["8", 7]`, 1)
	rec = env.guarded(t, http.MethodPost, "/license-notification-jobs", reordered)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decodeBody[jobs.UpsertResult](t, rec)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Job.ID, second.Job.ID)

	rec = env.guarded(t, http.MethodGet, "/license-notification-jobs?status=pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]models.NotificationJob](t, rec), 1)

	rec = env.guarded(t, http.MethodGet, "/license-notification-jobs/"+first.Job.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.guarded(t, http.MethodGet, "/license-notification-jobs?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateJobRequiresSeverityOnGuardedRoute(t *testing.T) {
	env := newTestEnv(t)

	body := strings.Replace(jobBody, `"severity": "overdue",`, "", 1)

	rec := env.guarded(t, http.MethodPost, "/license-notification-jobs", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "severity", decodeBody[map[string]any](t, rec)["field"])

	rec = env.do(t, http.MethodPost, "/license-jobs", body)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestGuardedBatchIsPerItem(t *testing.T) {
	env := newTestEnv(t)

	invalid := `{"rucOrDni":"1","licenseIds":["1"],"message":"hola"}`
	rec := env.guarded(t, http.MethodPost, "/license-notification-jobs", "["+jobBody+","+invalid+","+jobBody+"]")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Results   []jobs.BatchItemResult `json:"results"`
		Created   int                    `json:"created"`
		Duplicate int                    `json:"duplicate"`
		Failed    int                    `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 3)
	assert.Equal(t, 1, resp.Created)
	assert.Equal(t, 1, resp.Duplicate)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, http.StatusBadRequest, resp.Results[1].Status)
	assert.Equal(t, "severity", resp.Results[1].Field)

	rec = env.guarded(t, http.MethodPost, "/license-notification-jobs", "["+invalid+","+invalid+"]")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.guarded(t, http.MethodPost, "/license-notification-jobs", "[]")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInternalBatchIsAllOrNothing(t *testing.T) {
	env := newTestEnv(t)

	missingMessage := `{"rucOrDni":"1","licenseIds":["1"]}`
	rec := env.do(t, http.MethodPost, "/license-jobs", "["+jobBody+","+missingMessage+"]")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "message", body["field"])
	assert.EqualValues(t, 1, body["index"])

	found, err := env.deps.Jobs.Find(context.Background(), models.JobFilter{})
	require.NoError(t, err)
	assert.Empty(t, found, "nothing may be stored when one item is invalid")

	rec = env.do(t, http.MethodPost, "/license-jobs", "["+jobBody+"]")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/license-jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]models.NotificationJob](t, rec), 1)

	// the internal subset has no PATCH
	rec = env.do(t, http.MethodPatch, "/license-jobs/whatever", `{"status":"sent"}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPatchJobDropsUnknownKeys(t *testing.T) {
	env := newTestEnv(t)

	rec := env.guarded(t, http.MethodPost, "/license-notification-jobs", jobBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	job := decodeBody[jobs.UpsertResult](t, rec).Job

	rec = env.guarded(t, http.MethodPatch, "/license-notification-jobs/"+job.ID, `{
		"status": "sent",
		"attempts": 2,
		"sentAt": "2024-03-01T10:00:00Z",
		"hash": "tampered",
		"rucOrDni": "99999999"
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	patched := decodeBody[models.NotificationJob](t, rec)
	assert.Equal(t, models.JobStatusSent, patched.Status)
	assert.Equal(t, 2, patched.Attempts)
	require.NotNil(t, patched.SentAt)
	assert.Equal(t, job.Hash, patched.Hash)
	assert.Equal(t, "20123456789", patched.RucOrDni)

	rec = env.guarded(t, http.MethodPatch, "/license-notification-jobs/"+job.ID, `{"status":"archived"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.guarded(t, http.MethodPatch, "/license-notification-jobs/"+job.ID, `{"attempts":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.guarded(t, http.MethodPatch, "/license-notification-jobs/"+job.ID, `{"hash":"only-unknown"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.guarded(t, http.MethodPatch, "/license-notification-jobs/missing", `{"status":"failed"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotificationLogs(t *testing.T) {
	env := newTestEnv(t)

	rec := env.guarded(t, http.MethodPost, "/license-notification-logs", `{
		"jobId": "job-1",
		"rucOrDni": "20123456789",
		"licenseIds": [7],
		"severity": "overdue",
		"totalDue": "165.00",
		"messageLength": 120,
		"conversationId": "901",
		"sentAt": "2024-03-01T10:00:00Z"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.guarded(t, http.MethodPost, "/license-notification-logs", `{
		"rucOrDni": "20123456789",
		"licenseIds": [7],
		"severity": "overdue",
		"totalDue": "165.00"
	}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "sentAt", decodeBody[map[string]any](t, rec)["field"])

	rec = env.guarded(t, http.MethodGet, "/license-notification-logs?jobId=job-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decodeBody[[]models.NotificationLog](t, rec)
	require.Len(t, logs, 1)
	assert.Equal(t, []string{"7"}, logs[0].LicenseIDs)
	assert.Equal(t, 120, logs[0].MessageLength)
}

func TestSendEmailEndpoint(t *testing.T) {
	var (
		calls   atomic.Int32
		failing atomic.Bool
	)
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer mail-key", r.Header.Get("Authorization"))
		if failing.Load() {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"message":"invalid recipient"}`))
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id":"msg_123"}`))
	}))
	t.Cleanup(provider.Close)

	env := newTestEnv(t, withEmailProvider(provider.URL))
	l := env.createLicense(t, sampleLicense())
	path := "/licenses/" + jsonID(l.ID) + "/send-email"

	rec := env.guarded(t, http.MethodPost, path, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decodeBody[dunning.EmailResult](t, rec)
	assert.True(t, result.Success)
	assert.Equal(t, "msg_123", result.MessageID)

	logs, err := env.deps.Jobs.ListLogs(context.Background(), models.NotificationLogFilter{RucOrDni: l.RucOrDni})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, dunning.ChannelEmail, logs[0].Channel)

	failing.Store(true)
	rec = env.guarded(t, http.MethodPost, path, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeBody[map[string]any](t, rec)["details"], "invalid recipient")
	assert.EqualValues(t, 2, calls.Load())

	noEmail := sampleLicense()
	noEmail.Domain = "noemail.example.com"
	noEmail.Email = ""
	l2 := env.createLicense(t, noEmail)
	rec = env.guarded(t, http.MethodPost, "/licenses/"+jsonID(l2.ID)+"/send-email", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.EqualValues(t, 2, calls.Load())
}

func TestSendEmailWithoutProvider(t *testing.T) {
	env := newTestEnv(t)
	l := env.createLicense(t, sampleLicense())

	rec := env.guarded(t, http.MethodPost, "/licenses/"+jsonID(l.ID)+"/send-email", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeBody[map[string]any](t, rec)["error"], "not configured")
}

func TestSendChatWithoutPlatform(t *testing.T) {
	env := newTestEnv(t)
	l := env.createLicense(t, sampleLicense())

	rec := env.guarded(t, http.MethodPost, "/licenses/"+jsonID(l.ID)+"/send-whatsapp", `{"stage":"before_7"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = env.guarded(t, http.MethodPost, "/licenses/"+jsonID(l.ID)+"/send-whatsapp", `{"stage":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResponsesAreCompressed(t *testing.T) {
	env := newTestEnv(t)

	for i := range 20 {
		body := strings.Replace(jobBody, `"message": "`, `"message": "`+strings.Repeat("x", i+1)+` `, 1)
		rec := env.guarded(t, http.MethodPost, "/license-notification-jobs", body)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/license-notification-jobs", nil)
	req.Header.Set("X-Dunning-Secret", testSecret)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	assert.False(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("[")))
}

func jsonID(id int64) string {
	return strconv.FormatInt(id, 10)
}
