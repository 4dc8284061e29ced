// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package jobs

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/licenseops/dunning/internal/models"
	"github.com/licenseops/dunning/internal/testdb"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := testdb.Open(t)
	return NewService(models.NewNotificationJobStore(db), models.NewNotificationLogStore(db), WithCountryCode("51"))
}

func TestUpsertIsIdempotent(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := t.Context()

	first, err := svc.Upsert(ctx, basePayload(), ValidateOptions{RequireSeverity: true})
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.Equal(t, models.JobStatusPending, first.Job.Status)
	assert.Equal(t, 0, first.Job.Attempts)

	again := basePayload()
	again.LicenseIDs = IDList{"7", "12"}
	again.CompanyName = "changed"
	second, err := svc.Upsert(ctx, again, ValidateOptions{RequireSeverity: true})
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Job.ID, second.Job.ID)
	assert.Equal(t, "Acme SAC", second.Job.CompanyName, "existing job must stay unmodified")
}

func TestUpsertTreatsPhoneFormatsAsOneRecipient(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := t.Context()

	local := basePayload()
	local.PhoneNumber = "987654321"
	first, err := svc.Upsert(ctx, local, ValidateOptions{})
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	formatted := basePayload()
	formatted.PhoneNumber = "+51 987 654 321"
	second, err := svc.Upsert(ctx, formatted, ValidateOptions{})
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Job.ID, second.Job.ID)
}

func TestUpsertConcurrentSameFingerprint(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := t.Context()

	const workers = 8
	ids := make([]string, workers)
	dups := make([]bool, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Go(func() {
			res, err := svc.Upsert(ctx, basePayload(), ValidateOptions{})
			if assert.NoError(t, err) {
				ids[i] = res.Job.ID
				dups[i] = res.Duplicate
			}
		})
	}
	wg.Wait()

	created := 0
	for i := range workers {
		assert.Equal(t, ids[0], ids[i])
		if !dups[i] {
			created++
		}
	}
	assert.Equal(t, 1, created)

	all, err := svc.Find(ctx, models.JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsertValidation(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := t.Context()

	p := basePayload()
	p.Message = "  "
	_, err := svc.Upsert(ctx, p, ValidateOptions{})
	ve, ok := models.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "message", ve.Field)

	p = basePayload()
	p.LicenseIDs = IDList{" "}
	_, err = svc.Upsert(ctx, p, ValidateOptions{})
	ve, ok = models.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "licenseIds", ve.Field)

	p = basePayload()
	p.Severity = ""
	_, err = svc.Upsert(ctx, p, ValidateOptions{})
	require.NoError(t, err, "severity is optional without the guard")

	p = basePayload()
	p.Severity = ""
	p.Message = "different"
	_, err = svc.Upsert(ctx, p, ValidateOptions{RequireSeverity: true})
	ve, ok = models.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "severity", ve.Field)
}

func TestPatch(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := t.Context()

	res, err := svc.Upsert(ctx, basePayload(), ValidateOptions{})
	require.NoError(t, err)

	bad := models.JobStatus("archived")
	_, err = svc.Patch(ctx, res.Job.ID, models.JobPatch{Status: &bad})
	_, ok := models.AsValidationError(err)
	assert.True(t, ok)

	negative := -1
	_, err = svc.Patch(ctx, res.Job.ID, models.JobPatch{Attempts: &negative})
	_, ok = models.AsValidationError(err)
	assert.True(t, ok)

	attempts := 2
	failed := models.JobStatusFailed
	patched, err := svc.Patch(ctx, res.Job.ID, models.JobPatch{Status: &failed, Attempts: &attempts})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, patched.Status)
	assert.Equal(t, 2, patched.Attempts)
	assert.Equal(t, res.Job.Hash, patched.Hash)

	sentAt := time.Now().UTC().Truncate(time.Second)
	sent, err := svc.MarkSent(ctx, res.Job.ID, sentAt)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSent, sent.Status)
	require.NotNil(t, sent.SentAt)
	assert.True(t, sent.SentAt.Equal(sentAt))

	_, err = svc.Patch(ctx, "missing", models.JobPatch{Status: &failed})
	require.ErrorIs(t, err, models.ErrJobNotFound)
}

func TestFindRejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	_, err := svc.Find(t.Context(), models.JobFilter{Status: "queued"})
	_, ok := models.AsValidationError(err)
	assert.True(t, ok)
}

func TestAppendLog(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := t.Context()

	_, err := svc.AppendLog(ctx, &LogEntry{RucOrDni: "1", LicenseIDs: IDList{"1"}, Severity: "overdue"})
	ve, ok := models.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "totalDue", ve.Field)

	sentAt := time.Date(2024, 1, 5, 15, 0, 0, 0, time.UTC)
	entry, err := svc.AppendLog(ctx, &LogEntry{
		JobID:         "job-1",
		RucOrDni:      "20601234567",
		LicenseIDs:    IDList{"1", "2"},
		Severity:      "overdue",
		TotalDue:      decimal.NewNullDecimal(decimal.RequireFromString("220.50")),
		MessageLength: 120,
		Channel:       "chat",
		SentAt:        &sentAt,
	})
	require.NoError(t, err)
	assert.NotZero(t, entry.ID)

	logs, err := svc.ListLogs(ctx, models.NotificationLogFilter{JobID: "job-1"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].SentAt.Equal(sentAt))
	assert.Equal(t, []string{"1", "2"}, logs[0].LicenseIDs)
}

func TestCreateBatchIndependent(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := t.Context()

	second := basePayload()
	second.Message = ""
	third := basePayload()
	third.LicenseIDs = IDList{"99"}

	results, err := svc.CreateBatch(ctx, []*Payload{basePayload(), second, third}, BatchIndependent, ValidateOptions{RequireSeverity: true})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.False(t, results[0].Failed())
	assert.Equal(t, http.StatusCreated, results[0].Status)
	assert.True(t, results[1].Failed())
	assert.Equal(t, "message", results[1].Field)
	assert.Equal(t, http.StatusBadRequest, results[1].Status)
	assert.False(t, results[2].Failed())

	all, err := svc.Find(ctx, models.JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCreateBatchAllOrNothing(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx := t.Context()

	second := basePayload()
	second.Message = ""

	_, err := svc.CreateBatch(ctx, []*Payload{basePayload(), second, basePayload()}, BatchAllOrNothing, ValidateOptions{})
	ve, ok := models.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, 1, ve.Index)
	assert.Equal(t, "message", ve.Field)

	all, err := svc.Find(ctx, models.JobFilter{})
	require.NoError(t, err)
	assert.Empty(t, all, "nothing is stored when validation fails")

	results, err := svc.CreateBatch(ctx, []*Payload{basePayload(), basePayload()}, BatchAllOrNothing, ValidateOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].Duplicate)
	assert.True(t, results[1].Duplicate)
}

func TestCreateBatchStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	results, err := svc.CreateBatch(ctx, []*Payload{basePayload()}, BatchIndependent, ValidateOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}
