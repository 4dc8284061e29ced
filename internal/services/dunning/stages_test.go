// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dunning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/licenseops/dunning/internal/models"
)

func TestInferStage(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	day := func(offset int) *time.Time {
		d := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
		return &d
	}

	tests := []struct {
		offset int
		want   string
	}{
		{365, StageUpcoming},
		{30, StageUpcoming},
		{8, StageUpcoming},
		{7, StageBefore7},
		{4, StageBefore7},
		{3, StageBefore3},
		{2, StageBefore3},
		{1, StageBefore1},
		{0, StageDueToday},
		{-1, "grace_1"},
		{-5, "grace_5"},
		{-6, StageOverdue},
	}

	for _, tt := range tests {
		l := &models.License{NextPaymentDue: day(tt.offset), GracePeriodDays: 5}
		assert.Equal(t, tt.want, InferStage(l, now, time.UTC), "offset %d", tt.offset)
	}

	assert.Equal(t, StageUpcoming, InferStage(&models.License{}, now, time.UTC), "no due date")
}

func TestInferStageUsesLocation(t *testing.T) {
	t.Parallel()

	lima := time.FixedZone("PET", -5*3600)
	// 02:00 UTC on the 11th is still the 10th in Lima
	now := time.Date(2024, 1, 11, 2, 0, 0, 0, time.UTC)
	due := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	l := &models.License{EndDate: &due}

	assert.Equal(t, StageDueToday, InferStage(l, now, lima))
	assert.Equal(t, "2024-01-10", ReminderDate(now, lima))
	assert.Equal(t, "2024-01-11", ReminderDate(now, nil))
}

func TestStageIntro(t *testing.T) {
	t.Parallel()

	assert.Contains(t, StageIntro(StageBefore7, 0), "7 días")
	assert.Contains(t, StageIntro(StageDueToday, 0), "Hoy vence")
	assert.Equal(t, "Tu licencia venció hace 1 día. Estás en el día 1 de 5 del periodo de gracia.", StageIntro("grace_1", 5))
	assert.Equal(t, "Tu licencia venció hace 3 días.", StageIntro("grace_3", 0))
	assert.Equal(t, genericIntro, StageIntro("grace_x", 5))

	assert.True(t, ValidStage("grace_12"))
	assert.True(t, ValidStage(StageOverdue))
	assert.True(t, ValidStage(StageUpcoming))
	assert.Equal(t, genericIntro, StageIntro(StageUpcoming, 5))
	assert.NotContains(t, StageIntro(StageUpcoming, 0), "días")
	assert.False(t, ValidStage("grace_0"))
	assert.False(t, ValidStage("later"))
}
