// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dunning

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/licenseops/dunning/internal/models"
	"github.com/licenseops/dunning/internal/services/ledger"
)

const (
	StageBefore7  = "before_7"
	StageBefore3  = "before_3"
	StageBefore1  = "before_1"
	StageDueToday = "due_today"
	StageOverdue  = "overdue"
	StageUpcoming = "upcoming"

	gracePrefix = "grace_"
	dateLayout  = "2006-01-02"
)

// stageIntros holds the opening line for each fixed reminder stage.
var stageIntros = map[string]string{
	StageBefore7:  "Te recordamos que tu licencia vence en 7 días.",
	StageBefore3:  "Te recordamos que tu licencia vence en 3 días.",
	StageBefore1:  "Te recordamos que tu licencia vence mañana.",
	StageDueToday: "Hoy vence el pago de tu licencia.",
	StageOverdue:  "Tu licencia se encuentra vencida y el periodo de gracia ha terminado.",
	StageUpcoming: genericIntro,
}

const genericIntro = "Te escribimos sobre el pago de tu licencia."

// GraceStage names the Nth day of the grace period.
func GraceStage(day int) string {
	return gracePrefix + strconv.Itoa(day)
}

func graceDay(stage string) (int, bool) {
	rest, ok := strings.CutPrefix(stage, gracePrefix)
	if !ok {
		return 0, false
	}
	day, err := strconv.Atoi(rest)
	if err != nil || day <= 0 {
		return 0, false
	}
	return day, true
}

// StageIntro returns the opening line for stage.
func StageIntro(stage string, graceDays int) string {
	if intro, ok := stageIntros[stage]; ok {
		return intro
	}
	if day, ok := graceDay(stage); ok {
		unit := "días"
		if day == 1 {
			unit = "día"
		}
		if graceDays > 0 {
			return fmt.Sprintf("Tu licencia venció hace %d %s. Estás en el día %d de %d del periodo de gracia.", day, unit, day, graceDays)
		}
		return fmt.Sprintf("Tu licencia venció hace %d %s.", day, unit)
	}
	return genericIntro
}

// ValidStage reports whether stage is one of the known stage names.
func ValidStage(stage string) bool {
	if _, ok := stageIntros[stage]; ok {
		return true
	}
	_, ok := graceDay(stage)
	return ok
}

// InferStage picks the reminder stage from the calendar days between today
// and the license's due date in loc. Licenses without a due date, or due more
// than a week out, get the upcoming stage with no deadline in its intro.
func InferStage(l *models.License, now time.Time, loc *time.Location) string {
	anchor := ledger.Anchor(l)
	if anchor == nil {
		return StageUpcoming
	}

	days := calendarDays(now, *anchor, loc)
	switch {
	case days > 7:
		return StageUpcoming
	case days >= 4:
		return StageBefore7
	case days >= 2:
		return StageBefore3
	case days == 1:
		return StageBefore1
	case days == 0:
		return StageDueToday
	case -days <= l.GracePeriodDays:
		return GraceStage(-days)
	default:
		return StageOverdue
	}
}

// calendarDays counts whole calendar days from a to b in loc.
func calendarDays(a, b time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// ReminderDate formats now as the reminder date used for duplicate checks.
func ReminderDate(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(dateLayout)
}
