package shipping

import (
	"fmt"
	"time"
)

// FrequencyType selects the recurrence of a schedule. The numeric values
// follow the agent subsystem's encoding so specs can be passed through to
// the engine without translation.
type FrequencyType int

const (
	FrequencyOnce            FrequencyType = 1
	FrequencyDaily           FrequencyType = 4
	FrequencyWeekly          FrequencyType = 8
	FrequencyMonthly         FrequencyType = 16
	FrequencyMonthlyRelative FrequencyType = 32
)

// SubdayType selects the intra-day recurrence granularity.
type SubdayType int

const (
	SubdayOnce    SubdayType = 1
	SubdaySeconds SubdayType = 2
	SubdayMinutes SubdayType = 4
	SubdayHours   SubdayType = 8
)

// OpenEndDate is the sentinel "never expires" end date.
const OpenEndDate = 99991231

// EndOfDay is the last valid HHMMSS time value.
const EndOfDay = 235959

// ScheduleSpec describes one recurring schedule shared by all three job
// kinds. Dates are YYYYMMDD integers, times are HHMMSS integers. A zero
// field means "unset" and is filled in by Normalize.
type ScheduleSpec struct {
	Name              string
	FrequencyType     FrequencyType
	FrequencyInterval int
	SubdayType        SubdayType
	SubdayInterval    int
	RelativeInterval  int
	RecurrenceFactor  int
	StartDate         int
	EndDate           int
	StartTime         int
	EndTime           int
	Enabled           bool
}

// Normalize fills unset fields of spec with the log-shipping defaults and
// validates the result: daily frequency, every day, every 15 minutes, from
// today at midnight until the open-ended sentinel. It is a pure function
// and idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(spec ScheduleSpec) (ScheduleSpec, error) {
	out := spec

	if out.FrequencyType == 0 {
		out.FrequencyType = FrequencyDaily
	}
	switch out.FrequencyType {
	case FrequencyOnce, FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyMonthlyRelative:
	default:
		return ScheduleSpec{}, newError(ClassConfiguration, "normalize-schedule",
			"invalid frequency type %d", out.FrequencyType)
	}
	if out.FrequencyInterval == 0 {
		out.FrequencyInterval = 1
	}
	if out.FrequencyInterval < 0 {
		return ScheduleSpec{}, newError(ClassConfiguration, "normalize-schedule",
			"frequency interval must not be negative, got %d", out.FrequencyInterval)
	}

	if out.SubdayType == 0 {
		out.SubdayType = SubdayMinutes
	}
	switch out.SubdayType {
	case SubdayOnce:
		if out.SubdayInterval != 0 {
			return ScheduleSpec{}, newError(ClassConfiguration, "normalize-schedule",
				"sub-day interval %d is not allowed with a run-once sub-day type", out.SubdayInterval)
		}
	case SubdaySeconds, SubdayMinutes:
		if out.SubdayInterval == 0 {
			out.SubdayInterval = 15
		}
		if out.SubdayInterval < 1 || out.SubdayInterval > 59 {
			return ScheduleSpec{}, newError(ClassConfiguration, "normalize-schedule",
				"sub-day interval %d out of range [1,59] for seconds/minutes granularity", out.SubdayInterval)
		}
	case SubdayHours:
		if out.SubdayInterval == 0 {
			out.SubdayInterval = 1
		}
		if out.SubdayInterval < 1 || out.SubdayInterval > 23 {
			return ScheduleSpec{}, newError(ClassConfiguration, "normalize-schedule",
				"sub-day interval %d out of range [1,23] for hourly granularity", out.SubdayInterval)
		}
	default:
		return ScheduleSpec{}, newError(ClassConfiguration, "normalize-schedule",
			"invalid sub-day type %d", out.SubdayType)
	}

	if out.RelativeInterval < 0 {
		return ScheduleSpec{}, newError(ClassConfiguration, "normalize-schedule",
			"relative interval must not be negative, got %d", out.RelativeInterval)
	}
	if out.RecurrenceFactor < 0 {
		return ScheduleSpec{}, newError(ClassConfiguration, "normalize-schedule",
			"recurrence factor must not be negative, got %d", out.RecurrenceFactor)
	}

	if out.StartDate == 0 {
		out.StartDate = todayDate()
	}
	if !validDate(out.StartDate) {
		return ScheduleSpec{}, newError(ClassConfiguration, "normalize-schedule",
			"start date %d is not a valid calendar date", out.StartDate)
	}
	if out.EndDate == 0 {
		out.EndDate = OpenEndDate
	}
	if !validDate(out.EndDate) {
		return ScheduleSpec{}, newError(ClassConfiguration, "normalize-schedule",
			"end date %d is not a valid calendar date", out.EndDate)
	}
	if out.StartDate > out.EndDate {
		return ScheduleSpec{}, newError(ClassConfiguration, "normalize-schedule",
			"start date %d is after end date %d", out.StartDate, out.EndDate)
	}

	if !validTime(out.StartTime) {
		return ScheduleSpec{}, newError(ClassConfiguration, "normalize-schedule",
			"start time %d outside valid range [000000,235959]", out.StartTime)
	}
	if out.EndTime == 0 {
		out.EndTime = EndOfDay
	}
	if !validTime(out.EndTime) {
		return ScheduleSpec{}, newError(ClassConfiguration, "normalize-schedule",
			"end time %d outside valid range [000000,235959]", out.EndTime)
	}

	return out, nil
}

func todayDate() int {
	now := time.Now()
	return now.Year()*10000 + int(now.Month())*100 + now.Day()
}

func validDate(d int) bool {
	if d < 10000101 || d > OpenEndDate {
		return false
	}
	_, err := time.Parse("20060102", fmt.Sprintf("%08d", d))
	return err == nil
}

func validTime(t int) bool {
	if t < 0 || t > EndOfDay {
		return false
	}
	minutes := (t / 100) % 100
	seconds := t % 100
	return minutes < 60 && seconds < 60
}

// FormatScheduleDate renders a YYYYMMDD integer zero-padded for engine SQL.
func FormatScheduleDate(d int) string { return fmt.Sprintf("%08d", d) }

// FormatScheduleTime renders an HHMMSS integer zero-padded for engine SQL.
func FormatScheduleTime(t int) string { return fmt.Sprintf("%06d", t) }
