package epayroll

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Phase is one headcount band of the adoption calendar. MaxEmployees of zero
// means the band has no upper bound.
type Phase struct {
	Number        int       `yaml:"phase"`
	MinEmployees  int       `yaml:"min_employees"`
	MaxEmployees  int       `yaml:"max_employees"`
	EffectiveDate time.Time `yaml:"effective_date"`
}

func (p Phase) Contains(count int) bool {
	if count < p.MinEmployees {
		return false
	}
	return p.MaxEmployees == 0 || count <= p.MaxEmployees
}

type Calendar struct {
	Phases []Phase `yaml:"phases"`
}

func DefaultCalendar() Calendar {
	return Calendar{Phases: []Phase{
		{Number: 1, MinEmployees: 1, MaxEmployees: 10, EffectiveDate: date(2021, time.September, 1)},
		{Number: 2, MinEmployees: 11, MaxEmployees: 100, EffectiveDate: date(2021, time.October, 1)},
		{Number: 3, MinEmployees: 101, EffectiveDate: date(2021, time.November, 1)},
	}}
}

// LoadCalendar reads a calendar from a YAML file of the form
//
//	phases:
//	  - phase: 1
//	    min_employees: 1
//	    max_employees: 10
//	    effective_date: 2021-09-01
func LoadCalendar(path string) (Calendar, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Calendar{}, err
	}
	var cal Calendar
	if err := yaml.Unmarshal(raw, &cal); err != nil {
		return Calendar{}, fmt.Errorf("parse compliance calendar: %w", err)
	}
	if err := cal.Validate(); err != nil {
		return Calendar{}, err
	}
	sort.Slice(cal.Phases, func(i, j int) bool { return cal.Phases[i].MinEmployees < cal.Phases[j].MinEmployees })
	return cal, nil
}

func (c Calendar) Validate() error {
	if len(c.Phases) == 0 {
		return fmt.Errorf("compliance calendar has no phases")
	}
	for i, p := range c.Phases {
		if p.EffectiveDate.IsZero() {
			return fmt.Errorf("compliance phase %d has no effective date", i+1)
		}
		if p.MaxEmployees != 0 && p.MaxEmployees < p.MinEmployees {
			return fmt.Errorf("compliance phase %d has max_employees below min_employees", i+1)
		}
		for j, other := range c.Phases {
			if i != j && overlaps(p, other) {
				return fmt.Errorf("compliance phases %d and %d overlap", i+1, j+1)
			}
		}
	}
	return nil
}

// PhaseFor returns the band containing count.
func (c Calendar) PhaseFor(count int) (Phase, bool) {
	if count <= 0 {
		return Phase{}, false
	}
	for _, p := range c.Phases {
		if p.Contains(count) {
			return p, true
		}
	}
	return Phase{}, false
}

// IsObligated reports whether an organization with count active employees
// must issue electronic payroll documents on now.
func (c Calendar) IsObligated(count int, now time.Time) bool {
	phase, ok := c.PhaseFor(count)
	if !ok {
		return false
	}
	return !now.Before(phase.EffectiveDate)
}

// Evaluate computes the compliance status reported to callers.
func (c Calendar) Evaluate(count int, now time.Time) ComplianceStatus {
	status := ComplianceStatus{EmployeeCount: count}
	phase, ok := c.PhaseFor(count)
	if !ok {
		status.Message = "No active employees; electronic payroll is not required"
		return status
	}
	effective := phase.EffectiveDate
	status.Phase = phase.Number
	status.EffectiveDate = &effective
	status.IsCompliant = !now.Before(effective)
	if status.IsCompliant {
		status.Message = fmt.Sprintf("Electronic payroll is required since %s (phase %d)", effective.Format("2006-01-02"), phase.Number)
	} else {
		status.Message = fmt.Sprintf("Electronic payroll becomes required on %s (phase %d)", effective.Format("2006-01-02"), phase.Number)
	}
	return status
}

// CalendarDay returns the date now falls on in loc, as midnight UTC so it
// compares directly with phase effective dates.
func CalendarDay(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	return date(y, m, d)
}

func overlaps(a, b Phase) bool {
	aMax, bMax := a.MaxEmployees, b.MaxEmployees
	if aMax == 0 {
		aMax = int(^uint(0) >> 1)
	}
	if bMax == 0 {
		bMax = int(^uint(0) >> 1)
	}
	return a.MinEmployees <= bMax && b.MinEmployees <= aMax
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
