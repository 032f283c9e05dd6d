package evm

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

type KPI struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Target float64 `json:"target"`
	Unit   string  `json:"unit"`
}

type Perspective struct {
	Title     string `json:"title"`
	Objective string `json:"objective"`
	KPIs      []KPI  `json:"kpis"`
	Status    Status `json:"status"`
}

type Scorecard struct {
	Financial Perspective `json:"financial"`
	Customer  Perspective `json:"customer"`
	Internal  Perspective `json:"internal"`
	Learning  Perspective `json:"learning"`
}

// ScorecardSource is the warehouse aggregates behind the non-financial
// perspectives.
type ScorecardSource interface {
	// RiskImpact returns the mean impact score and the number of risk facts.
	RiskImpact(ctx context.Context) (avg float64, count int, err error)
	DefectTotals(ctx context.Context) (detected, resolved int, err error)
	// HoursLoggedSince sums timelog hours on or after since.
	HoursLoggedSince(ctx context.Context, since time.Time) (float64, error)
	// WeeklyCapacity sums available_hours_per_week over all employees.
	WeeklyCapacity(ctx context.Context) (float64, error)
}

const (
	cpiTarget         = 1.0
	riskImpactTarget  = 5.0
	resolutionTarget  = 90.0
	utilizationTarget = 80.0
)

type Composer struct {
	evm        *Aggregator
	src        ScorecardSource
	clock      clockwork.Clock
	windowDays int
}

// NewComposer builds a composer whose utilization KPI looks back windowDays
// from today.
func NewComposer(evm *Aggregator, src ScorecardSource, clock clockwork.Clock, windowDays int) *Composer {
	if windowDays <= 0 {
		windowDays = 30
	}
	return &Composer{evm: evm, src: src, clock: clock, windowDays: windowDays}
}

func (c *Composer) Scorecard(ctx context.Context) (Scorecard, error) {
	portfolio, err := c.evm.Portfolio(ctx)
	if err != nil {
		return Scorecard{}, err
	}
	avgImpact, risks, err := c.src.RiskImpact(ctx)
	if err != nil {
		return Scorecard{}, fmt.Errorf("risk impact: %w", err)
	}
	detected, resolved, err := c.src.DefectTotals(ctx)
	if err != nil {
		return Scorecard{}, fmt.Errorf("defect totals: %w", err)
	}

	now := c.clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	worked, err := c.src.HoursLoggedSince(ctx, today.AddDate(0, 0, -c.windowDays))
	if err != nil {
		return Scorecard{}, fmt.Errorf("hours logged: %w", err)
	}
	capacity, err := c.src.WeeklyCapacity(ctx)
	if err != nil {
		return Scorecard{}, fmt.Errorf("weekly capacity: %w", err)
	}

	return Scorecard{
		Financial: Financial(portfolio.CPI),
		Customer:  Customer(avgImpact, risks),
		Internal:  Internal(detected, resolved),
		Learning:  Learning(worked, capacity),
	}, nil
}

func Financial(cpi float64) Perspective {
	status := StatusWarning
	if cpi >= cpiTarget {
		status = StatusSuccess
	}
	return Perspective{
		Title:     "Financial",
		Objective: "Efficiency Leadership",
		KPIs:      []KPI{{Name: "Global CPI", Value: cpi, Target: cpiTarget, Unit: "Idx"}},
		Status:    status,
	}
}

// Customer scores risk exposure; lower mean impact is better.
func Customer(avgImpact float64, risks int) Perspective {
	avgImpact = Round(avgImpact, 2)
	status := StatusWarning
	if avgImpact < riskImpactTarget {
		status = StatusSuccess
	}
	return Perspective{
		Title:     "Customer",
		Objective: "Trust and Solidity",
		KPIs: []KPI{
			{Name: "Average Risk Impact", Value: avgImpact, Target: riskImpactTarget, Unit: "Pts"},
			{Name: "Tracked Risks", Value: float64(risks), Target: 0, Unit: "Count"},
		},
		Status: status,
	}
}

// Internal reports the defect resolution rate. With nothing detected the rate
// is 100%.
func Internal(detected, resolved int) Perspective {
	rate := 100.0
	if detected > 0 {
		rate = Round(float64(resolved)/float64(detected)*100, 1)
	}
	status := StatusError
	if rate >= resolutionTarget {
		status = StatusSuccess
	}
	return Perspective{
		Title:     "Internal Processes",
		Objective: "Quality and Traceability",
		KPIs:      []KPI{{Name: "Defect Resolution Rate", Value: rate, Target: resolutionTarget, Unit: "%"}},
		Status:    status,
	}
}

// Learning reports utilization of four weeks of employee capacity.
func Learning(worked, weeklyCapacity float64) Perspective {
	var rate float64
	if monthly := weeklyCapacity * 4; monthly > 0 {
		rate = Round(worked/monthly*100, 1)
	}
	status := StatusWarning
	if rate >= utilizationTarget {
		status = StatusSuccess
	}
	return Perspective{
		Title:     "Learning",
		Objective: "Knowledge Management",
		KPIs:      []KPI{{Name: "Resource Utilization", Value: rate, Target: utilizationTarget, Unit: "%"}},
		Status:    status,
	}
}
