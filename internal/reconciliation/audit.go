package reconciliation

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"woox-trader/internal/order"
	"woox-trader/pkg/exchange"
)

// Auditor periodically walks the order store and reports state that the
// engine should never have produced: shared stops sized away from their
// group's quantity, filled entries missing their protective stop, and
// dangling pending stops in closed groups. It only reports; fixing drift is
// an operator decision.
type Auditor struct {
	Store    order.Store
	Interval time.Duration

	mu   sync.Mutex
	last *AuditReport
}

type AuditReport struct {
	Timestamp time.Time      `json:"timestamp"`
	Findings  []AuditFinding `json:"findings"`
}

type AuditFinding struct {
	GroupID string `json:"group_id"`
	OrderID string `json:"order_id,omitempty"`
	Detail  string `json:"detail"`
}

func NewAuditor(store order.Store, interval time.Duration) *Auditor {
	return &Auditor{Store: store, Interval: interval}
}

// Start begins periodic auditing until the context is cancelled.
func (a *Auditor) Start(ctx context.Context) {
	ticker := time.NewTicker(a.Interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				report, err := a.Audit(ctx)
				if err != nil {
					log.Printf("❌ audit error: %v", err)
					continue
				}
				a.logReport(report)
			case <-ctx.Done():
				return
			}
		}
	}()
	log.Printf("✓ audit service started (interval: %v)", a.Interval)
}

// Audit runs one pass over every group.
func (a *Auditor) Audit(ctx context.Context) (*AuditReport, error) {
	groups, err := a.Store.AllGroups(ctx)
	if err != nil {
		return nil, err
	}

	report := &AuditReport{Timestamp: time.Now()}
	for _, g := range groups {
		report.Findings = append(report.Findings, auditGroup(g)...)
	}

	a.mu.Lock()
	a.last = report
	a.mu.Unlock()
	return report, nil
}

// LastReport returns the most recent report, or nil before the first pass.
func (a *Auditor) LastReport() *AuditReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

func auditGroup(g *order.OrderGroup) []AuditFinding {
	var findings []AuditFinding

	if g.Stop != nil && g.Stop.Status == exchange.StatusNew {
		if q := g.Quantity(); q != 0 && math.Abs(q-g.Stop.Quantity) > 1e-9 {
			findings = append(findings, AuditFinding{
				GroupID: g.ID,
				Detail:  "shared stop quantity does not match group quantity",
			})
		}
		if g.IsClosed() {
			findings = append(findings, AuditFinding{
				GroupID: g.ID,
				Detail:  "closed group still has a pending shared stop",
			})
		}
	}

	var sum float64
	for _, o := range g.Orders {
		if o.Entry.Status == exchange.StatusFilled {
			sum += o.Quantity()
		}
		if o.IsActive() && o.Stop == nil {
			findings = append(findings, AuditFinding{
				GroupID: g.ID,
				OrderID: o.ID,
				Detail:  "filled entry has no protective stop",
			})
		}
	}
	if math.Abs(math.Round(sum*1e6)/1e6-g.Quantity()) > 1e-9 {
		findings = append(findings, AuditFinding{
			GroupID: g.ID,
			Detail:  "group quantity does not equal sum of member quantities",
		})
	}

	return findings
}

func (a *Auditor) logReport(report *AuditReport) {
	if len(report.Findings) == 0 {
		return
	}
	log.Printf("⚠️ audit found %d inconsistencies:", len(report.Findings))
	for _, f := range report.Findings {
		log.Printf("  group=%s order=%s %s", f.GroupID, f.OrderID, f.Detail)
	}
}
