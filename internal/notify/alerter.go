package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/basisops/fundmon/internal/domain"
)

// Alerter watches committed tick records and raises alerts on liquidation
// risk transitions, position drift, and unreconciled profit attribution.
// It implements domain.StrategyConsumer and never emits instructions.
type Alerter struct {
	notifier *Notifier
	logger   *slog.Logger

	lastStatus domain.LiquidationStatus
}

// NewAlerter creates an Alerter delivering through the given Notifier.
func NewAlerter(notifier *Notifier, logger *slog.Logger) *Alerter {
	return &Alerter{
		notifier:   notifier,
		logger:     logger.With(slog.String("component", "alerter")),
		lastStatus: domain.StatusSafe,
	}
}

// OnTick inspects one committed record. Delivery failures are logged, never
// returned: alerting must not fail the pipeline.
func (a *Alerter) OnTick(ctx context.Context, rec domain.TickRecord) ([]domain.Instruction, error) {
	a.checkRisk(ctx, rec)
	a.checkDrift(ctx, rec)
	a.checkPnL(ctx, rec)
	return nil, nil
}

// checkRisk alerts on status transitions, not on every tick at the same
// status.
func (a *Alerter) checkRisk(ctx context.Context, rec domain.TickRecord) {
	status := rec.Risk.Status
	if status == a.lastStatus && !rec.Risk.Liquidated {
		return
	}
	a.lastStatus = status

	switch {
	case rec.Risk.Liquidated:
		a.send(ctx, EventLiquidation, "Liquidation event",
			fmt.Sprintf("health factor %.4f, debt liquidated %.2f, penalty %.2f",
				rec.Risk.HealthFactor, rec.Risk.DebtLiquidated, rec.Risk.LiquidationPenalty))
	case status == domain.StatusCritical:
		a.send(ctx, EventRiskCritical, "Critical liquidation risk",
			fmt.Sprintf("health factor %.4f, collateral %.2f, debt %.2f",
				rec.Risk.HealthFactor, rec.Risk.CollateralValue, rec.Risk.DebtValue))
	case status == domain.StatusWarning:
		a.send(ctx, EventRiskWarning, "Elevated liquidation risk",
			fmt.Sprintf("health factor %.4f", rec.Risk.HealthFactor))
	}
}

func (a *Alerter) checkDrift(ctx context.Context, rec domain.TickRecord) {
	if rec.Reconciliation == nil || rec.Reconciliation.Reconciled {
		return
	}
	lines := make([]string, 0, len(rec.Reconciliation.Violations))
	for _, v := range rec.Reconciliation.Violations {
		lines = append(lines, fmt.Sprintf("%s/%s/%s: simulated %.6f observed %.6f (allowed %.6f)",
			v.Category, v.Venue, v.Asset, v.Simulated, v.Observed, v.Allowed))
	}
	a.send(ctx, EventPositionDrift, "Position drift detected", strings.Join(lines, "\n"))
}

func (a *Alerter) checkPnL(ctx context.Context, rec domain.TickRecord) {
	if rec.PnL == nil || rec.PnL.Reconciliation.Passed {
		return
	}
	a.send(ctx, EventPnLUnreconciled, "PnL attribution unreconciled",
		fmt.Sprintf("balance-based %.2f vs attributed, difference %.4f exceeds tolerance %.4f",
			rec.PnL.BalanceBased, rec.PnL.Reconciliation.Difference, rec.PnL.Reconciliation.Tolerance))
}

func (a *Alerter) send(ctx context.Context, event, title, message string) {
	if err := a.notifier.Notify(ctx, event, title, message); err != nil {
		a.logger.WarnContext(ctx, "alert delivery failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
