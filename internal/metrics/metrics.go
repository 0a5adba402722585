// Package metrics exposes collateral health as Prometheus series.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"collateralScope/internal/model"
)

const namespace = "collateral"

// Metrics holds the collateral gauges and counters.
type Metrics struct {
	Status         *prometheus.GaugeVec
	WhenDefault    *prometheus.GaugeVec
	ReferenceRate  *prometheus.GaugeVec
	LPTokenPrice   *prometheus.GaugeVec
	BasketValue    *prometheus.GaugeVec
	TokenPrice     *prometheus.GaugeVec
	Fallback       *prometheus.GaugeVec
	Refreshes      *prometheus.CounterVec
	RefreshLatency *prometheus.HistogramVec
	StatusChanges  *prometheus.CounterVec
}

// New registers every series on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	labels := []string{"collateral"}

	return &Metrics{
		Status: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "status",
			Help:      "Collateral status: 0 SOUND, 1 IFFY, 2 DISABLED",
		}, labels),
		WhenDefault: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "when_default_seconds",
			Help:      "Unix time the collateral defaults at, 0 when never",
		}, labels),
		ReferenceRate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reference_rate",
			Help:      "Pool reference rate (virtual price)",
		}, labels),
		LPTokenPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lp_token_price",
			Help:      "LP token price in unit of account",
		}, labels),
		BasketValue: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "basket_value",
			Help:      "Total pool reserves in unit of account",
		}, labels),
		TokenPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "token_price",
			Help:      "Chained feed price per basket token",
		}, []string{"collateral", "index"}),
		Fallback: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "price_fallback",
			Help:      "1 when the last price came from the fallback",
		}, labels),
		Refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Refresh attempts by result",
		}, []string{"collateral", "result"}),
		RefreshLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Refresh latency including chain reads",
			Buckets:   prometheus.DefBuckets,
		}, labels),
		StatusChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_changes_total",
			Help:      "Status transitions by old and new status",
		}, []string{"collateral", "old", "new"}),
	}
}

// ObserveRefresh records one refresh attempt.
func (m *Metrics) ObserveRefresh(collateral string, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Refreshes.WithLabelValues(collateral, result).Inc()
	m.RefreshLatency.WithLabelValues(collateral).Observe(took.Seconds())
}

// ObserveStatusChange counts a transition and updates the status gauges.
func (m *Metrics) ObserveStatusChange(change model.StatusChange) {
	m.StatusChanges.WithLabelValues(change.Collateral, change.Old.String(), change.New.String()).Inc()
	m.Status.WithLabelValues(change.Collateral).Set(float64(change.New))
	m.WhenDefault.WithLabelValues(change.Collateral).Set(whenDefaultSeconds(change.WhenDefault))
}

// ObserveSnapshot updates the gauges from a monitor observation. Missing
// prices leave their previous value in place.
func (m *Metrics) ObserveSnapshot(s model.PriceSnapshot) {
	m.Status.WithLabelValues(s.Collateral).Set(float64(s.Status))
	whenDefault := model.Never
	if s.WhenDefault != nil {
		whenDefault = *s.WhenDefault
	}
	m.WhenDefault.WithLabelValues(s.Collateral).Set(whenDefaultSeconds(whenDefault))

	setDecimal(m.ReferenceRate.WithLabelValues(s.Collateral), s.ReferenceRate)
	if s.LPTokenPrice != nil {
		setDecimal(m.LPTokenPrice.WithLabelValues(s.Collateral), *s.LPTokenPrice)
	}
	if s.TotalBasketValue != nil {
		setDecimal(m.BasketValue.WithLabelValues(s.Collateral), *s.TotalBasketValue)
	}
	for i, price := range s.TokenPrices {
		setDecimal(m.TokenPrice.WithLabelValues(s.Collateral, strconv.Itoa(i)), price)
	}

	fallback := 0.0
	if s.IsFallback {
		fallback = 1
	}
	m.Fallback.WithLabelValues(s.Collateral).Set(fallback)
}

func whenDefaultSeconds(ts uint64) float64 {
	if ts == model.Never {
		return 0
	}
	return float64(ts)
}

func setDecimal(g prometheus.Gauge, value string) {
	if value == "" {
		return
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return
	}
	g.Set(d.InexactFloat64())
}
