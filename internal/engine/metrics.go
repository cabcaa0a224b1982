package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	localEdits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "megagrid_local_edits_total",
		Help: "Local edits written to the optimistic buffer",
	})

	confirmedCells = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "megagrid_confirmed_cells_total",
		Help: "Confirmed cells painted, by event kind",
	}, []string{"kind"})

	flushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "megagrid_flush_total",
		Help: "Flush attempts by result",
	}, []string{"result"})

	flushCells = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "megagrid_flush_cells",
		Help:    "Cells carried by each submitted batch",
		Buckets: []float64{1, 4, 16, 64, 256, 1024, 4096},
	})

	negotiations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "megagrid_wallet_negotiations_total",
		Help: "Wallet negotiation attempts by final state",
	}, []string{"state"})

	pendingCells = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "megagrid_pending_cells",
		Help: "Cells waiting in the optimistic buffer",
	})
)
