package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTP метрики
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "path"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests in flight",
		},
	)

	// Метрики кредитного леджера
	CreditsConsumedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credits_consumed_total",
			Help: "Total number of credit points consumed",
		},
	)
	CreditsConsumeRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credits_consume_rejected_total",
			Help: "Consume attempts rejected for insufficient balance",
		},
	)
	TopupsRequestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "topups_requested_total",
			Help: "Top-up requests created",
		},
	)
	TopupsConfirmedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "topups_confirmed_total",
			Help: "Top-up requests confirmed by an operator",
		},
	)

	// Метрики карточек
	CardsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cards_created_total",
			Help: "Cards created",
		},
	)
	CardQuotaRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "card_quota_rejected_total",
			Help: "Card creations rejected by the per-account quota",
		},
	)

	// AI генерация
	AIGenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_generations_total",
			Help: "AI profile generations by outcome",
		},
		[]string{"outcome"},
	)
)

func InitMetrics() {
	// Регистрация HTTP метрик
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestsInFlight)

	// Доменные метрики
	prometheus.MustRegister(CreditsConsumedTotal)
	prometheus.MustRegister(CreditsConsumeRejected)
	prometheus.MustRegister(TopupsRequestedTotal)
	prometheus.MustRegister(TopupsConfirmedTotal)
	prometheus.MustRegister(CardsCreatedTotal)
	prometheus.MustRegister(CardQuotaRejected)
	prometheus.MustRegister(AIGenerationsTotal)

	// Стандартные метрики Go
	prometheus.MustRegister(prometheus.NewGoCollector())
	prometheus.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
}
