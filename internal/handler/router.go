package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/segyhp/amortization-engine/pkg/response"
)

// NewRouter wires every route of the API. metrics may be nil.
func NewRouter(loanHandler *LoanHandler, healthHandler *HealthHandler, metricsPath string, metrics http.Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(response.LoggingMiddleware, response.CORSMiddleware)

	// Health check
	router.HandleFunc("/health", healthHandler.Health).Methods("GET")
	router.HandleFunc("/health/ready", healthHandler.Ready).Methods("GET")
	if metrics != nil {
		router.Handle(metricsPath, metrics).Methods("GET")
	}

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/loans", loanHandler.CreateLoan).Methods("POST")
	api.HandleFunc("/loans/{loanId}/schedule", loanHandler.GetSchedule).Methods("GET")
	api.HandleFunc("/loans/{loanId}/outstanding", loanHandler.GetOutstanding).Methods("GET")
	api.HandleFunc("/loans/{loanId}/payments", loanHandler.MakePayment).Methods("POST")
	api.HandleFunc("/loans/{loanId}/refinance", loanHandler.Refinance).Methods("POST")
	api.HandleFunc("/loans/{loanId}/ledger", loanHandler.GetLedger).Methods("GET")
	api.HandleFunc("/loans/{loanId}/overdue", loanHandler.GetOverdue).Methods("GET")

	return router
}
