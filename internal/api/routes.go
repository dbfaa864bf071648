package api

import (
	"net/http"

	"github.com/JaimeStill/tally/pkg/routes"
)

func registerRoutes(mux *http.ServeMux, domain *Domain) {
	routes.Register(
		mux,
		domain.Ingestion.Handler().WithLedger(domain.Ledger).Routes(),
		domain.Invoices.Handler().Routes(),
		domain.Exceptions.Handler().WithLedger(domain.Ledger).Routes(),
		domain.DeadLetters.Handler().Routes(),
		domain.Reviews.Handler().Routes(),
	)
}
