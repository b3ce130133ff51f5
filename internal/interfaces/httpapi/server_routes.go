package httpapi

import "net/http"

func registerSystemRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /healthz", handler.Healthz)
}

func registerDispatchRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("POST /v1/dispatch-transactions", handler.DispatchTransactions)
	mux.HandleFunc("GET /v1/dispatch-status/{jobID}", handler.GetDispatchStatus)
	mux.HandleFunc("GET /v1/dispatch-status/{jobID}/files", handler.ListDispatchFiles)
}
