package api

import (
	"github.com/SherClockHolmes/webpush-go"

	"hello-backend/internal/fetcher"
	"hello-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	fetcher fetcher.DataFetcher
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, f fetcher.DataFetcher, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:   s,
		fetcher: f,
		webpush: webpushOptions,
	}
}
