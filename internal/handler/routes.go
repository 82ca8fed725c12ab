package handler

import (
	"github.com/go-chi/chi/v5"
)

// Mount registers the inbox API on r. Authentication is applied by the caller.
func Mount(r chi.Router, conversations *ConversationHandler, filters *FilterHandler, stream *StreamHandler) {
	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", conversations.Search)
		r.Get("/unread-count", conversations.UnreadCount)
		r.Get("/lookup", conversations.Lookup)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", conversations.Get)
			r.Put("/", conversations.Update)
			r.Post("/take", conversations.Take)
			r.Post("/close", conversations.Close)
			r.Post("/reopen", conversations.Reopen)
			r.Post("/read", conversations.MarkRead)
			r.Post("/unread", conversations.MarkUnread)
			r.Get("/can-reopen", conversations.CanReopen)
			r.Get("/reply-check", conversations.CheckReply)
			r.Get("/logs", conversations.Logs)
		})
	})

	r.Route("/filters", func(r chi.Router) {
		r.Get("/", filters.List)
		r.Post("/", filters.Create)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", filters.Get)
			r.Put("/", filters.Update)
			r.Delete("/", filters.Delete)
			r.Get("/count", filters.Count)
			r.Get("/conversations/{conversationID}", filters.HasConversation)
		})
	})

	r.Get("/events", stream.Stream)
}
