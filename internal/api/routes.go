package api

import "net/http"

// RegisterRoutes attaches all API endpoints to mux. Capture and image path
// segments are the entities' short identifiers, never database ids.
func RegisterRoutes(mux *http.ServeMux, h *Handlers) {
	mux.HandleFunc("POST /api/signup", h.SignupHandler)
	mux.HandleFunc("POST /api/login", h.LoginHandler)
	mux.HandleFunc("POST /api/logout", h.LogoutHandler)

	mux.HandleFunc("POST /api/captures", h.CreateCaptureHandler)
	mux.HandleFunc("GET /api/captures", h.ListCapturesHandler)
	mux.HandleFunc("GET /api/captures/{capture}", h.GetCaptureHandler)
	mux.HandleFunc("PATCH /api/captures/{capture}", h.UpdateCaptureHandler)
	mux.HandleFunc("DELETE /api/captures/{capture}", h.DeleteCaptureHandler)

	mux.HandleFunc("POST /api/captures/{capture}/images", h.UploadImagesHandler)
	mux.HandleFunc("PATCH /api/captures/{capture}/reorder", h.ReorderImagesHandler)
	mux.HandleFunc("DELETE /api/captures/{capture}/images/{image}", h.DeleteImageHandler)
	mux.HandleFunc("POST /api/captures/{capture}/complete", h.CompleteCaptureHandler)

	mux.HandleFunc("POST /api/assistant", h.AssistantHandler)

	mux.HandleFunc("GET /uploads/{file}", h.ServeImageHandler)
}
