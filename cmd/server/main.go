package main

import (
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"capturebox/internal/api"
	"capturebox/internal/config"
	"capturebox/internal/mcp"
	"capturebox/internal/middleware"
	"capturebox/internal/store/sqlstore"
)

var version = strconv.FormatInt(time.Now().Unix(), 10)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	cfg := config.Load()

	store, err := sqlstore.New(cfg.DBDriver, cfg.DBConn)
	if err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	handlers := api.NewHandlers(store, cfg.UploadDir, cfg.GeminiAPIKey)

	mux := http.NewServeMux()

	// Serve index.html with cache-busting version
	tmpl := template.Must(template.ParseFiles("./static/index.html"))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.FileServer(http.Dir("./static")).ServeHTTP(w, r)
			return
		}
		tmpl.Execute(w, map[string]string{"Version": version})
	})
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir("./static"))))

	api.RegisterRoutes(mux, handlers)

	// MCP tool endpoint for agent clients
	mux.Handle("/mcp", mcp.NewServer(store).HTTPHandler())

	// Apply middleware: Logging -> Auth
	handler := middleware.Logging(middleware.Auth(mux))

	slog.Info("server started", "addr", cfg.Addr, "db", cfg.DBDriver)
	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
