package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"capturebox/internal/models"

	"google.golang.org/genai"
)

// AssistantHandler answers a question about the caller's captured transcripts
// using Gemini, keeping the conversation history the client sends back.
func (h *Handlers) AssistantHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if h.geminiAPIKey == "" {
		writeError(w, http.StatusServiceUnavailable, "Assistant is not configured")
		return
	}

	var body struct {
		Question string               `json:"question"`
		History  []models.ChatMessage `json:"history"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Question == "" {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	captures, err := h.store.ListCaptures(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}

	answer, err := analyzeCaptures(r.Context(), h.geminiAPIKey, captures, body.Question, body.History)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Assistant request failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": answer})
}

// analyzeCaptures sends the capture transcripts and a question to the Gemini
// API and returns the response.
func analyzeCaptures(ctx context.Context, apiKey string, captures []models.Capture, question string, history []models.ChatMessage) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create Gemini client: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("You are a helpful assistant analyzing a user's capture sessions. ")
	sb.WriteString("Here are the voice transcripts of their captures:\n\n")
	for _, c := range captures {
		if c.VoiceTranscript == "" {
			continue
		}
		timestamp := c.CreatedAt.Format(time.RFC1123)
		sb.WriteString(fmt.Sprintf("--- Capture from %s (%d images) ---\n%s\n\n", timestamp, len(c.Images), c.VoiceTranscript))
	}

	var chatHistory []*genai.Content
	for _, msg := range history {
		role := "user"
		if msg.Role == "model" {
			role = "model"
		}
		chatHistory = append(chatHistory, &genai.Content{
			Role: role,
			Parts: []*genai.Part{
				{Text: msg.Content},
			},
		})
	}

	chat, err := client.Chats.Create(ctx, "gemini-2.5-flash", &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{
				{Text: sb.String()},
			},
		},
	}, chatHistory)
	if err != nil {
		return "", fmt.Errorf("failed to create chat session: %w", err)
	}

	resp, err := chat.SendMessage(ctx, genai.Part{Text: question})
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from Gemini")
	}
	if part := resp.Candidates[0].Content.Parts[0]; part.Text != "" {
		return part.Text, nil
	}
	return "", fmt.Errorf("empty response from Gemini")
}
