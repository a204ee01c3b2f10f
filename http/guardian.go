package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"healthguard/llm"
)

// Chatter answers a Guardian conversation.
type Chatter interface {
	Reply(ctx context.Context, messages []llm.ChatMessage) (string, error)
}

func RegisterGuardianHandlers(mux *http.ServeMux, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	a := &api{Deps: deps}
	mux.HandleFunc("POST /api/guardian/chat", a.handleGuardianChat)
}

func (a *api) handleGuardianChat(w http.ResponseWriter, r *http.Request) {
	if a.Guardian == nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("OpenAI client not configured. Set OPENAI_API_KEY in environment."))
		return
	}

	var body struct {
		Messages []llm.ChatMessage `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Messages) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("messages array required"))
		return
	}

	reply, err := a.Guardian.Reply(r.Context(), body.Messages)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
	case errors.Is(err, llm.ErrNoMessages):
		writeJSON(w, http.StatusBadRequest, errorBody("messages array required"))
	case errors.Is(err, llm.ErrFlagged):
		writeJSON(w, http.StatusBadRequest, errorBody("Content flagged by moderation"))
	case errors.Is(err, llm.ErrNoReply):
		a.log(r).Error("guardian returned no reply")
		writeJSON(w, http.StatusInternalServerError, errorBody("No reply from AI"))
	default:
		a.log(r).Error("guardian chat", zap.Error(err))
		writeJSON(w, statusFor(r), errorBody(err.Error()))
	}
}
