package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/DoyleJ11/nofus-backend/internal/hub"
	"github.com/DoyleJ11/nofus-backend/pkg/types"
)

type errorBody struct {
	Error string `json:"error"`
}

func CreateRoom(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm, token, err := h.Create()
		if err != nil {
			log.Error("create room", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to create room"})
			return
		}
		writeJSON(w, http.StatusCreated, types.CreateRoomResponse{RoomCode: rm.Code, HostToken: token})
	}
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
