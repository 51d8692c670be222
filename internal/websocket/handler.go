package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"

	"smartbin-backend/internal/middleware"
	"smartbin-backend/pkg/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket upgrades HTTP connection to WebSocket. Browsers cannot
// set headers on the upgrade request, so the token may come in ?token=.
func HandleWebSocket(hub *Hub, jwtSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if tokenString := r.URL.Query().Get("token"); tokenString != "" {
			claims, err := middleware.ParseToken(jwtSecret, tokenString)
			if err != nil {
				hub.log.Warn().Err(err).Msg("❌ Invalid token in query parameter")
				utils.Error(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			userClaims, ok = claims, true
		}
		if !ok {
			utils.Error(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if !hasRole(dashboardRoles, userClaims.Role) {
			utils.Error(w, http.StatusForbidden, "Forbidden")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Error().Err(err).Msg("❌ WebSocket upgrade failed")
			return
		}

		client := NewClient(userClaims.UserID, userClaims.Role, conn, hub)
		if !hub.addClient(client) {
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}
