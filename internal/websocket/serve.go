package websocket

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin is enforced by the CORS layer
	},
}

// SessionHandler attaches per-connection state. StartSession runs after
// the client registers with the hub; the returned handler receives the
// client's control messages. ctx is cancelled when the connection
// closes, which must tear down everything the session started.
type SessionHandler interface {
	StartSession(ctx context.Context, client *Client) func(*Message)
}

// ServeWS authenticates the websocket handshake and runs the
// connection's pumps until the peer goes away.
func ServeWS(hub *Hub, jwtSecret string, sessions SessionHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := userIDFromRequest(r, jwtSecret)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(hub, conn, userID)

		ctx, cancel := context.WithCancel(context.Background())
		if sessions != nil {
			client.onMessage = sessions.StartSession(ctx, client)
		}

		hub.register <- client

		go client.writePump()
		client.readPump()

		// readPump returned: the connection is gone, release the session.
		cancel()
	})
}

func userIDFromRequest(r *http.Request, secret string) (string, error) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		auth := r.Header.Get("Authorization")
		tokenString = strings.TrimPrefix(auth, "Bearer ")
	}
	if tokenString == "" {
		return "", errors.New("missing token")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errors.New("token missing subject")
	}
	return sub, nil
}
