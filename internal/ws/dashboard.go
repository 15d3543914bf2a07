package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tradebot/backoffice/internal/domain"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is handled at the HTTP level
	},
}

// DashboardSource builds a user's dashboard.
type DashboardSource interface {
	Dashboard(ctx context.Context, userID string) (*domain.Dashboard, error)
}

// TokenVerifier turns the query-string token into claims.
type TokenVerifier interface {
	VerifyToken(token string) (*domain.JWTClaims, error)
}

// DashboardHandler pushes a user's dashboard over a WebSocket at a fixed
// interval.
type DashboardHandler struct {
	source   DashboardSource
	auth     TokenVerifier
	interval time.Duration
	logger   zerolog.Logger
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(source DashboardSource, auth TokenVerifier, interval time.Duration, logger zerolog.Logger) *DashboardHandler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &DashboardHandler{
		source:   source,
		auth:     auth,
		interval: interval,
		logger:   logger.With().Str("component", "ws").Logger(),
	}
}

type frame struct {
	Dashboard *domain.Dashboard `json:"dashboard,omitempty"`
	Error     string            `json:"error,omitempty"`
	Kind      domain.ErrorKind  `json:"kind,omitempty"`
}

// Handle upgrades HTTP to WebSocket and streams dashboard snapshots.
// URL: /ws/dashboard?token=JWT_TOKEN
func (h *DashboardHandler) Handle(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token required", http.StatusUnauthorized)
		return
	}

	claims, err := h.auth.VerifyToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := h.logger.With().Str("user_id", claims.Sub).Logger()
	log.Debug().Msg("dashboard stream opened")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The client never sends anything useful; reading detects the disconnect.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		if err := h.push(ctx, conn, claims.Sub); err != nil {
			log.Debug().Err(err).Msg("dashboard stream closed")
			return
		}
		select {
		case <-ctx.Done():
			log.Debug().Msg("dashboard stream closed by client")
			return
		case <-ticker.C:
		}
	}
}

func (h *DashboardHandler) push(ctx context.Context, conn *websocket.Conn, userID string) error {
	var f frame
	dash, err := h.source.Dashboard(ctx, userID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.Error, f.Kind = "dashboard unavailable", domain.KindInternal
		if appErr, ok := domain.AsAppError(err); ok {
			f.Kind = appErr.Kind
			if appErr.Client() {
				f.Error = appErr.Message
			}
		}
	} else {
		f.Dashboard = dash
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(f)
}
