package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/orbit-visualizer/internal/catalog"
	"github.com/signalsfoundry/orbit-visualizer/internal/logging"
	"github.com/signalsfoundry/orbit-visualizer/kb"
	"github.com/signalsfoundry/orbit-visualizer/model"
)

const (
	liveWriteWait  = 5 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = livePongWait * 9 / 10

	minLiveInterval = 50 * time.Millisecond
	maxLiveInterval = time.Minute
	maxLiveSpeed    = 10000.0
)

// Live frame types.
const (
	frameHello            = "hello"
	framePosition         = "position"
	frameSatelliteUpdated = "satellite_updated"
	frameSatelliteDeleted = "satellite_deleted"
	frameError            = "error"
)

// liveFrame is one message on the live feed.
type liveFrame struct {
	Type        string                  `json:"type"`
	SatelliteID string                  `json:"satellite_id"`
	SentAt      time.Time               `json:"sent_at"`
	Speed       float64                 `json:"speed,omitempty"`
	IntervalMS  int64                   `json:"interval_ms,omitempty"`
	Data        *catalog.PositionReport `json:"data,omitempty"`
	Satellite   *model.Satellite        `json:"satellite,omitempty"`
	Detail      string                  `json:"detail,omitempty"`
}

type liveParams struct {
	speed    float64
	interval time.Duration
	t0       float64
}

func parseLiveParams(r *http.Request) (liveParams, error) {
	one, zero := 1.0, 0.0
	speed, err := queryFloat(r, "speed", &one)
	if err != nil {
		return liveParams{}, err
	}
	if speed <= 0 || speed > maxLiveSpeed {
		return liveParams{}, invalidRequest("speed must be in (0, %g]", maxLiveSpeed)
	}
	ms, err := queryInt(r, "interval_ms", 1000)
	if err != nil {
		return liveParams{}, err
	}
	interval := time.Duration(ms) * time.Millisecond
	if interval < minLiveInterval || interval > maxLiveInterval {
		return liveParams{}, invalidRequest("interval_ms must be between %d and %d",
			minLiveInterval.Milliseconds(), maxLiveInterval.Milliseconds())
	}
	t0, err := queryFloat(r, "t0", &zero)
	if err != nil {
		return liveParams{}, err
	}
	return liveParams{speed: speed, interval: interval, t0: t0}, nil
}

func (s *Server) newUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		HandshakeTimeout: 5 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  4096,
		CheckOrigin:      s.checkOrigin,
	}
}

// checkOrigin accepts requests without an Origin header and origins the
// CORS configuration allows.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
		if strings.EqualFold(allowed, u.Scheme+"://"+u.Host) {
			return true
		}
	}
	return false
}

// handleLive streams positions of one satellite over a WebSocket. Elapsed
// time starts at t0 and advances speed seconds per wall second. Updates to
// the satellite take effect on the next frame; deleting it closes the feed.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	params, err := parseLiveParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !websocket.IsWebSocketUpgrade(r) {
		writeJSON(w, http.StatusUpgradeRequired, errorResponse{Detail: "WebSocket upgrade required"})
		return
	}
	if _, err := s.svc.GetSatellite(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		return
	}
	defer conn.Close()

	log := logging.LoggerFromContext(r.Context(), s.log).With(logging.String("satellite_id", id))
	ctx, cancel := context.WithCancel(s.baseCtx)
	defer cancel()
	ctx = logging.ContextWithRequestID(ctx, logging.RequestIDFromContext(r.Context()))

	log.Info(ctx, "live feed opened",
		logging.Float64("speed", params.speed),
		logging.Duration("interval", params.interval),
	)
	defer log.Info(ctx, "live feed closed")

	events := make(chan catalog.Event, 8)
	unsubscribe := s.svc.Subscribe(func(ev catalog.Event) {
		if ev.SatelliteID != id {
			return
		}
		select {
		case events <- ev:
		default:
		}
	})
	defer unsubscribe()

	go readPump(conn, cancel)

	feed := &liveFeed{conn: conn, id: id, now: s.opts.Now}
	if err := feed.send(liveFrame{
		Type:       frameHello,
		Speed:      params.speed,
		IntervalMS: params.interval.Milliseconds(),
	}); err != nil {
		return
	}

	start := time.Now()
	frames := time.NewTicker(params.interval)
	defer frames.Stop()
	pings := time.NewTicker(livePingPeriod)
	defer pings.Stop()

	sendPosition := func() bool {
		elapsed := params.t0 + time.Since(start).Seconds()*params.speed
		report, err := s.svc.PositionAt(ctx, id, elapsed)
		switch {
		case errors.Is(err, kb.ErrSatelliteNotFound):
			feed.closeWith(frameSatelliteDeleted, "satellite deleted")
			return false
		case err != nil:
			log.Warn(ctx, "live position failed", logging.Err(err))
			_ = feed.send(liveFrame{Type: frameError, Detail: err.Error()})
			return false
		}
		return feed.send(liveFrame{Type: framePosition, Data: &report}) == nil
	}

	if !sendPosition() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			if s.baseCtx.Err() != nil {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(liveWriteWait))
			}
			return
		case <-frames.C:
			if !sendPosition() {
				return
			}
		case ev := <-events:
			switch ev.Type {
			case catalog.SatelliteDeleted:
				feed.closeWith(frameSatelliteDeleted, "satellite deleted")
				return
			case catalog.SatelliteUpdated:
				if feed.send(liveFrame{Type: frameSatelliteUpdated, Satellite: ev.Satellite}) != nil {
					return
				}
			}
		case <-pings.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return
			}
		}
	}
}

type liveFeed struct {
	conn *websocket.Conn
	id   string
	now  func() time.Time
}

func (f *liveFeed) send(frame liveFrame) error {
	frame.SatelliteID = f.id
	frame.SentAt = f.now()
	if err := f.conn.SetWriteDeadline(time.Now().Add(liveWriteWait)); err != nil {
		return err
	}
	return f.conn.WriteJSON(frame)
}

func (f *liveFeed) closeWith(frameType, reason string) {
	_ = f.send(liveFrame{Type: frameType})
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = f.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(liveWriteWait))
}

// readPump drains client messages so control frames are processed, and
// cancels the feed once the client goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(livePongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(livePongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
