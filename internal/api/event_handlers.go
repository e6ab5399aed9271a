package api

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/radiolink/radiolink/internal/models"
	"github.com/radiolink/radiolink/internal/storage"
	"github.com/radiolink/radiolink/pkg/radio"
)

const (
	wsPingInterval = 20 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsQueueSize    = 64
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

var wsClientSeq atomic.Uint64

// streamMessage is one frame on the websocket event stream
type streamMessage struct {
	Kind   string        `json:"kind"`
	Packet *radio.Packet `json:"packet,omitempty"`
	Event  *radio.Event  `json:"event,omitempty"`
}

// streamSubscriber forwards bus traffic to one websocket connection
type streamSubscriber struct {
	ch chan streamMessage
}

func (s *streamSubscriber) offer(msg streamMessage) {
	select {
	case s.ch <- msg:
	default:
	}
}

func (s *streamSubscriber) HandlePacket(ctx context.Context, pkt radio.Packet) {
	s.offer(streamMessage{Kind: "rx", Packet: &pkt})
}

func (s *streamSubscriber) HandleEvent(ctx context.Context, evt radio.Event) {
	s.offer(streamMessage{Kind: "event", Event: &evt})
}

// HandleEventStream upgrades to a websocket and streams received packets
// and radio events until the client goes away
func (s *RESTServer) HandleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.respondError(w, http.StatusServiceUnavailable, "event stream not available")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := &streamSubscriber{ch: make(chan streamMessage, wsQueueSize)}
	name := fmt.Sprintf("ws-%d", wsClientSeq.Add(1))
	unsubscribe := s.events.Subscribe(name, sub)
	defer unsubscribe()

	// Drain client frames so close and pong control messages are handled.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Info().Str("client", name).Str("remote", r.RemoteAddr).Msg("Event stream client connected")
	defer log.Info().Str("client", name).Msg("Event stream client disconnected")

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case msg := <-sub.ch:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Str("client", name).Msg("Websocket write failed")
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// HandleListEvents lists stored radio events
func (s *RESTServer) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, offset := pagination(r)

	filters := storage.EventLogFilters{}

	if device := r.URL.Query().Get("device"); device != "" {
		filters.Device = &device
	}

	if eventType := r.URL.Query().Get("type"); eventType != "" {
		modelEventType := models.EventType(eventType)
		filters.Type = &modelEventType
	}

	if level := r.URL.Query().Get("level"); level != "" {
		modelEventLevel := models.EventLevel(level)
		filters.Level = &modelEventLevel
	}

	if err := parseTimeRange(r, &filters.StartTime, &filters.EndTime); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, total, err := s.store.ListEventLogs(ctx, filters, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  total,
	})
}

// HandleListPackets lists the packet log
func (s *RESTServer) HandleListPackets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, offset := pagination(r)

	filters := storage.PacketFilters{}

	if device := r.URL.Query().Get("device"); device != "" {
		filters.Device = &device
	}

	switch dir := models.Direction(r.URL.Query().Get("direction")); dir {
	case "":
	case models.DirectionRX, models.DirectionTX:
		filters.Direction = &dir
	default:
		s.respondError(w, http.StatusBadRequest, "direction must be RX or TX")
		return
	}

	if err := parseTimeRange(r, &filters.StartTime, &filters.EndTime); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	packets, total, err := s.store.ListPacketRecords(ctx, filters, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"packets": packets,
		"total":   total,
	})
}

// HandleStatisticsHistory lists recorded statistics snapshots for this radio
func (s *RESTServer) HandleStatisticsHistory(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.radio.Config()
	if err != nil {
		s.respondRadioError(w, err)
		return
	}
	limit, offset := pagination(r)

	snaps, total, err := s.store.ListStatsSnapshots(r.Context(), cfg.DeviceAddress.String(), limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": snaps,
		"total":     total,
	})
}

func parseTimeRange(r *http.Request, start, end **time.Time) error {
	for key, dst := range map[string]**time.Time{"start": start, "end": end} {
		v := r.URL.Query().Get(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("invalid %s time: %w", key, err)
		}
		*dst = &t
	}
	return nil
}
