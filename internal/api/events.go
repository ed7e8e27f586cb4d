package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/speechkit-go/internal/workflow"
)

const (
	eventPollInterval = 250 * time.Millisecond
	pingInterval      = 10 * time.Second
	writeWait         = 5 * time.Second

	finishedCheckEvery = 8
)

var upgrader = websocket.Upgrader{
	// The API is consumed by the CLI and same-origin tools.
	CheckOrigin:     func(*http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// streamEvents pushes the events of one run as JSON messages until the run
// finishes or the client disconnects. ?since=<seq> skips already seen events.
func (s *Server) streamEvents(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.runner.Get(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	since, _ := strconv.ParseInt(c.Query("since"), 10, 64)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "run_id", id, "error", err)
		return
	}
	defer conn.Close()

	// Reads only detect the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	poll := time.NewTicker(eventPollInterval)
	defer poll.Stop()
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	bus := s.runner.Events()
	// send writes pending events and reports whether the stream is over.
	send := func() (done bool) {
		for _, event := range bus.SinceRun(id, since) {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				s.logger.Debug("websocket write failed", "run_id", id, "error", err)
				return true
			}
			since = event.Seq
			if isFinal(event.Type) {
				closeStream(conn, string(event.Type))
				return true
			}
		}
		return false
	}

	for idle := 0; ; {
		if send() {
			return
		}

		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-poll.C:
			// The final event may have left the bounded buffer; fall back to the run record.
			if idle++; idle%finishedCheckEvery == 0 {
				if run, err := s.runner.Get(c.Request.Context(), id); err == nil && run.Finished() {
					if !send() {
						closeStream(conn, string(run.Outcome))
					}
					return
				}
			}
		}
	}
}

func closeStream(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(writeWait))
}

func isFinal(t workflow.EventType) bool {
	switch t {
	case workflow.EventCompleted, workflow.EventCancelled, workflow.EventFailed:
		return true
	}
	return false
}
