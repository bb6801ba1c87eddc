// Package ingest provides the websocket endpoint through which clients stream
// check-in audio.
//
// The protocol is a single websocket per client. Text messages carry JSON
// control events; binary messages carry audio. A check-in looks like:
//
//	→ {"type":"start","user_id":"u1","codec":"opus"}
//	→ <binary audio packets>
//	← {"type":"level","level":0.42}          (periodic input feedback)
//	→ {"type":"stop","transcript":"..."}
//	← {"type":"result","metrics":{...},"mismatch":{...}}
//	← {"type":"result_updated","metrics":{...}}   (after semantic fusion)
//	→ {"type":"self_report","stress_score":40,"fatigue_score":60}
//	← {"type":"calibration","calibration":{...}}
//
// A connection drop mid-capture aborts the session; the partial recording is
// discarded by the manager's abort path, not scored.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/novahale/vocalis/internal/checkin"
	"github.com/novahale/vocalis/internal/processor"
	"github.com/novahale/vocalis/pkg/audio"
	"github.com/novahale/vocalis/pkg/types"
)

// maxMessageBytes bounds a single websocket message. Audio arrives in small
// packets; anything larger is a protocol violation.
const maxMessageBytes = 1 << 20

// levelEvery throttles input-level feedback to one message per N audio frames.
const levelEvery = 25

// clientMessage is the union of all client control events.
type clientMessage struct {
	Type string `json:"type"`

	// start
	UserID     string `json:"user_id,omitempty"`
	Codec      string `json:"codec,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`

	// stop
	Transcript string `json:"transcript,omitempty"`

	// self_report
	StressScore  float64 `json:"stress_score,omitempty"`
	FatigueScore float64 `json:"fatigue_score,omitempty"`

	// baseline
	PromptID string `json:"prompt_id,omitempty"`
}

// serverMessage is the union of all server events.
type serverMessage struct {
	Type string `json:"type"`

	SessionID   string                      `json:"session_id,omitempty"`
	Level       float64                     `json:"level,omitempty"`
	Metrics     *types.SessionMetrics       `json:"metrics,omitempty"`
	Mismatch    *types.MismatchResult       `json:"mismatch,omitempty"`
	Calibration *types.BiomarkerCalibration `json:"calibration,omitempty"`
	Baseline    *types.VoiceBaseline        `json:"baseline,omitempty"`

	// Persisted reports whether a calibration update reached durable
	// storage; false means it is active in memory only and Warning says so.
	Persisted *bool  `json:"persisted,omitempty"`
	Warning   string `json:"warning,omitempty"`

	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Handler accepts check-in websocket connections.
type Handler struct {
	manager *checkin.Manager
	logger  *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger overrides the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// NewHandler creates a websocket ingest handler driving the given manager.
func NewHandler(m *checkin.Manager, opts ...Option) *Handler {
	h := &Handler{manager: m, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the request and serves the check-in protocol until the
// client disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	c := &clientConn{handler: h, conn: conn}
	c.serve(r.Context())
}

// clientConn is the per-connection protocol state.
type clientConn struct {
	handler *Handler
	conn    *websocket.Conn

	// writeMu serialises writes: the read loop and the fusion-update
	// goroutine both send.
	writeMu sync.Mutex

	session    *checkin.Session
	source     *wsSource
	opus       *opusDecoder
	sampleRate int
	channels   int
	frameCount int
}

func (c *clientConn) serve(ctx context.Context) {
	defer func() {
		if c.capturing() {
			c.source.interrupt()
			c.handler.manager.Abort(ctx, c.session)
			c.handler.logger.Warn("connection dropped mid-capture",
				"session_id", c.session.ID())
		}
		c.conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	for {
		kind, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}

		switch kind {
		case websocket.MessageBinary:
			c.handleAudio(data)
		case websocket.MessageText:
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				c.sendError(ctx, "bad_request", "malformed control message")
				continue
			}
			if done := c.handleControl(ctx, msg); done {
				return
			}
		}
	}
}

func (c *clientConn) capturing() bool {
	return c.session != nil && c.session.State() == checkin.StateCapturing
}

func (c *clientConn) handleControl(ctx context.Context, msg clientMessage) (done bool) {
	switch msg.Type {
	case "start":
		c.handleStart(ctx, msg)
	case "stop":
		c.handleStop(ctx, msg)
	case "self_report":
		c.handleSelfReport(ctx, msg)
	case "baseline":
		c.handleBaseline(ctx, msg)
	case "close":
		return true
	default:
		c.sendError(ctx, "bad_request", fmt.Sprintf("unknown message type %q", msg.Type))
	}
	return false
}

func (c *clientConn) handleStart(ctx context.Context, msg clientMessage) {
	if c.capturing() {
		c.sendError(ctx, "bad_request", "a check-in is already in progress")
		return
	}
	if msg.UserID == "" {
		c.sendError(ctx, "bad_request", "user_id is required")
		return
	}

	c.channels = msg.Channels
	if c.channels == 0 {
		c.channels = 1
	}

	switch msg.Codec {
	case "", "pcm16":
		c.opus = nil
		c.sampleRate = msg.SampleRate
		if c.sampleRate == 0 {
			c.sampleRate = audio.PipelineSampleRate
		}
	case "opus":
		dec, err := newOpusDecoder(c.channels)
		if err != nil {
			c.sendError(ctx, "bad_request", err.Error())
			return
		}
		c.opus = dec
		c.sampleRate = opusSampleRate
	default:
		c.sendError(ctx, "bad_request", fmt.Sprintf("unknown codec %q", msg.Codec))
		return
	}

	c.source = newWSSource()
	c.frameCount = 0
	session, err := c.handler.manager.Start(ctx, msg.UserID, c.source)
	if err != nil {
		c.sendError(ctx, "internal", "failed to start check-in")
		return
	}
	c.session = session
	c.send(ctx, serverMessage{Type: "started", SessionID: session.ID()})
}

func (c *clientConn) handleAudio(data []byte) {
	if !c.capturing() {
		return
	}

	pcm := data
	if c.opus != nil {
		decoded, err := c.opus.decode(data)
		if err != nil {
			c.handler.logger.Debug("dropping undecodable packet",
				"session_id", c.session.ID(), "error", err)
			return
		}
		pcm = decoded
	}

	level, dropped := c.source.push(audio.Frame{
		Data:       pcm,
		SampleRate: c.sampleRate,
		Channels:   c.channels,
	})
	if dropped {
		return
	}

	c.frameCount++
	if c.frameCount%levelEvery == 0 {
		c.send(context.Background(), serverMessage{Type: "level", Level: level})
	}
}

func (c *clientConn) handleStop(ctx context.Context, msg clientMessage) {
	if !c.capturing() {
		c.sendError(ctx, "bad_request", "no check-in in progress")
		return
	}
	session := c.session

	metrics, err := c.handler.manager.Complete(ctx, session, msg.Transcript)
	if err != nil {
		c.sendError(ctx, errorCode(err), err.Error())
		return
	}

	c.send(ctx, serverMessage{
		Type:      "result",
		SessionID: session.ID(),
		Metrics:   metrics,
		Mismatch:  session.Mismatch(),
	})

	// Push the blended result when the background semantic attempt lands.
	if msg.Transcript != "" {
		go func() {
			session.WaitSemantic()
			updated := session.Metrics()
			if updated == nil || updated.FusedAt.IsZero() {
				return
			}
			wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			c.send(wctx, serverMessage{
				Type:      "result_updated",
				SessionID: session.ID(),
				Metrics:   updated,
			})
		}()
	}
}

func (c *clientConn) handleSelfReport(ctx context.Context, msg clientMessage) {
	if c.session == nil {
		c.sendError(ctx, "bad_request", "no completed check-in to report against")
		return
	}

	cal, err := c.handler.manager.SubmitSelfReport(ctx, c.session, types.CheckInSelfReport{
		StressScore:  msg.StressScore,
		FatigueScore: msg.FatigueScore,
		ReportedAt:   time.Now(),
	})
	if errors.Is(err, checkin.ErrNotComplete) {
		c.sendError(ctx, "bad_request", "check-in is not complete")
		return
	}

	reply := serverMessage{Type: "calibration", Calibration: &cal, Persisted: boolPtr(true)}
	if err != nil {
		// Persistence failed but the calibration is active in memory; the
		// updated values still apply to this user's next check-ins.
		c.handler.logger.Warn("calibration persisted in memory only",
			"session_id", c.session.ID(), "error", err)
		reply.Persisted = boolPtr(false)
		reply.Warning = "calibration update could not be saved; it applies in memory until the next successful save"
	}
	c.send(ctx, reply)
}

// handleBaseline promotes the completed check-in's recording to the user's
// voice baseline, replacing any previous one.
func (c *clientConn) handleBaseline(ctx context.Context, msg clientMessage) {
	if c.session == nil {
		c.sendError(ctx, "bad_request", "no completed check-in to promote")
		return
	}

	baseline, err := c.handler.manager.SaveBaseline(ctx, c.session, msg.PromptID)
	if errors.Is(err, checkin.ErrNotComplete) {
		c.sendError(ctx, "bad_request", "check-in is not complete")
		return
	}
	if err != nil {
		c.sendError(ctx, "internal", "baseline could not be saved")
		return
	}
	c.send(ctx, serverMessage{Type: "baseline", Baseline: baseline})
}

func boolPtr(b bool) *bool { return &b }

func (c *clientConn) send(ctx context.Context, msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.handler.logger.Debug("websocket write failed", "error", err)
	}
}

func (c *clientConn) sendError(ctx context.Context, code, message string) {
	c.send(ctx, serverMessage{Type: "error", Code: code, Message: message})
}

// errorCode maps pipeline errors to protocol error codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, processor.ErrInsufficientSpeech):
		return "insufficient_speech"
	case errors.Is(err, processor.ErrRecordingTooLong):
		return "recording_too_long"
	default:
		return "internal"
	}
}
