package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"seminar-attendance/internal/api"
	"seminar-attendance/internal/attendance"
	"seminar-attendance/internal/metrics"
	"seminar-attendance/internal/payload"
	"seminar-attendance/internal/queue"
)

// Headcounter reads live per-seminar presence counts.
type Headcounter interface {
	Current(ctx context.Context, seminarID string) (int64, error)
}

// Deps are the collaborators of a Handler. Queue and Headcount may be nil.
type Deps struct {
	Resolver     *attendance.Resolver
	Records      attendance.Lister
	Queue        queue.Queue
	Headcount    Headcounter
	StoreTimeout time.Duration
	Logger       *slog.Logger
}

type Handler struct {
	resolver     *attendance.Resolver
	records      attendance.Lister
	queue        queue.Queue
	headcount    Headcounter
	storeTimeout time.Duration
	logger       *slog.Logger
}

func New(d Deps) *Handler {
	if d.StoreTimeout <= 0 {
		d.StoreTimeout = 10 * time.Second
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handler{
		resolver:     d.Resolver,
		records:      d.Records,
		queue:        d.Queue,
		headcount:    d.Headcount,
		storeTimeout: d.StoreTimeout,
		logger:       d.Logger,
	}
}

// Routes mounts the attendance API on r.
func (h *Handler) Routes(r gin.IRouter) {
	r.POST("/scans", h.Scan)
	r.POST("/attendance/manual", h.Manual)
	r.GET("/payload", h.Payload)
	r.GET("/seminars/:id/attendance", h.ListAttendance)
	r.GET("/seminars/:id/headcount", h.Headcount)
}

const invalidPayloadMessage = "Invalid QR - expected { seminar_id, participant_email } or seminarId|email"

// Scan decodes a scanned payload and resolves it.
func (h *Handler) Scan(c *gin.Context) {
	var req api.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ResolveResponse{Status: attendance.StatusError, Message: invalidPayloadMessage, Error: err.Error()})
		return
	}
	id, err := payload.Decode(req.Payload)
	if err != nil {
		metrics.Scans.WithLabelValues("scan", "invalid_payload").Inc()
		c.JSON(http.StatusBadRequest, api.ResolveResponse{Status: attendance.StatusError, Message: invalidPayloadMessage, Error: err.Error()})
		return
	}
	h.resolve(c, id, "scan")
}

// Manual resolves an identity typed in by an operator.
func (h *Handler) Manual(c *gin.Context) {
	var req api.ManualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.Scans.WithLabelValues("manual", "invalid_payload").Inc()
		c.JSON(http.StatusBadRequest, api.ResolveResponse{Status: attendance.StatusError, Message: "Enter seminar id and participant email.", Error: err.Error()})
		return
	}
	h.resolve(c, payload.Identity{SeminarID: req.SeminarID, ParticipantEmail: req.ParticipantEmail}, "manual")
}

func (h *Handler) resolve(c *gin.Context, id payload.Identity, source string) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.storeTimeout)
	defer cancel()

	res, err := h.resolver.Resolve(ctx, id)
	if err != nil {
		code, outcome := http.StatusBadGateway, "store_error"
		msg := "Error recording attendance."
		if errors.Is(err, payload.ErrInvalidPayload) {
			code, outcome, msg = http.StatusBadRequest, "invalid_payload", "Enter seminar id and participant email."
		}
		metrics.Scans.WithLabelValues(source, outcome).Inc()
		metrics.Resolutions.WithLabelValues(string(attendance.StatusError), "false").Inc()
		c.JSON(code, api.ResolveResponse{
			Status:           attendance.StatusError,
			SeminarID:        id.SeminarID,
			ParticipantEmail: id.ParticipantEmail,
			Message:          msg,
			Error:            err.Error(),
		})
		return
	}

	metrics.Scans.WithLabelValues(source, outcomeLabel(res.Status)).Inc()
	metrics.Resolutions.WithLabelValues(string(res.Status), strconv.FormatBool(res.Changed)).Inc()
	if res.Changed {
		h.publish(ctx, res)
	}

	at := res.At
	c.JSON(http.StatusOK, api.ResolveResponse{
		Status:           res.Status,
		At:               &at,
		SeminarID:        id.SeminarID,
		ParticipantEmail: id.ParticipantEmail,
		Changed:          res.Changed,
		Message:          message(res),
	})
}

func outcomeLabel(s attendance.Status) string {
	if s == attendance.StatusCheckedIn {
		return "checked_in"
	}
	return "checked_out"
}

func message(res attendance.Result) string {
	direction := "IN"
	if res.Status == attendance.StatusCheckedOut {
		direction = "OUT"
	}
	return res.Identity.ParticipantEmail + " checked " + direction + " at " + res.At.Local().Format("15:04:05")
}

// publishTimeout bounds the queue write once the store change has committed.
const publishTimeout = 2 * time.Second

// publish notifies the worker; failures do not affect the response.
func (h *Handler) publish(ctx context.Context, res attendance.Result) {
	if h.queue == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	typ := queue.TypeCheckedIn
	if res.Status == attendance.StatusCheckedOut {
		typ = queue.TypeCheckedOut
	}
	msg, err := queue.NewEventMessage(typ, queue.Event{
		SeminarID:        res.Identity.SeminarID,
		ParticipantEmail: res.Identity.ParticipantEmail,
		At:               res.At,
	})
	if err == nil {
		err = h.queue.Publish(ctx, msg)
	}
	if err != nil {
		metrics.QueueEvents.WithLabelValues(typ, "publish_failed").Inc()
		h.logger.Warn("queue publish failed", "type", typ, "error", err)
	}
}

// Payload returns the QR payload for a participant, for display-side renderers.
func (h *Handler) Payload(c *gin.Context) {
	id := payload.Identity{
		SeminarID:        c.Query("seminar_id"),
		ParticipantEmail: c.Query("participant_email"),
	}
	if !id.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "seminar_id and participant_email required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payload": payload.Encode(id)})
}

// ListAttendance returns the records of one seminar.
func (h *Handler) ListAttendance(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.storeTimeout)
	defer cancel()

	recs, err := h.records.ListBySeminar(ctx, c.Param("id"))
	if err != nil {
		h.logger.Error("list attendance failed", "seminar_id", c.Param("id"), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "attendance store unavailable"})
		return
	}
	if recs == nil {
		recs = []attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

// Headcount returns how many participants are currently checked in.
func (h *Handler) Headcount(c *gin.Context) {
	if h.headcount == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "headcount not configured"})
		return
	}
	n, err := h.headcount.Current(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("headcount read failed", "seminar_id", c.Param("id"), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "headcount unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"seminar_id": c.Param("id"), "present": n})
}
