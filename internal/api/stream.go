package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// sseWriter writes Server-Sent Events, sending headers lazily so errors raised
// before the first event can still be rendered as JSON.
type sseWriter struct {
	c       *gin.Context
	started bool
}

func (w *sseWriter) send(event string, data interface{}) error {
	if !w.started {
		w.c.Header("Content-Type", "text/event-stream")
		w.c.Header("Cache-Control", "no-cache")
		w.c.Header("Connection", "keep-alive")
		w.c.Header("X-Accel-Buffering", "no")
		w.started = true
	}
	w.c.SSEvent(event, data)
	w.c.Writer.Flush()
	return w.c.Request.Context().Err()
}

// finish renders err unless the stream is already under way.
func (w *sseWriter) finish(h *Handler, err error) {
	if err == nil {
		if !w.started {
			w.c.Status(http.StatusNoContent)
		}
		return
	}
	if !w.started {
		respondError(w.c, err)
		return
	}
	if w.c.Request.Context().Err() == nil {
		h.logger.Warn("Stream ended with error", zap.String("path", w.c.FullPath()), zap.Error(err))
	}
}
