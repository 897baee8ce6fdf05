// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pyforge/controlplane/internal/controlplane/models"
	"github.com/pyforge/controlplane/internal/logs"
	loggermw "github.com/pyforge/controlplane/internal/server/middleware/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamLatestLogs handles stream-latest-logs: upgrades to a websocket and
// runs the Log Pipeline's push algorithm, forwarding each frame as a JSON
// message until the stream ends or the client disconnects.
func (h *Handler) StreamLatestLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID := r.PathValue("taskID")
	log := loggermw.GetLogger(ctx)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "task_id", taskID, "error", err)
		return
	}
	defer conn.Close()

	emit := func(frame logs.Frame) error {
		payload := streamFrame{Type: frame.Type}
		if frame.Result != nil {
			records := make([]*models.LogRecordResponse, len(frame.Result.Logs))
			for i, l := range frame.Result.Logs {
				records[i] = models.NewLogRecordResponse(l)
			}
			payload.Logs = &models.LogsResponse{
				Phase:  string(frame.Result.Phase),
				Source: frame.Result.Source,
				Error:  frame.Result.Error,
				Logs:   records,
			}
		}
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(payload)
	}

	if err := h.tasks.StreamLatestLogs(ctx, taskID, emit); err != nil {
		log.Warn("log stream ended with error", "task_id", taskID, "error", err)
		_ = conn.WriteJSON(streamFrame{Type: "error", Error: err.Error()})
	}
}

type streamFrame struct {
	Type  string               `json:"type"`
	Logs  *models.LogsResponse `json:"logs,omitempty"`
	Error string               `json:"error,omitempty"`
}
