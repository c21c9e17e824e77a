package store

import (
	"encoding/json"
	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
	"net/http"
	"sync"
	"time"
)

type EventListener struct {
	PebbleListener pebble.EventListener
	logger         *zap.SugaredLogger
	info           *PebbleEventInfo
	mutex          sync.RWMutex
}

func NewEventListener(logger *zap.Logger) *EventListener {
	if logger == nil {
		logger = zap.NewNop()
	}

	el := EventListener{logger: logger.Sugar().Named("pebble")}

	listener := pebble.EventListener{}
	listener.BackgroundError = el.backgroundError
	listener.CompactionBegin = el.compactionBegin
	listener.CompactionEnd = el.compactionEnd
	listener.FlushBegin = el.flushBegin
	listener.FlushEnd = el.flushEnd
	listener.WriteStallBegin = el.writeStallBegin
	listener.WriteStallEnd = el.writeStallEnd

	el.PebbleListener = listener
	el.info = &PebbleEventInfo{
		Errors:      make([]PebbleErrorWithTimeStamp, 0),
		Compactions: make(map[int]*PebbleCompaction),
		Flushes:     make(map[int]*PebbleFlush),
	}

	return &el
}

func (el *EventListener) backgroundError(err error) {
	el.logger.Errorw("background error", "error", err)

	el.mutex.Lock()
	defer el.mutex.Unlock()

	el.info.Errors = append(el.info.Errors, PebbleErrorWithTimeStamp{
		Err:       err.Error(),
		Timestamp: now(),
	})
}

func (el *EventListener) compactionBegin(info pebble.CompactionInfo) {
	var fromLevels []PebbleLevel
	for _, level := range info.Input {
		fromLevels = append(fromLevels, PebbleLevel{
			Level:       level.Level,
			Description: level.String(),
		})
	}
	el.logger.Infow("compaction triggered", "jobID", info.JobID, "reason", info.Reason, "toLevel", info.Output.Level)

	el.mutex.Lock()
	defer el.mutex.Unlock()

	el.info.Compactions[info.JobID] = &PebbleCompaction{
		PebbleDiskOperation: PebbleDiskOperation{
			Reason:    info.Reason,
			StartedAt: now(),
		},
		From: fromLevels,
		To: PebbleLevel{
			Level:       info.Output.Level,
			Description: info.Output.String(),
		},
	}
}

func (el *EventListener) compactionEnd(info pebble.CompactionInfo) {
	el.logger.Infow("compaction ended", "jobID", info.JobID, "took", info.TotalDuration)

	el.mutex.Lock()
	defer el.mutex.Unlock()

	compaction, ok := el.info.Compactions[info.JobID]
	if !ok {
		return
	}
	compaction.Finished = true
	compaction.EndedAt = now()
	compaction.Duration = info.TotalDuration.String()
}

func (el *EventListener) flushBegin(info pebble.FlushInfo) {
	el.logger.Infow("flush triggered", "jobID", info.JobID, "reason", info.Reason)

	el.mutex.Lock()
	defer el.mutex.Unlock()

	el.info.Flushes[info.JobID] = &PebbleFlush{
		PebbleDiskOperation{
			Reason:    info.Reason,
			StartedAt: now(),
		},
	}
}

func (el *EventListener) flushEnd(info pebble.FlushInfo) {
	el.logger.Infow("flush ended", "jobID", info.JobID, "took", info.TotalDuration)

	el.mutex.Lock()
	defer el.mutex.Unlock()

	flush, ok := el.info.Flushes[info.JobID]
	if !ok {
		return
	}
	flush.Finished = true
	flush.EndedAt = now()
	flush.Duration = info.TotalDuration.String()
}

func (el *EventListener) writeStallBegin(info pebble.WriteStallBeginInfo) {
	el.logger.Warnw("writes stalled", "reason", info.Reason)

	el.mutex.Lock()
	defer el.mutex.Unlock()

	el.info.WritesStalled = true
}

func (el *EventListener) writeStallEnd() {
	el.logger.Info("writes resumed")

	el.mutex.Lock()
	defer el.mutex.Unlock()

	el.info.WritesStalled = false
}

func now() string {
	return time.Now().UTC().Format(time.RFC822)
}

type PebbleErrorWithTimeStamp struct {
	Err       string `json:"err"`
	Timestamp string `json:"timestamp"`
}

type PebbleLevel struct {
	Level       int    `json:"level"`
	Description string `json:"description"`
}

type PebbleDiskOperation struct {
	Reason    string `json:"reason"`
	Finished  bool   `json:"finished"`
	StartedAt string `json:"startedAt"`
	EndedAt   string `json:"endedAt"`
	Duration  string `json:"duration"`
}

type PebbleCompaction struct {
	PebbleDiskOperation
	From []PebbleLevel `json:"from"`
	To   PebbleLevel   `json:"to"`
}

type PebbleFlush struct {
	PebbleDiskOperation
}

type PebbleEventInfo struct {
	WritesStalled bool                       `json:"writesStalled"`
	Errors        []PebbleErrorWithTimeStamp `json:"errors"`
	Compactions   map[int]*PebbleCompaction  `json:"compactions"`
	Flushes       map[int]*PebbleFlush       `json:"flushes"`
}

// HandleEventsEndpoint serves the collected storage events as JSON.
func (el *EventListener) HandleEventsEndpoint(w http.ResponseWriter, _ *http.Request) {
	el.mutex.RLock()
	data, err := json.Marshal(el.info)
	el.mutex.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		if _, werr := w.Write([]byte(err.Error())); werr != nil {
			el.logger.Errorw("writing events error response", "error", werr)
		}
		return
	}

	if _, err := w.Write(data); err != nil {
		el.logger.Errorw("writing events response", "error", err)
	}
}
