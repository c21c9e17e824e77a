package processor

import (
	"sync"
	"time"
)

type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseAnnouncing
	PhaseCollecting
	PhaseFiltering
	PhaseAggregating
	PhaseEvaluating
	PhaseCompleted
	PhaseFailed
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseAnnouncing:
		return "Announcing"
	case PhaseCollecting:
		return "Collecting"
	case PhaseFiltering:
		return "Filtering"
	case PhaseAggregating:
		return "Aggregating"
	case PhaseEvaluating:
		return "Evaluating"
	case PhaseCompleted:
		return "Completed"
	case PhaseFailed:
		return "Failed"
	case PhaseFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}

type Status struct {
	Phase                Phase
	Round                uint64
	Attempt              int
	RegisteredNodes      int
	CompletedRounds      int
	FailedAttempts       int
	LastCompletedRound   uint64
	LastStateFingerprint string
	LastAuditDigest      string
	LastRoundDuration    time.Duration
}

type StatusMutex struct {
	mutex  sync.RWMutex
	status Status
}

func (sm *StatusMutex) setPhase(phase Phase) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.status.Phase = phase
}

func (sm *StatusMutex) startAttempt(round uint64, attempt int) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.status.Phase = PhaseAnnouncing
	sm.status.Round = round
	sm.status.Attempt = attempt
}

func (sm *StatusMutex) setRegisteredNodes(count int) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.status.RegisteredNodes = count
}

func (sm *StatusMutex) setLastCompleted(round uint64, stateFingerprint, auditDigest string) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.status.LastCompletedRound = round
	sm.status.LastStateFingerprint = stateFingerprint
	sm.status.LastAuditDigest = auditDigest
}

func (sm *StatusMutex) completed(round uint64, stateFingerprint, auditDigest string, took time.Duration) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.status.Phase = PhaseCompleted
	sm.status.CompletedRounds++
	sm.status.LastCompletedRound = round
	sm.status.LastStateFingerprint = stateFingerprint
	sm.status.LastAuditDigest = auditDigest
	sm.status.LastRoundDuration = took
}

func (sm *StatusMutex) failed(took time.Duration) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.status.Phase = PhaseFailed
	sm.status.FailedAttempts++
	sm.status.LastRoundDuration = took
}

func (sm *StatusMutex) Get() Status {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	return sm.status
}
