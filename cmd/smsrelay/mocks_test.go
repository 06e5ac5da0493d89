package main

import (
	"sync"

	"smsrelay/internal/models"

	"github.com/sirupsen/logrus"
)

type fakeSubmitter struct {
	mu      sync.Mutex
	events  []models.IncomingEvent
	err     error
	stopped bool
}

func (f *fakeSubmitter) Submit(event models.IncomingEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeSubmitter) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.stopped
}

func (f *fakeSubmitter) received() []models.IncomingEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.IncomingEvent, len(f.events))
	copy(out, f.events)
	return out
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}
