package main

import (
	"sync/atomic"
	"testing"
	"time"

	"docpipeline/internal/eventlog"
	"docpipeline/internal/model"
	"docpipeline/internal/repository/mocks"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestSupervisor_FlushesEventsEmittedDuringShutdown(t *testing.T) {
	repo := new(mocks.MockLogRepository)
	logger, _ := test.NewNullLogger()
	sink := eventlog.NewSink(repo, logger, eventlog.Options{BatchSize: 10, FlushInterval: time.Hour})

	repo.On("InsertBatch", mock.Anything, mock.MatchedBy(func(b []model.ProcessingLogEntry) bool {
		return len(b) == 1 && b[0].Message == "late event"
	})).Return(nil).Once()

	sup := startSupervisor(sink)

	release := make(chan struct{})
	var emitted atomic.Bool
	sup.spawn(func() {
		<-release
		time.Sleep(20 * time.Millisecond)
		sink.Emit(eventlog.Entry(model.LogInfo, model.SourceOCR, "t-acme", "late event"))
		emitted.Store(true)
	})

	close(release)
	sup.wait()

	assert.True(t, emitted.Load())
	assert.Equal(t, 0, sink.Buffered())
	repo.AssertExpectations(t)
}

func TestSupervisor_WaitWithoutLoops(t *testing.T) {
	repo := new(mocks.MockLogRepository)
	logger, _ := test.NewNullLogger()
	sink := eventlog.NewSink(repo, logger, eventlog.Options{BatchSize: 10, FlushInterval: time.Hour})

	sup := startSupervisor(sink)

	done := make(chan struct{})
	go func() {
		sup.wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop the sink")
	}
	repo.AssertNotCalled(t, "InsertBatch", mock.Anything, mock.Anything)
}
