package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docpipeline/internal/fileutil"
	"docpipeline/internal/model"
	"docpipeline/internal/repository"
	repoMocks "docpipeline/internal/repository/mocks"
	"docpipeline/internal/service/mocks"
)

type watcherFixture struct {
	w         *Watcher
	queue     *repoMocks.MockQueueRepository
	sink      *mocks.RecordingSink
	webdav    string
	processed string
}

func newWatcherFixture(t *testing.T, stable bool) *watcherFixture {
	t.Helper()
	root := t.TempDir()
	f := &watcherFixture{
		queue:     new(repoMocks.MockQueueRepository),
		sink:      new(mocks.RecordingSink),
		webdav:    filepath.Join(root, "webdav"),
		processed: filepath.Join(root, "processed"),
	}
	require.NoError(t, os.MkdirAll(f.webdav, 0o755))

	f.w = NewWatcher(WatcherConfig{
		WebDAVDir:           f.webdav,
		ProcessedDir:        f.processed,
		MaxConcurrentJobs:   2,
		StabilityChecks:     3,
		StabilityInterval:   time.Millisecond,
		MaxStabilityRetries: 2,
	}, f.queue, testTenants(), f.sink, nil, testLogger())
	f.w.stable = func(context.Context, string, int, time.Duration) (bool, error) { return stable, nil }
	return f
}

func TestWatcher_EnqueuesAndRelocates(t *testing.T) {
	f := newWatcherFixture(t, true)
	name := "acme_20260101_090000.pdf"
	writeFile(t, f.webdav, name, "%PDF-1.4 invoice")
	hash := fileutil.HashBytes([]byte("%PDF-1.4 invoice"))

	f.queue.On("FindBySourceRef", mock.Anything, "t-acme", name).Return(nil, repository.ErrNotFound)
	f.queue.On("FindByContentHash", mock.Anything, "t-acme", hash).Return(nil, repository.ErrNotFound)
	f.queue.On("Create", mock.Anything, mock.MatchedBy(func(it *model.QueueItem) bool {
		return it.TenantID == "t-acme" && it.SourceRef == name && it.Status == model.QueueStatusPending &&
			it.Source == model.SourceSFTP && it.Attempts == 0 && it.ContentHash != nil && *it.ContentHash == hash
	})).Return(&model.QueueItem{ID: "q-1", TenantID: "t-acme", SourceRef: name}, nil)

	require.NoError(t, f.w.Scan(context.Background()))

	assert.False(t, exists(filepath.Join(f.webdav, name)))
	assert.True(t, exists(filepath.Join(f.processed, name)))
	assert.Equal(t, []model.LogLevel{model.LogInfo}, f.sink.Levels())
	assert.Equal(t, "t-acme", f.sink.Entries()[0].TenantID)
	f.queue.AssertExpectations(t)
}

func TestWatcher_IgnoresNonCandidates(t *testing.T) {
	f := newWatcherFixture(t, true)
	for _, name := range []string{".acme_hidden.pdf", "acme_1.pdf.part", "acme_2.pdf.tmp", "acme_3.pdf~", "acme_notes.txt"} {
		writeFile(t, f.webdav, name, "x")
	}
	require.NoError(t, os.Mkdir(filepath.Join(f.webdav, "acme_dir.pdf"), 0o755))

	require.NoError(t, f.w.Scan(context.Background()))

	f.queue.AssertNotCalled(t, "FindBySourceRef", mock.Anything, mock.Anything, mock.Anything)
	assert.True(t, exists(filepath.Join(f.webdav, "acme_1.pdf.part")))
	assert.Empty(t, f.sink.Entries())
}

func TestWatcher_DeletesUnroutableFiles(t *testing.T) {
	f := newWatcherFixture(t, true)
	noPrefix := writeFile(t, f.webdav, "scan.pdf", "x")
	unknown := writeFile(t, f.webdav, "zeta_20260101_090000.pdf", "y")

	require.NoError(t, f.w.Scan(context.Background()))

	assert.False(t, exists(noPrefix))
	assert.False(t, exists(unknown))
	assert.Equal(t, []model.LogLevel{model.LogError, model.LogError}, f.sink.Levels())
	for _, e := range f.sink.Entries() {
		assert.Empty(t, e.TenantID)
	}
	f.queue.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestWatcher_SameSourceRefIsRelocatedWithoutEnqueue(t *testing.T) {
	f := newWatcherFixture(t, true)
	name := "acme_20260101_090000.pdf"
	writeFile(t, f.webdav, name, "again")

	f.queue.On("FindBySourceRef", mock.Anything, "t-acme", name).Return(&model.QueueItem{ID: "q-1"}, nil)

	require.NoError(t, f.w.Scan(context.Background()))

	assert.True(t, exists(filepath.Join(f.processed, name)))
	f.queue.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestWatcher_DuplicateContentGoesToDuplicates(t *testing.T) {
	f := newWatcherFixture(t, true)
	name := "acme_20260102_100000.pdf"
	writeFile(t, f.webdav, name, "same bytes")

	f.queue.On("FindBySourceRef", mock.Anything, "t-acme", name).Return(nil, repository.ErrNotFound)
	f.queue.On("FindByContentHash", mock.Anything, "t-acme", fileutil.HashBytes([]byte("same bytes"))).
		Return(&model.QueueItem{ID: "q-1", SourceRef: "acme_20260101_090000.pdf"}, nil)

	require.NoError(t, f.w.Scan(context.Background()))

	assert.True(t, exists(filepath.Join(f.processed, "duplicates", name)))
	assert.False(t, exists(filepath.Join(f.processed, name)))
	assert.Equal(t, []model.LogLevel{model.LogInfo}, f.sink.Levels())
	assert.Equal(t, "acme_20260101_090000.pdf", f.sink.Entries()[0].Details["originalSourceRef"])
	f.queue.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestWatcher_EnqueueFailureLeavesFile(t *testing.T) {
	f := newWatcherFixture(t, true)
	name := "acme_20260101_090000.pdf"
	src := writeFile(t, f.webdav, name, "x")

	f.queue.On("FindBySourceRef", mock.Anything, "t-acme", name).Return(nil, repository.ErrNotFound)
	f.queue.On("FindByContentHash", mock.Anything, "t-acme", mock.Anything).Return(nil, repository.ErrNotFound)
	f.queue.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	require.NoError(t, f.w.Scan(context.Background()))

	assert.True(t, exists(src))
	assert.False(t, exists(filepath.Join(f.processed, name)))
}

func TestWatcher_NeverStableFileIsDeletedAfterRetries(t *testing.T) {
	f := newWatcherFixture(t, false)
	name := "acme_20260101_090000.pdf"
	src := writeFile(t, f.webdav, name, "growing")

	require.NoError(t, f.w.Scan(context.Background()))
	assert.True(t, exists(src))
	assert.Equal(t, 1, f.w.tracker.unstableCount(name))
	assert.Empty(t, f.sink.Entries())

	require.NoError(t, f.w.Scan(context.Background()))
	assert.False(t, exists(src))
	assert.Zero(t, f.w.tracker.unstableCount(name))
	require.Len(t, f.sink.Entries(), 1)
	assert.Equal(t, model.LogError, f.sink.Entries()[0].Level)
	assert.Equal(t, "t-acme", f.sink.Entries()[0].TenantID)
}

func TestWatcher_PrunesCountersOfVanishedFiles(t *testing.T) {
	f := newWatcherFixture(t, false)
	src := writeFile(t, f.webdav, "acme_20260101_090000.pdf", "x")

	require.NoError(t, f.w.Scan(context.Background()))
	require.Equal(t, 1, f.w.tracker.unstableCount("acme_20260101_090000.pdf"))

	require.NoError(t, os.Remove(src))
	require.NoError(t, f.w.Scan(context.Background()))
	assert.Zero(t, f.w.tracker.unstableCount("acme_20260101_090000.pdf"))
}

func TestWatcher_Lock(t *testing.T) {
	f := newWatcherFixture(t, true)
	require.NoError(t, f.w.Lock())
	defer f.w.Unlock()

	second := NewWatcher(WatcherConfig{WebDAVDir: f.webdav, ProcessedDir: f.processed}, f.queue, testTenants(), f.sink, nil, testLogger())
	err := second.Lock()
	assert.ErrorIs(t, err, ErrWatcherLocked)

	require.NoError(t, f.w.Unlock())
	require.NoError(t, second.Lock())
	require.NoError(t, second.Unlock())
}

func TestWatcher_MissingIntakeDir(t *testing.T) {
	f := newWatcherFixture(t, true)
	require.NoError(t, os.RemoveAll(f.webdav))

	assert.Error(t, f.w.Scan(context.Background()))
}
