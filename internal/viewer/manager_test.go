package viewer

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"

	"github.com/mattjoyce/hexview/internal/events"
	"github.com/mattjoyce/hexview/internal/hexdump"
	"github.com/mattjoyce/hexview/internal/history"
	"github.com/mattjoyce/hexview/internal/log"
	"github.com/mattjoyce/hexview/internal/session"
	"github.com/mattjoyce/hexview/internal/viewer/mocks"
	"github.com/mattjoyce/hexview/internal/workspace"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

type fixture struct {
	mgr      *Manager
	gen      *mocks.MockGenerator
	rec      *mocks.MockRecorder
	watch    *mocks.MockWatcher
	hub      *events.Hub
	dir      string
	filePath string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	dir := t.TempDir()
	filePath := filepath.Join(dir, "hello.bin")
	if err := os.WriteFile(filePath, []byte("Hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	resolver, err := workspace.NewResolver(dir, dir)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	f := &fixture{
		gen:      mocks.NewMockGenerator(ctrl),
		rec:      mocks.NewMockRecorder(ctrl),
		watch:    mocks.NewMockWatcher(ctrl),
		hub:      events.NewHub(64),
		dir:      dir,
		filePath: filePath,
	}
	f.mgr = New(f.gen, resolver,
		WithRecorder(f.rec),
		WithWatcher(f.watch),
		WithHub(f.hub),
	)
	return f
}

func (f *fixture) open(t *testing.T) session.Snapshot {
	t.Helper()
	f.watch.EXPECT().Watch(f.filePath).Return(nil)
	snap, existed, err := f.mgr.Open(context.Background(), "hello.bin")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	assert.False(t, existed)
	return snap
}

func eventTypes(h *events.Hub) []string {
	var out []string
	evs, _ := h.Since(0)
	for _, ev := range evs {
		out = append(out, ev.Type)
	}
	return out
}

func TestOpenCreatesSessionWithoutGenerating(t *testing.T) {
	f := newFixture(t)
	snap := f.open(t)

	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, f.filePath, snap.Path)
	assert.Equal(t, "hello.bin", snap.Title)
	assert.Empty(t, snap.DumpText)
	assert.Equal(t, hexdump.DefaultOptions(), snap.Options)
	assert.Equal(t, []string{events.SessionOpened}, eventTypes(f.hub))
}

func TestOpenSamePathFocusesExisting(t *testing.T) {
	f := newFixture(t)
	first := f.open(t)

	again, existed, err := f.mgr.Open(context.Background(), f.filePath)
	assert.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, first.ID, again.ID)
	assert.Len(t, f.mgr.List(), 1)
	assert.Contains(t, eventTypes(f.hub), events.SessionFocused)
}

func TestOpenRejectsDirectoriesAndMissingFiles(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.mgr.Open(context.Background(), f.dir)
	assert.ErrorIs(t, err, workspace.ErrIsDirectory)

	_, _, err = f.mgr.Open(context.Background(), "missing.bin")
	assert.ErrorIs(t, err, workspace.ErrNotFound)
	assert.Empty(t, f.mgr.List())
}

func TestOpenContinuesWhenWatchFails(t *testing.T) {
	f := newFixture(t)
	f.watch.EXPECT().Watch(f.filePath).Return(errors.New("too many watches"))

	_, _, err := f.mgr.Open(context.Background(), f.filePath)
	assert.NoError(t, err)
}

func TestActivateFirstTimeGeneratesWithDefaults(t *testing.T) {
	f := newFixture(t)
	snap := f.open(t)

	f.gen.EXPECT().Generate(gomock.Any(), f.filePath, hexdump.DefaultOptions()).Return("dump-16", nil)
	f.rec.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e history.Entry) (string, error) {
		assert.Equal(t, history.StatusSucceeded, e.Status)
		assert.Equal(t, snap.ID, e.SessionID)
		assert.Equal(t, len("dump-16"), e.OutputBytes)
		return "h1", nil
	})

	got, err := f.mgr.Activate(context.Background(), snap.ID)
	assert.NoError(t, err)
	assert.Equal(t, "dump-16", got.DumpText)

	// Second activation shows the cache.
	got, err = f.mgr.Activate(context.Background(), snap.ID)
	assert.NoError(t, err)
	assert.Equal(t, "dump-16", got.DumpText)
}

func TestActivateUsesConfiguredDefaults(t *testing.T) {
	f := newFixture(t)
	custom := hexdump.Options{RowBytes: 32, ColBytes: 4}
	f.mgr = New(f.gen, f.mgr.resolver, WithDefaults(custom))

	snap, _, err := f.mgr.Open(context.Background(), f.filePath)
	assert.NoError(t, err)
	assert.Equal(t, custom, snap.Options)

	f.gen.EXPECT().Generate(gomock.Any(), f.filePath, custom).Return("dump-32", nil)
	got, err := f.mgr.Activate(context.Background(), snap.ID)
	assert.NoError(t, err)
	assert.Equal(t, custom, got.Options)
}

func TestActivateRetryAfterFailureKeepsConfiguredDefaults(t *testing.T) {
	f := newFixture(t)
	custom := hexdump.Options{RowBytes: 8, ColBytes: 4, StripOffsets: true}
	f.mgr = New(f.gen, f.mgr.resolver, WithDefaults(custom))

	snap, _, err := f.mgr.Open(context.Background(), f.filePath)
	assert.NoError(t, err)

	spawnErr := &hexdump.Error{Kind: hexdump.KindSpawnFailed, Op: "xxd", Err: errors.New("executable file not found")}
	gomock.InOrder(
		f.gen.EXPECT().Generate(gomock.Any(), f.filePath, custom).Return("", spawnErr),
		f.gen.EXPECT().Generate(gomock.Any(), f.filePath, custom).Return("dump-8", nil),
	)

	_, err = f.mgr.Activate(context.Background(), snap.ID)
	assert.ErrorIs(t, err, hexdump.ErrSpawnFailed)

	got, err := f.mgr.Activate(context.Background(), snap.ID)
	assert.NoError(t, err)
	assert.Equal(t, "dump-8", got.DumpText)
	assert.Equal(t, custom, got.Options)
}

func TestActivateKeepsDumpRequestedBeforeFirstActivation(t *testing.T) {
	f := newFixture(t)
	snap := f.open(t)

	narrow := hexdump.Options{RowBytes: 8, ColBytes: 2}
	f.gen.EXPECT().Generate(gomock.Any(), f.filePath, narrow).Return("dump-8", nil).Times(1)
	f.rec.EXPECT().Record(gomock.Any(), gomock.Any()).Return("h1", nil)

	_, err := f.mgr.Update(context.Background(), snap.ID, narrow)
	assert.NoError(t, err)

	got, err := f.mgr.Activate(context.Background(), snap.ID)
	assert.NoError(t, err)
	assert.Equal(t, "dump-8", got.DumpText)
	assert.Equal(t, narrow, got.Options)
}

func TestUpdateIdenticalOptionsReusesCache(t *testing.T) {
	f := newFixture(t)
	snap := f.open(t)
	opts := hexdump.DefaultOptions()

	f.gen.EXPECT().Generate(gomock.Any(), f.filePath, opts).Return("dump", nil).Times(1)
	f.rec.EXPECT().Record(gomock.Any(), gomock.Any()).Return("h1", nil).Times(1)

	first, err := f.mgr.Update(context.Background(), snap.ID, opts)
	assert.NoError(t, err)
	second, err := f.mgr.Update(context.Background(), snap.ID, opts)
	assert.NoError(t, err)

	assert.Equal(t, first.DumpText, second.DumpText)
	assert.Contains(t, eventTypes(f.hub), events.HexCached)
}

func TestUpdateChangedRowBytesRegenerates(t *testing.T) {
	f := newFixture(t)
	snap := f.open(t)
	wide := hexdump.DefaultOptions()
	narrow := wide
	narrow.RowBytes = 8

	f.rec.EXPECT().Record(gomock.Any(), gomock.Any()).Return("h", nil).Times(2)
	gomock.InOrder(
		f.gen.EXPECT().Generate(gomock.Any(), f.filePath, wide).Return("wide", nil),
		f.gen.EXPECT().Generate(gomock.Any(), f.filePath, narrow).Return("narrow", nil),
	)

	_, err := f.mgr.Update(context.Background(), snap.ID, wide)
	assert.NoError(t, err)
	got, err := f.mgr.Update(context.Background(), snap.ID, narrow)
	assert.NoError(t, err)
	assert.Equal(t, "narrow", got.DumpText)
	assert.Equal(t, 8, got.Options.RowBytes)
}

func TestUpdateWhileGeneratingIsRejected(t *testing.T) {
	f := newFixture(t)
	snap := f.open(t)

	started := make(chan struct{})
	release := make(chan struct{})
	f.gen.EXPECT().Generate(gomock.Any(), f.filePath, gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ string, _ hexdump.Options) (string, error) {
			close(started)
			<-release
			return "slow", nil
		}).Times(1)
	f.rec.EXPECT().Record(gomock.Any(), gomock.Any()).Return("h", nil)

	done := make(chan error, 1)
	go func() {
		_, err := f.mgr.Update(context.Background(), snap.ID, hexdump.DefaultOptions())
		done <- err
	}()
	<-started

	other := hexdump.Options{RowBytes: 8, ColBytes: 1}
	got, err := f.mgr.Update(context.Background(), snap.ID, other)
	assert.ErrorIs(t, err, hexdump.ErrAlreadyRunning)
	assert.Equal(t, hexdump.KindAlreadyRunning, hexdump.KindOf(err))
	assert.Empty(t, got.DumpText)
	assert.True(t, got.Generating)

	_, generating := f.mgr.Stats()
	assert.Equal(t, 1, generating)

	close(release)
	assert.NoError(t, <-done)

	final, err := f.mgr.Get(snap.ID)
	assert.NoError(t, err)
	assert.Equal(t, "slow", final.DumpText)
	assert.Equal(t, hexdump.DefaultOptions(), final.Options)
	assert.Contains(t, eventTypes(f.hub), events.HexRejected)
}

func TestUpdateFailureKeepsPreviousDump(t *testing.T) {
	f := newFixture(t)
	snap := f.open(t)

	f.gen.EXPECT().Generate(gomock.Any(), f.filePath, hexdump.DefaultOptions()).Return("good", nil)
	f.rec.EXPECT().Record(gomock.Any(), gomock.Any()).Return("h1", nil)
	_, err := f.mgr.Update(context.Background(), snap.ID, hexdump.DefaultOptions())
	assert.NoError(t, err)

	spawnErr := &hexdump.Error{Kind: hexdump.KindSpawnFailed, Op: "xxd", Err: errors.New("executable file not found")}
	narrow := hexdump.Options{RowBytes: 8, ColBytes: 2}
	f.gen.EXPECT().Generate(gomock.Any(), f.filePath, narrow).Return("", spawnErr)
	f.rec.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e history.Entry) (string, error) {
		assert.Equal(t, history.StatusFailed, e.Status)
		assert.Equal(t, hexdump.KindSpawnFailed, e.ErrorKind)
		return "h2", nil
	})

	got, err := f.mgr.Update(context.Background(), snap.ID, narrow)
	assert.ErrorIs(t, err, hexdump.ErrSpawnFailed)
	assert.Equal(t, "good", got.DumpText)
	assert.Equal(t, hexdump.DefaultOptions(), got.Options)
	assert.False(t, got.Generating)
	assert.Contains(t, eventTypes(f.hub), events.HexFailed)

	// The session is idle again and accepts a new request.
	f.gen.EXPECT().Generate(gomock.Any(), f.filePath, narrow).Return("narrow", nil)
	f.rec.EXPECT().Record(gomock.Any(), gomock.Any()).Return("h3", nil)
	got, err = f.mgr.Update(context.Background(), snap.ID, narrow)
	assert.NoError(t, err)
	assert.Equal(t, "narrow", got.DumpText)
}

func TestUpdateClampsInvalidOptions(t *testing.T) {
	f := newFixture(t)
	snap := f.open(t)

	f.gen.EXPECT().Generate(gomock.Any(), f.filePath, hexdump.DefaultOptions()).Return("dump", nil)
	f.rec.EXPECT().Record(gomock.Any(), gomock.Any()).Return("h", nil)

	got, err := f.mgr.Update(context.Background(), snap.ID, hexdump.Options{RowBytes: 0, ColBytes: 999, Offset: -5})
	assert.NoError(t, err)
	assert.Equal(t, hexdump.DefaultOptions(), got.Options)
}

func TestUpdateUnknownSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.Update(context.Background(), "nope", hexdump.DefaultOptions())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCloseCancelsInFlightGeneration(t *testing.T) {
	f := newFixture(t)
	snap := f.open(t)

	started := make(chan struct{})
	f.gen.EXPECT().Generate(gomock.Any(), f.filePath, gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ string, _ hexdump.Options) (string, error) {
			close(started)
			<-ctx.Done()
			return "", &hexdump.Error{Kind: hexdump.KindCanceled, Err: ctx.Err()}
		})
	f.rec.EXPECT().Record(gomock.Any(), gomock.Any()).Return("h", nil)
	f.watch.EXPECT().Unwatch(f.filePath)

	done := make(chan error, 1)
	go func() {
		_, err := f.mgr.Update(context.Background(), snap.ID, hexdump.DefaultOptions())
		done <- err
	}()
	<-started

	assert.NoError(t, f.mgr.Close(snap.ID))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, hexdump.ErrCanceled)
	case <-time.After(2 * time.Second):
		t.Fatal("generation was not canceled")
	}

	_, err := f.mgr.Get(snap.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.mgr.Close(snap.ID), ErrNotFound)
}

func TestInvalidateForcesRegeneration(t *testing.T) {
	f := newFixture(t)
	snap := f.open(t)
	opts := hexdump.DefaultOptions()

	f.rec.EXPECT().Record(gomock.Any(), gomock.Any()).Return("h", nil).Times(2)
	gomock.InOrder(
		f.gen.EXPECT().Generate(gomock.Any(), f.filePath, opts).Return("v1", nil),
		f.gen.EXPECT().Generate(gomock.Any(), f.filePath, opts).Return("v2", nil),
	)

	_, err := f.mgr.Activate(context.Background(), snap.ID)
	assert.NoError(t, err)

	ids := f.mgr.Invalidate(f.filePath)
	assert.Equal(t, []string{snap.ID}, ids)

	got, err := f.mgr.Get(snap.ID)
	assert.NoError(t, err)
	assert.Empty(t, got.DumpText)
	assert.Equal(t, opts, got.Options)

	got, err = f.mgr.Activate(context.Background(), snap.ID)
	assert.NoError(t, err)
	assert.Equal(t, "v2", got.DumpText)
	assert.Contains(t, eventTypes(f.hub), events.SessionInvalidated)

	assert.Empty(t, f.mgr.Invalidate(filepath.Join(f.dir, "other.bin")))
}

func TestInvalidateDuringGenerationDiscardsResult(t *testing.T) {
	f := newFixture(t)
	snap := f.open(t)

	started := make(chan struct{})
	release := make(chan struct{})
	f.gen.EXPECT().Generate(gomock.Any(), f.filePath, gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ string, _ hexdump.Options) (string, error) {
			close(started)
			<-release
			return "stale", nil
		})
	f.rec.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e history.Entry) (string, error) {
		assert.Equal(t, history.StatusSuperseded, e.Status)
		return "h", nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.mgr.Update(context.Background(), snap.ID, hexdump.DefaultOptions())
		done <- err
	}()
	<-started
	f.mgr.Invalidate(f.filePath)
	close(release)

	assert.ErrorIs(t, <-done, session.ErrSuperseded)
	got, err := f.mgr.Get(snap.ID)
	assert.NoError(t, err)
	assert.Empty(t, got.DumpText)
	assert.False(t, got.Generating)
}

func TestRecorderErrorDoesNotFailUpdate(t *testing.T) {
	f := newFixture(t)
	snap := f.open(t)

	f.gen.EXPECT().Generate(gomock.Any(), gomock.Any(), gomock.Any()).Return("dump", nil)
	f.rec.EXPECT().Record(gomock.Any(), gomock.Any()).Return("", errors.New("disk full"))

	got, err := f.mgr.Update(context.Background(), snap.ID, hexdump.DefaultOptions())
	assert.NoError(t, err)
	assert.Equal(t, "dump", got.DumpText)
}

func TestCloseAll(t *testing.T) {
	f := newFixture(t)
	f.open(t)
	f.watch.EXPECT().Unwatch(f.filePath)

	f.mgr.CloseAll()
	open, _ := f.mgr.Stats()
	assert.Equal(t, 0, open)
}

func TestDeterministicOutputWithRealGenerator(t *testing.T) {
	if _, err := exec.LookPath("xxd"); err != nil {
		t.Skip("xxd not installed")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.bin")
	assert.NoError(t, os.WriteFile(path, []byte("Hello"), 0o644))
	resolver, err := workspace.NewResolver(dir, dir)
	assert.NoError(t, err)

	mgr := New(hexdump.NewGenerator(), resolver)
	snap, _, err := mgr.Open(context.Background(), path)
	assert.NoError(t, err)

	got, err := mgr.Activate(context.Background(), snap.ID)
	assert.NoError(t, err)
	assert.Contains(t, got.DumpText, "00000000: 4865 6c6c 6f")
	assert.Contains(t, got.DumpText, "Hello")
}
