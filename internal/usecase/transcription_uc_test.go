//go:build !integration

package usecase

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"audio-transcription-platform/internal/domain"
	"audio-transcription-platform/internal/domain/model"
	"audio-transcription-platform/internal/domain/ports/repository"
)

// --- in-memory test doubles ---

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.TranscriptionJob

	CreateFunc func(ctx context.Context, tx repository.Tx, job *model.TranscriptionJob) error
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[string]*model.TranscriptionJob)}
}

func (m *memJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.TranscriptionJob) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, job)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobRepo) Update(ctx context.Context, tx repository.Tx, job *model.TranscriptionJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.TranscriptionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) FetchAndMarkPreprocessing(ctx context.Context) (*model.TranscriptionJob, error) {
	return nil, domain.ErrNotFound
}

func (m *memJobRepo) ListTerminalOlderThan(ctx context.Context, tx repository.Tx, status model.JobStatus, cutoff time.Time, limit int) ([]*model.TranscriptionJob, error) {
	return nil, nil
}

func (m *memJobRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

type memCancelSignal struct {
	mu        sync.Mutex
	requested map[string]bool
}

func newMemCancelSignal() *memCancelSignal {
	return &memCancelSignal{requested: make(map[string]bool)}
}

func (m *memCancelSignal) Request(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requested[jobID] = true
	return nil
}

func (m *memCancelSignal) Requested(ctx context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requested[jobID], nil
}

func (m *memCancelSignal) Clear(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.requested, jobID)
	return nil
}

type memRenderCache struct {
	mu     sync.Mutex
	store  map[string]string
	gets   int
	hits   int
	getErr error
}

func newMemRenderCache() *memRenderCache {
	return &memRenderCache{store: make(map[string]string)}
}

func (m *memRenderCache) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.store[key]
	if !ok {
		return "", errors.New("cache miss")
	}
	m.hits++
	return v, nil
}

func (m *memRenderCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[key] = value.(string)
	return nil
}

// --- helpers ---

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// wavPayload builds a minimal PCM16 RIFF/WAVE byte stream that content
// sniffing recognizes as audio/wav.
func wavPayload(samples int) []byte {
	var buf bytes.Buffer
	dataLen := samples * 2
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(16000))
	binary.Write(&buf, binary.LittleEndian, uint32(32000))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(make([]byte, dataLen))
	return buf.Bytes()
}

func completedJob(t *testing.T, userID string) *model.TranscriptionJob {
	t.Helper()
	job, err := model.NewTranscriptionJob(userID, "/tmp/a.wav", "session.wav", 100, "ja", "night one")
	if err != nil {
		t.Fatal(err)
	}
	job.Status = model.JobStatusFormatting
	segments := []model.TranscriptSegment{
		{Start: 0, End: 3, Text: "roll for initiative"},
	}
	if err := job.Complete(segments, "roll for initiative", "[00:00:00] roll for initiative", 3, 1.5); err != nil {
		t.Fatal(err)
	}
	return job
}

// --- tests ---

func TestTranscriptionUseCase_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("accepts a wav upload and spools it", func(t *testing.T) {
		dir := t.TempDir()
		jobs := newMemJobRepo()
		uc := NewTranscriptionUseCase(jobs, newMemCancelSignal(), newMemRenderCache(), dir, 1024*1024, newTestLogger())

		payload := wavPayload(256)
		job, err := uc.Submit(ctx, "user-1", Upload{
			Reader:   bytes.NewReader(payload),
			Filename: "session.wav",
			Size:     int64(len(payload)),
			Notes:    "night one",
		})
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if job.Status != model.JobStatusPending {
			t.Errorf("expected pending, got %s", job.Status)
		}
		if job.Language != "ja" {
			t.Errorf("expected default language ja, got %q", job.Language)
		}
		if filepath.Dir(job.AudioRef) != dir {
			t.Errorf("expected spool in work dir, got %s", job.AudioRef)
		}
		if _, err := os.Stat(job.AudioRef); err != nil {
			t.Errorf("expected spooled file to exist: %v", err)
		}
		if _, err := jobs.FindByID(ctx, nil, job.ID); err != nil {
			t.Error("expected job to be persisted")
		}
	})

	t.Run("rejects an oversized upload by declared size", func(t *testing.T) {
		uc := NewTranscriptionUseCase(newMemJobRepo(), newMemCancelSignal(), nil, t.TempDir(), 100, newTestLogger())
		_, err := uc.Submit(ctx, "user-1", Upload{
			Reader:   bytes.NewReader(wavPayload(256)),
			Filename: "big.wav",
			Size:     101,
		})
		if !errors.Is(err, domain.ErrPayloadTooLarge) {
			t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
		}
	})

	t.Run("rejects a stream that lies about its size", func(t *testing.T) {
		dir := t.TempDir()
		uc := NewTranscriptionUseCase(newMemJobRepo(), newMemCancelSignal(), nil, dir, 100, newTestLogger())
		_, err := uc.Submit(ctx, "user-1", Upload{
			Reader:   bytes.NewReader(wavPayload(256)),
			Filename: "liar.wav",
			Size:     10,
		})
		if !errors.Is(err, domain.ErrPayloadTooLarge) {
			t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
		}
		entries, _ := os.ReadDir(dir)
		if len(entries) != 0 {
			t.Error("expected the oversized spool to be removed")
		}
	})

	t.Run("rejects unsupported content regardless of extension", func(t *testing.T) {
		dir := t.TempDir()
		uc := NewTranscriptionUseCase(newMemJobRepo(), newMemCancelSignal(), nil, dir, 1024, newTestLogger())
		_, err := uc.Submit(ctx, "user-1", Upload{
			Reader:   strings.NewReader("definitely not audio"),
			Filename: "notes.mp3",
			Size:     20,
		})
		if !errors.Is(err, domain.ErrUnsupportedFormat) {
			t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
		}
		entries, _ := os.ReadDir(dir)
		if len(entries) != 0 {
			t.Error("expected the rejected spool to be removed")
		}
	})

	t.Run("removes the spool when persistence fails", func(t *testing.T) {
		dir := t.TempDir()
		jobs := newMemJobRepo()
		jobs.CreateFunc = func(ctx context.Context, tx repository.Tx, job *model.TranscriptionJob) error {
			return errors.New("db down")
		}
		uc := NewTranscriptionUseCase(jobs, newMemCancelSignal(), nil, dir, 1024*1024, newTestLogger())
		payload := wavPayload(64)
		_, err := uc.Submit(ctx, "user-1", Upload{
			Reader:   bytes.NewReader(payload),
			Filename: "s.wav",
			Size:     int64(len(payload)),
		})
		if err == nil {
			t.Fatal("expected an error")
		}
		entries, _ := os.ReadDir(dir)
		if len(entries) != 0 {
			t.Error("expected the spool to be removed on create failure")
		}
	})
}

func TestTranscriptionUseCase_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("signals cancellation for a pending job", func(t *testing.T) {
		jobs := newMemJobRepo()
		cancel := newMemCancelSignal()
		job, _ := model.NewTranscriptionJob("user-1", "/tmp/a.wav", "a.wav", 1, "ja", "")
		_ = jobs.Create(ctx, nil, job)

		uc := NewTranscriptionUseCase(jobs, cancel, nil, t.TempDir(), 1024, newTestLogger())
		if err := uc.Cancel(ctx, "user-1", job.ID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if requested, _ := cancel.Requested(ctx, job.ID); !requested {
			t.Error("expected the cancel signal to be set")
		}
	})

	t.Run("rejects cancelling a transcribing job", func(t *testing.T) {
		jobs := newMemJobRepo()
		job, _ := model.NewTranscriptionJob("user-1", "/tmp/a.wav", "a.wav", 1, "ja", "")
		_ = job.Transition(model.JobStatusPreprocessing)
		_ = job.Transition(model.JobStatusTranscribing)
		_ = jobs.Create(ctx, nil, job)

		uc := NewTranscriptionUseCase(jobs, newMemCancelSignal(), nil, t.TempDir(), 1024, newTestLogger())
		if err := uc.Cancel(ctx, "user-1", job.ID); !errors.Is(err, domain.ErrJobNotCancellable) {
			t.Fatalf("expected ErrJobNotCancellable, got %v", err)
		}
	})

	t.Run("hides other users' jobs", func(t *testing.T) {
		jobs := newMemJobRepo()
		job, _ := model.NewTranscriptionJob("user-1", "/tmp/a.wav", "a.wav", 1, "ja", "")
		_ = jobs.Create(ctx, nil, job)

		uc := NewTranscriptionUseCase(jobs, newMemCancelSignal(), nil, t.TempDir(), 1024, newTestLogger())
		if err := uc.Cancel(ctx, "user-2", job.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestTranscriptionUseCase_Download(t *testing.T) {
	ctx := context.Background()

	t.Run("renders every format from a completed job", func(t *testing.T) {
		jobs := newMemJobRepo()
		job := completedJob(t, "user-1")
		_ = jobs.Create(ctx, nil, job)

		uc := NewTranscriptionUseCase(jobs, newMemCancelSignal(), newMemRenderCache(), t.TempDir(), 1024, newTestLogger())

		txt, err := uc.Download(ctx, "user-1", job.ID, "txt")
		if err != nil {
			t.Fatalf("txt: %v", err)
		}
		if !strings.Contains(txt.Content, "[00:00:00] roll for initiative") {
			t.Errorf("unexpected txt content: %q", txt.Content)
		}
		if txt.Filename != "session_transcript.txt" {
			t.Errorf("unexpected txt filename: %q", txt.Filename)
		}

		mixed, err := uc.Download(ctx, "user-1", job.ID, "mixed")
		if err != nil {
			t.Fatalf("mixed: %v", err)
		}
		if mixed.Content != job.MixedOutput {
			t.Error("expected mixed download to serve the stored artifact")
		}

		j, err := uc.Download(ctx, "user-1", job.ID, "json")
		if err != nil {
			t.Fatalf("json: %v", err)
		}
		if !strings.Contains(j.Content, `"source_name": "session.wav"`) {
			t.Errorf("unexpected json content: %q", j.Content)
		}
		if j.ContentType != "application/json" {
			t.Errorf("unexpected json content type: %q", j.ContentType)
		}

		h, err := uc.Download(ctx, "user-1", job.ID, "html")
		if err != nil {
			t.Fatalf("html: %v", err)
		}
		if !strings.Contains(h.Content, "roll for initiative") {
			t.Error("expected html to contain the transcript text")
		}
	})

	t.Run("serves repeat downloads from the cache", func(t *testing.T) {
		jobs := newMemJobRepo()
		job := completedJob(t, "user-1")
		_ = jobs.Create(ctx, nil, job)

		cache := newMemRenderCache()
		uc := NewTranscriptionUseCase(jobs, newMemCancelSignal(), cache, t.TempDir(), 1024, newTestLogger())

		first, err := uc.Download(ctx, "user-1", job.ID, "txt")
		if err != nil {
			t.Fatal(err)
		}
		second, err := uc.Download(ctx, "user-1", job.ID, "txt")
		if err != nil {
			t.Fatal(err)
		}
		if first.Content != second.Content {
			t.Error("expected identical content from the cache")
		}
		if cache.hits != 1 {
			t.Errorf("expected one cache hit, got %d", cache.hits)
		}
	})

	t.Run("rejects downloads for unfinished jobs", func(t *testing.T) {
		jobs := newMemJobRepo()
		job, _ := model.NewTranscriptionJob("user-1", "/tmp/a.wav", "a.wav", 1, "ja", "")
		_ = jobs.Create(ctx, nil, job)

		uc := NewTranscriptionUseCase(jobs, newMemCancelSignal(), nil, t.TempDir(), 1024, newTestLogger())
		if _, err := uc.Download(ctx, "user-1", job.ID, "txt"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("rejects unknown formats", func(t *testing.T) {
		jobs := newMemJobRepo()
		job := completedJob(t, "user-1")
		_ = jobs.Create(ctx, nil, job)

		uc := NewTranscriptionUseCase(jobs, newMemCancelSignal(), nil, t.TempDir(), 1024, newTestLogger())
		if _, err := uc.Download(ctx, "user-1", job.ID, "pdf"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}
