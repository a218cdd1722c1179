package predictions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/tomvto/internal/application"
	domain "github.com/bryanwahyu/tomvto/internal/domain/predictions"
)

// DefaultRetention caps the number of retained records.
const DefaultRetention = 100

const snapshotTimeout = 30 * time.Second

// Observer receives store operation outcomes; middleware.Metrics implements it.
type Observer interface {
	ObserveStore(op string, err error, d time.Duration)
}

// Service owns the prediction document. Every mutation is a full
// read-decode-mutate-encode-write cycle run through Document.Update, which
// holds the backend lock, so appends from several processes sharing one
// store never lose each other's records. Within a process the write lock
// orders commits and reads share the read lock.
type Service struct {
	Doc       domain.Document
	Archive   domain.Archive // optional
	Clock     application.Clock
	Logger    *slog.Logger
	Metrics   Observer
	Retention int
	NewID     func() domain.RecordID

	mu sync.RWMutex
}

// List returns every retained record, newest first.
func (s *Service) List(ctx context.Context) ([]domain.Record, error) {
	start := time.Now()
	s.mu.RLock()
	records, err := s.load(ctx)
	s.mu.RUnlock()
	s.observe("list", err, start)
	return records, err
}

// History is List with storage failures masked to an empty history.
func (s *Service) History(ctx context.Context) []domain.Record {
	records, err := s.List(ctx)
	if err != nil {
		s.logger().Warn("prediction history unavailable, serving empty list", "error", err)
		return []domain.Record{}
	}
	return records
}

// Get returns one record by id.
func (s *Service) Get(ctx context.Context, id domain.RecordID) (domain.Record, error) {
	records, err := s.List(ctx)
	if err != nil {
		return domain.Record{}, err
	}
	for _, r := range records {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.Record{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
}

// Append validates and stores one record at the front of the collection.
func (s *Service) Append(ctx context.Context, in domain.Input) (domain.RecordID, error) {
	ids, err := s.AppendBatch(ctx, []domain.Input{in})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// AppendBatch stores several records in one commit. Inputs are inserted in
// order, so the last input ends up newest. Nothing is stored unless every
// input is valid.
func (s *Service) AppendBatch(ctx context.Context, inputs []domain.Input) ([]domain.RecordID, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	for i, in := range inputs {
		if err := in.Validate(); err != nil {
			if len(inputs) == 1 {
				return nil, err
			}
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}

	start := time.Now()
	ids, data, err := s.commitAppend(ctx, inputs)
	s.observe("append", err, start)
	if err != nil {
		s.logger().Error("failed to save prediction", "error", err, "count", len(inputs))
		return nil, err
	}
	s.logger().Info("predictions saved", "count", len(ids), "newest_id", ids[len(ids)-1])
	s.snapshot(ctx, data)
	return ids, nil
}

func (s *Service) commitAppend(ctx context.Context, inputs []domain.Input) ([]domain.RecordID, []byte, error) {
	// the write runs to completion even if the caller goes away
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]domain.RecordID, len(inputs))
	data, err := s.update(ctx, func(records []domain.Record) ([]domain.Record, error) {
		taken := make(map[domain.RecordID]struct{}, len(records)+len(inputs))
		for _, r := range records {
			taken[r.ID] = struct{}{}
		}

		fresh := make([]domain.Record, len(inputs))
		for i, in := range inputs {
			id := s.uniqueID(taken)
			rec, err := in.ToRecord(id)
			if err != nil {
				return nil, err
			}
			// newest first: the last input lands at index 0
			fresh[len(inputs)-1-i] = rec
			ids[i] = id
		}

		records = append(fresh, records...)
		if limit := s.retention(); len(records) > limit {
			records = records[:limit]
		}
		return records, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return ids, data, nil
}

// Delete removes the record with the given id.
func (s *Service) Delete(ctx context.Context, id domain.RecordID) error {
	start := time.Now()
	data, err := s.commitDelete(ctx, id)
	s.observe("delete", err, start)
	if err != nil {
		return err
	}
	s.logger().Info("prediction deleted", "id", id)
	s.snapshot(ctx, data)
	return nil
}

func (s *Service) commitDelete(ctx context.Context, id domain.RecordID) ([]byte, error) {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.update(ctx, func(records []domain.Record) ([]domain.Record, error) {
		idx := slices.IndexFunc(records, func(r domain.Record) bool { return r.ID == id })
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		return slices.Delete(records, idx, idx+1), nil
	})
}

// Statistics never fails: an unreadable store reports all zeros.
func (s *Service) Statistics(ctx context.Context) domain.Statistics {
	records, err := s.List(ctx)
	if err != nil {
		s.logger().Warn("statistics computed over empty history", "error", err)
		return domain.EmptyStatistics(s.now())
	}
	return domain.ComputeStatistics(records, s.now())
}

// load must be called with s.mu held.
func (s *Service) load(ctx context.Context) ([]domain.Record, error) {
	data, err := s.Doc.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read document: %w", domain.ErrStorageUnavailable, err)
	}
	return decodeDocument(data)
}

// update runs mutate inside the backend's locked read-modify-write cycle
// and returns the committed bytes. It must be called with s.mu held.
// Errors from decoding or mutate are returned as is; backend failures are
// wrapped in ErrStorageUnavailable.
func (s *Service) update(ctx context.Context, mutate func([]domain.Record) ([]domain.Record, error)) ([]byte, error) {
	var (
		committed []byte
		inner     error
	)
	err := s.Doc.Update(ctx, func(current []byte) ([]byte, error) {
		records, err := decodeDocument(current)
		if err == nil {
			records, err = mutate(records)
		}
		if err == nil {
			committed, err = encodeDocument(records)
		}
		inner = err
		return committed, err
	})
	if inner != nil {
		return nil, inner
	}
	if err != nil {
		return nil, fmt.Errorf("%w: update document: %w", domain.ErrStorageUnavailable, err)
	}
	return committed, nil
}

func decodeDocument(data []byte) ([]domain.Record, error) {
	records := []domain.Record{}
	if len(bytes.TrimSpace(data)) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: decode document: %w", domain.ErrStorageUnavailable, err)
	}
	if records == nil {
		records = []domain.Record{}
	}
	return records, nil
}

func encodeDocument(records []domain.Record) ([]byte, error) {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: encode document: %w", domain.ErrStorageUnavailable, err)
	}
	return data, nil
}

// snapshot hands a committed document to the archive. Failures are logged only.
func (s *Service) snapshot(ctx context.Context, data []byte) {
	if s.Archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotTimeout)
	defer cancel()
	if err := s.Archive.Snapshot(ctx, data); err != nil {
		s.logger().Warn("document snapshot failed", "error", err)
	}
}

func (s *Service) uniqueID(taken map[domain.RecordID]struct{}) domain.RecordID {
	for {
		id := s.nextID()
		if _, dup := taken[id]; !dup {
			taken[id] = struct{}{}
			return id
		}
	}
}

func (s *Service) nextID() domain.RecordID {
	if s.NewID != nil {
		return s.NewID()
	}
	return domain.RecordID(uuid.NewString())
}

func (s *Service) retention() int {
	if s.Retention <= 0 {
		return DefaultRetention
	}
	return s.Retention
}

func (s *Service) observe(op string, err error, start time.Time) {
	if s.Metrics == nil {
		return
	}
	s.Metrics.ObserveStore(op, err, time.Since(start))
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
