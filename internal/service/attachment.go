package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/templui/transit/internal/attachment"
	"github.com/templui/transit/internal/metrics"
	"github.com/templui/transit/internal/model"
	"github.com/templui/transit/internal/repository"
	"github.com/templui/transit/internal/transit"
)

var (
	ErrUnknownField = errors.New("unknown attachment field")
)

// SaveResult is the persisted record plus the field errors that did not stop the save.
type SaveResult struct {
	Record      *model.Record
	FieldErrors map[string]error
}

type AttachmentService struct {
	records repository.RecordRepository
	fields  []*attachment.Field
}

func NewAttachmentService(records repository.RecordRepository, fields []*attachment.Field) *AttachmentService {
	return &AttachmentService{
		records: records,
		fields:  fields,
	}
}

func (s *AttachmentService) Fields() []*attachment.Field {
	return s.fields
}

func (s *AttachmentService) field(name string) *attachment.Field {
	for _, f := range s.fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

type staleValue struct {
	field  *attachment.Field
	value  string
	copies []string
}

// Save runs every field's pipeline in configuration order and persists the
// resulting columns. An empty id creates a record. Fields missing from
// sources are left untouched on update and treated as empty on create.
//
// New files are in place and the record is stored before any replaced file
// is deleted. A failure that stops the save discards the files of every
// field already processed.
func (s *AttachmentService) Save(ctx context.Context, modelName, id string, sources map[string]transit.Source) (*SaveResult, error) {
	for name := range sources {
		if s.field(name) == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, name)
		}
	}

	var existing *model.Record
	if id != "" {
		rec, err := s.records.ByID(id)
		if err != nil {
			return nil, fmt.Errorf("failed to get record: %w", err)
		}
		existing = rec
	}

	columns := model.Columns{}
	if existing != nil {
		columns = maps.Clone(existing.Columns)
		if columns == nil {
			columns = model.Columns{}
		}
	}

	result := &SaveResult{FieldErrors: map[string]error{}}
	var runs []*transit.Transit
	var stale []staleValue

	for _, f := range s.fields {
		src, present := sources[f.Name]
		if !present && existing != nil {
			continue
		}

		tr := f.Transit()
		res, err := tr.Run(ctx, src)
		if err != nil {
			var te *transit.Error
			if errors.As(err, &te) && te.Recoverable() && !f.Config.StopSave {
				slog.Warn("attachment field rejected", "field", f.Name, "error", err)
				result.FieldErrors[f.Name] = err
				s.applyDefault(f, columns)
				continue
			}
			s.discard(ctx, runs)
			return nil, err
		}
		runs = append(runs, tr)

		if res.Empty {
			s.applyDefault(f, columns)
			continue
		}

		for _, col := range f.FileColumns() {
			v, ok := res.Columns[col]
			if !ok {
				continue
			}
			if f.Config.CleanupOld {
				if old := columns.String(col); old != "" && old != v {
					stale = append(stale, staleValue{field: f, value: old, copies: columns.Copies(col)})
				}
			}
			columns.SetCopies(col, res.Copies[col])
		}
		maps.Copy(columns, res.Columns)
	}

	now := time.Now()
	record := existing
	if record == nil {
		record = &model.Record{
			ID:        uuid.New().String(),
			Model:     modelName,
			CreatedAt: now,
		}
	}
	record.Columns = columns
	record.UpdatedAt = now

	var err error
	if existing == nil {
		err = s.records.Create(record)
	} else {
		err = s.records.Update(record)
	}
	if err != nil {
		s.discard(ctx, runs)
		return nil, fmt.Errorf("failed to save record: %w", err)
	}

	for _, sv := range stale {
		s.cleanup(ctx, sv)
	}

	slog.Info("record saved", "model", record.Model, "id", record.ID, "fields", len(runs), "replaced", len(stale))
	result.Record = record
	return result, nil
}

// applyDefault writes the default path to the primary column when it has no value.
func (s *AttachmentService) applyDefault(f *attachment.Field, columns model.Columns) {
	c := f.Config
	if c.DefaultPath == "" || c.DBColumn == "" {
		return
	}
	if columns.String(c.DBColumn) != "" {
		return
	}
	columns[c.DBColumn] = c.DefaultPath
}

func (s *AttachmentService) discard(ctx context.Context, runs []*transit.Transit) {
	for i := len(runs) - 1; i >= 0; i-- {
		runs[i].Discard(ctx)
	}
}

func (s *AttachmentService) cleanup(ctx context.Context, sv staleValue) {
	err := sv.field.DeleteValue(ctx, sv.value, sv.copies)
	if err != nil {
		metrics.CleanupFailures.Inc()
		slog.Error("failed to delete replaced file", "field", sv.field.Name, "value", sv.value, "error", err)
	}
}

func (s *AttachmentService) Record(id string) (*model.Record, error) {
	return s.records.ByID(id)
}

func (s *AttachmentService) Records(modelName string) ([]*model.Record, error) {
	return s.records.Records(modelName)
}

// Delete removes every stored file of every attachment column, then the record.
func (s *AttachmentService) Delete(ctx context.Context, id string) error {
	record, err := s.records.ByID(id)
	if err != nil {
		return fmt.Errorf("failed to get record: %w", err)
	}

	for _, f := range s.fields {
		for _, col := range f.FileColumns() {
			value := record.Columns.String(col)
			if value == "" {
				continue
			}
			// Best effort; the file may already be gone.
			delErr := f.DeleteValue(ctx, value, record.Columns.Copies(col))
			if delErr != nil {
				metrics.CleanupFailures.Inc()
				slog.Warn("failed to delete attachment", "field", f.Name, "value", value, "error", delErr)
			}
		}
	}

	err = s.records.Delete(id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	return nil
}
