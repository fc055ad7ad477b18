package repository

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/templui/transit/internal/model"
)

var (
	ErrRecordNotFound = errors.New("record not found")
)

type RecordRepository interface {
	Create(record *model.Record) error
	ByID(id string) (*model.Record, error)
	Records(modelName string) ([]*model.Record, error)
	Update(record *model.Record) error
	Delete(id string) error
}

type recordRepository struct {
	db *sqlx.DB
}

func NewRecordRepository(db *sqlx.DB) RecordRepository {
	return &recordRepository{db: db}
}

func (r *recordRepository) Create(record *model.Record) error {
	query := `INSERT INTO records (id, model, columns, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(query,
		record.ID,
		record.Model,
		record.Columns,
		record.CreatedAt,
		record.UpdatedAt,
	)

	return err
}

func (r *recordRepository) ByID(id string) (*model.Record, error) {
	record := &model.Record{}
	query := `SELECT * FROM records WHERE id = $1`

	err := r.db.Get(record, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}

	return record, err
}

func (r *recordRepository) Records(modelName string) ([]*model.Record, error) {
	var records []*model.Record
	query := `SELECT * FROM records WHERE model = $1 ORDER BY created_at DESC`

	err := r.db.Select(&records, query, modelName)
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (r *recordRepository) Update(record *model.Record) error {
	query := `UPDATE records SET columns = $1, updated_at = $2 WHERE id = $3`

	res, err := r.db.Exec(query, record.Columns, record.UpdatedAt, record.ID)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}

	return nil
}

func (r *recordRepository) Delete(id string) error {
	query := `DELETE FROM records WHERE id = $1`
	_, err := r.db.Exec(query, id)
	return err
}
