package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"worker-hls/entities"
)

type MatchMode string

const (
	// MatchLike finds rows whose source column contains the file name anywhere.
	MatchLike MatchMode = "like"
	// MatchExact requires the source column to equal the name or end in "/<name>".
	MatchExact MatchMode = "exact"
)

type VideoRepository interface {
	GetDB() *gorm.DB
	FindOwner(ctx context.Context, target entities.Target, fileName string) (*entities.OwningRecord, error)
	ListCandidates(ctx context.Context, target entities.Target) ([]entities.OwningRecord, error)
	UpdatePointer(ctx context.Context, owner entities.OwningRecord, pointer string) error
}

type repo struct {
	db    *gorm.DB
	match MatchMode
}

type ownerRow struct {
	RowID      string         `gorm:"column:row_id"`
	SourcePath sql.NullString `gorm:"column:source_path"`
	Pointer    sql.NullString `gorm:"column:pointer"`
}

func NewRepo(db *gorm.DB, match MatchMode) VideoRepository {
	if match != MatchExact {
		match = MatchLike
	}
	return &repo{
		db:    db,
		match: match,
	}
}

func (r *repo) GetDB() *gorm.DB {
	return r.db
}

func (r *repo) quote(name string) string {
	return r.db.Statement.Quote(name)
}

func (r *repo) selectColumns(t entities.Target) string {
	return fmt.Sprintf("SELECT %s AS row_id, %s AS source_path, %s AS pointer FROM %s",
		r.quote(t.IDColumn), r.quote(t.SourceColumn), r.quote(t.PointerColumn), r.quote(t.Table))
}

// FindOwner returns the first row (lowest id) of target referencing fileName, or nil.
func (r *repo) FindOwner(ctx context.Context, target entities.Target, fileName string) (*entities.OwningRecord, error) {
	src := r.quote(target.SourceColumn)
	pattern := escapeLike(fileName)

	var (
		where string
		args  []interface{}
	)
	if r.match == MatchExact {
		where = fmt.Sprintf("%s = ? OR %s LIKE ? ESCAPE '\\'", src, src)
		args = []interface{}{fileName, "%/" + pattern}
	} else {
		where = fmt.Sprintf("%s LIKE ? ESCAPE '\\'", src)
		args = []interface{}{"%" + pattern + "%"}
	}
	query := fmt.Sprintf("%s WHERE %s ORDER BY %s LIMIT 1", r.selectColumns(target), where, r.quote(target.IDColumn))

	var rows []ownerRow
	if err := r.GetDB().WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	owner := toOwner(target, rows[0])
	return &owner, nil
}

// ListCandidates returns every row of target with a non-null source value, in id order.
// Rows that fail to scan are logged and skipped.
func (r *repo) ListCandidates(ctx context.Context, target entities.Target) ([]entities.OwningRecord, error) {
	query := fmt.Sprintf("%s WHERE %s IS NOT NULL ORDER BY %s",
		r.selectColumns(target), r.quote(target.SourceColumn), r.quote(target.IDColumn))

	rows, err := r.GetDB().WithContext(ctx).Raw(query).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []entities.OwningRecord
	for rows.Next() {
		var row ownerRow
		if err := r.GetDB().ScanRows(rows, &row); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("table", target.Table).Msg("skipping unreadable row")
			continue
		}
		owners = append(owners, toOwner(target, row))
	}
	return owners, rows.Err()
}

func (r *repo) UpdatePointer(ctx context.Context, owner entities.OwningRecord, pointer string) error {
	result := r.GetDB().WithContext(ctx).
		Table(owner.Table).
		Where(fmt.Sprintf("%s = ?", r.quote(owner.IDColumn)), owner.RowID).
		Update(owner.PointerColumn, pointer)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%s row %s: %w", owner.Table, owner.RowID, gorm.ErrRecordNotFound)
	}
	return nil
}

func toOwner(target entities.Target, row ownerRow) entities.OwningRecord {
	owner := entities.OwningRecord{
		Table:         target.Table,
		IDColumn:      target.IDColumn,
		SourceColumn:  target.SourceColumn,
		PointerColumn: target.PointerColumn,
		RowID:         row.RowID,
		SourceValue:   row.SourcePath.String,
	}
	if row.Pointer.Valid {
		pointer := row.Pointer.String
		owner.Pointer = &pointer
	}
	return owner
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
