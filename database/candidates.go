package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/gorm"
)

// CandidateFilter narrows the photos a batch command iterates over
type CandidateFilter struct {
	PhotoID uint // 0 means any
	Limit   int  // 0 means no limit
	Force   bool // ignore the "already done" predicate
}

// builderFor returns a statement builder using the placeholder style of the
// dialect behind db
func builderFor(db *gorm.DB) sq.StatementBuilderType {
	if db.Dialector.Name() == DriverPostgres {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// ListAvifCandidateIDs returns ids of photos whose display or watermarked
// path still ends in legacyExt. When filter.PhotoID is set only the presence
// of a version is required, so the caller can report an already converted
// photo as skipped.
func ListAvifCandidateIDs(ctx context.Context, db *gorm.DB, legacyExt string, filter CandidateFilter) ([]uint, error) {
	query := builderFor(db).Select("id").
		From("photos").
		Where(sq.Eq{"deleted_at": nil}).
		OrderBy("id ASC")

	if filter.PhotoID != 0 {
		query = query.Where(sq.Eq{"id": filter.PhotoID}).
			Where(sq.Or{
				sq.NotEq{"display_path": nil},
				sq.NotEq{"watermarked_path": nil},
			})
	} else {
		pattern := "%" + strings.ToLower(legacyExt)
		query = query.Where(sq.Or{
			sq.Expr("LOWER(display_path) LIKE ?", pattern),
			sq.Expr("LOWER(watermarked_path) LIKE ?", pattern),
		})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}

	return queryIDs(ctx, db, query, "ListAvifCandidateIDs")
}

// ListPlaceholderCandidateIDs returns ids of photos missing a dominant color,
// or every photo when filter.Force is set
func ListPlaceholderCandidateIDs(ctx context.Context, db *gorm.DB, filter CandidateFilter) ([]uint, error) {
	query := builderFor(db).Select("id").
		From("photos").
		Where(sq.Eq{"deleted_at": nil}).
		OrderBy("id ASC")

	if !filter.Force {
		query = query.Where(sq.Eq{"dominant_color": nil})
	}
	if filter.PhotoID != 0 {
		query = query.Where(sq.Eq{"id": filter.PhotoID})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}

	return queryIDs(ctx, db, query, "ListPlaceholderCandidateIDs")
}

// ListReferencedAssetPaths returns every thumbnail, display and watermarked
// path stored on a photo row. Soft-deleted rows are included since their
// files may still be restored.
func ListReferencedAssetPaths(ctx context.Context, db *gorm.DB) (map[string]bool, error) {
	sqlStr, args, err := builderFor(db).
		Select("thumbnail_path", "display_path", "watermarked_path").
		From("photos").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for ListReferencedAssetPaths: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB for ListReferencedAssetPaths: %w", err)
	}

	rows, err := sqlDB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute ListReferencedAssetPaths: %w", err)
	}
	defer rows.Close()

	paths := make(map[string]bool)
	for rows.Next() {
		var thumb, display, watermarked sql.NullString
		if err := rows.Scan(&thumb, &display, &watermarked); err != nil {
			return nil, fmt.Errorf("failed to scan ListReferencedAssetPaths row: %w", err)
		}
		for _, p := range []sql.NullString{thumb, display, watermarked} {
			if p.Valid && p.String != "" {
				paths[p.String] = true
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating ListReferencedAssetPaths rows: %w", err)
	}
	return paths, nil
}

func queryIDs(ctx context.Context, db *gorm.DB, query sq.SelectBuilder, name string) ([]uint, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for %s: %w", name, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB for %s: %w", name, err)
	}

	rows, err := sqlDB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s: %w", name, err)
	}
	defer rows.Close()

	var ids []uint
	for rows.Next() {
		var id uint
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", name, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating %s rows: %w", name, err)
	}
	return ids, nil
}
