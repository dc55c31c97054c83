package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"challenge-media/internal/mediatypes"
	"challenge-media/internal/metrics"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

const imageColumns = `id, path, size, mime_type, extension, width, height, title, alt_text, tags, category, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// CreateImage inserts a new record. The path is unique and can never be
// changed afterwards.
func (d *Database) CreateImage(ctx context.Context, img NewImage) (rec *ImageRecord, err error) {
	start := time.Now()
	defer func() { recordQuery("create_image", start, err) }()

	if strings.TrimSpace(img.Path) == "" {
		return nil, fmt.Errorf("image path is required")
	}
	if img.ID == "" {
		img.ID = uuid.NewString()
	}

	tags, err := encodeTags(img.Tags)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := d.now().UnixMilli()
	_, err = d.db.ExecContext(ctx, d.rebind(`
		INSERT INTO images (`+imageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		img.ID, img.Path, img.Size, img.MimeType, img.Extension,
		nullInt(img.Width), nullInt(img.Height),
		img.Title, img.AltText, tags, img.Category, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePath, img.Path)
		}
		return nil, fmt.Errorf("failed to insert image: %w", err)
	}

	return &ImageRecord{
		ID:        img.ID,
		Path:      img.Path,
		Size:      img.Size,
		MimeType:  img.MimeType,
		Extension: img.Extension,
		Width:     img.Width,
		Height:    img.Height,
		Variants:  []VariantRecord{},
		Title:     img.Title,
		AltText:   img.AltText,
		Tags:      normalizeTags(img.Tags),
		Category:  img.Category,
		CreatedAt: time.UnixMilli(now),
		UpdatedAt: time.UnixMilli(now),
	}, nil
}

// GetImageByPath retrieves a record and its variants by stored path.
func (d *Database) GetImageByPath(ctx context.Context, path string) (rec *ImageRecord, err error) {
	start := time.Now()
	defer func() { recordQuery("get_image_by_path", start, err) }()

	return d.getImage(ctx, "path", path)
}

// GetImageByID retrieves a record and its variants by id.
func (d *Database) GetImageByID(ctx context.Context, id string) (rec *ImageRecord, err error) {
	start := time.Now()
	defer func() { recordQuery("get_image_by_id", start, err) }()

	return d.getImage(ctx, "id", id)
}

func (d *Database) getImage(ctx context.Context, column, value string) (*ImageRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx,
		d.rebind(`SELECT `+imageColumns+` FROM images WHERE `+column+` = ?`), value)

	rec, err := scanImage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	variants, err := d.loadVariants(ctx, []string{rec.ID})
	if err != nil {
		return nil, err
	}
	rec.Variants = orderedVariants(variants[rec.ID])
	return rec, nil
}

// ListImages returns a page of records, newest first, optionally filtered by
// category.
func (d *Database) ListImages(ctx context.Context, opts ListOptions) (page *ImagePage, err error) {
	start := time.Now()
	defer func() { recordQuery("list_images", start, err) }()

	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.PageSize > maxPageSize {
		opts.PageSize = maxPageSize
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	where := ""
	var args []interface{}
	if opts.Category != "" {
		where = " WHERE category = ?"
		args = append(args, opts.Category)
	}

	var total int
	if err := d.db.QueryRowContext(ctx, d.rebind(`SELECT COUNT(*) FROM images`+where), args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count images: %w", err)
	}

	offset := (opts.Page - 1) * opts.PageSize
	rows, err := d.db.QueryContext(ctx,
		d.rebind(`SELECT `+imageColumns+` FROM images`+where+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`),
		append(args, opts.PageSize, offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	items := make([]ImageRecord, 0, opts.PageSize)
	ids := make([]string, 0, opts.PageSize)
	for rows.Next() {
		rec, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *rec)
		ids = append(ids, rec.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	variants, err := d.loadVariants(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Variants = orderedVariants(variants[items[i].ID])
	}

	totalPages := (total + opts.PageSize - 1) / opts.PageSize
	return &ImagePage{
		Items:      items,
		TotalItems: total,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalPages: totalPages,
	}, nil
}

// SetVariants replaces the variant set of an image and bumps its update
// timestamp. Only the fixed derived variant names are accepted.
func (d *Database) SetVariants(ctx context.Context, imageID string, variants []VariantRecord) (err error) {
	start := time.Now()
	defer func() { recordQuery("set_variants", start, err) }()

	seen := make(map[mediatypes.VariantName]bool, len(variants))
	for _, v := range variants {
		if !mediatypes.IsVariant(v.Name) {
			return fmt.Errorf("%w: %q", ErrInvalidVariant, v.Name)
		}
		if seen[v.Name] {
			return fmt.Errorf("%w: %q listed twice", ErrInvalidVariant, v.Name)
		}
		seen[v.Name] = true
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
			}
		}
	}()

	now := d.now().UnixMilli()
	if err = d.touch(ctx, tx, "id", imageID, now); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, d.rebind(`DELETE FROM image_variants WHERE image_id = ?`), imageID); err != nil {
		return fmt.Errorf("failed to clear variants: %w", err)
	}

	for _, v := range variants {
		_, err = tx.ExecContext(ctx, d.rebind(`
			INSERT INTO image_variants (image_id, name, path, format, width, height, size, version, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			imageID, string(v.Name), v.Path, v.Format, v.Width, v.Height, v.Size, v.Version, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert variant %s: %w", v.Name, err)
		}
	}

	return tx.Commit()
}

// UpdateImageMetadata applies an admin edit to the descriptive fields of a
// record and returns the updated record.
func (d *Database) UpdateImageMetadata(ctx context.Context, path string, update MetadataUpdate) (rec *ImageRecord, err error) {
	start := time.Now()
	defer func() { recordQuery("update_image_metadata", start, err) }()

	sets := make([]string, 0, 4)
	args := make([]interface{}, 0, 6)
	if update.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *update.Title)
	}
	if update.AltText != nil {
		sets = append(sets, "alt_text = ?")
		args = append(args, *update.AltText)
	}
	if update.Tags != nil {
		tags, err := encodeTags(*update.Tags)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "tags = ?")
		args = append(args, tags)
	}
	if update.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *update.Category)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if len(sets) > 0 {
		now := d.now().UnixMilli()
		sets = append(sets, "updated_at = CASE WHEN ? > updated_at THEN ? ELSE updated_at + 1 END")
		args = append(args, now, now, path)

		result, err := d.db.ExecContext(ctx,
			d.rebind(`UPDATE images SET `+strings.Join(sets, ", ")+` WHERE path = ?`), args...)
		if err != nil {
			return nil, fmt.Errorf("failed to update image: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return nil, ErrNotFound
		}
	}

	return d.getImage(ctx, "path", path)
}

// DeleteImage removes a record and its variant rows.
func (d *Database) DeleteImage(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { recordQuery("delete_image", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, d.rebind(`DELETE FROM image_variants WHERE image_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete variants: %w", err)
	}

	result, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM images WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		err = ErrNotFound
		return err
	}

	return tx.Commit()
}

// GetStats returns library totals for the metrics collector.
func (d *Database) GetStats(ctx context.Context) (stats metrics.Stats, err error) {
	start := time.Now()
	defer func() { recordQuery("count_images", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err = d.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM images),
			(SELECT COUNT(*) FROM image_variants)
	`).Scan(&stats.TotalImages, &stats.TotalVariants)
	return stats, err
}

// touch bumps updated_at so that it always moves forward, even when two
// writes land in the same millisecond.
func (d *Database) touch(ctx context.Context, tx *sql.Tx, column, value string, now int64) error {
	result, err := tx.ExecContext(ctx, d.rebind(`
		UPDATE images SET updated_at = CASE WHEN ? > updated_at THEN ? ELSE updated_at + 1 END
		WHERE `+column+` = ?`), now, now, value)
	if err != nil {
		return fmt.Errorf("failed to update image timestamp: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *Database) loadVariants(ctx context.Context, ids []string) (result map[string][]VariantRecord, err error) {
	result = make(map[string][]VariantRecord, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := d.db.QueryContext(ctx, d.rebind(`
		SELECT image_id, name, path, format, width, height, size, version
		FROM image_variants WHERE image_id IN (`+placeholders+`)`), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load variants: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		var imageID, name string
		var v VariantRecord
		if err := rows.Scan(&imageID, &name, &v.Path, &v.Format, &v.Width, &v.Height, &v.Size, &v.Version); err != nil {
			return nil, err
		}
		v.Name = mediatypes.VariantName(name)
		result[imageID] = append(result[imageID], v)
	}
	return result, rows.Err()
}

func scanImage(row rowScanner) (*ImageRecord, error) {
	var rec ImageRecord
	var width, height sql.NullInt64
	var tags string
	var createdAt, updatedAt int64

	err := row.Scan(
		&rec.ID, &rec.Path, &rec.Size, &rec.MimeType, &rec.Extension,
		&width, &height, &rec.Title, &rec.AltText, &tags, &rec.Category,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if width.Valid {
		w := int(width.Int64)
		rec.Width = &w
	}
	if height.Valid {
		h := int(height.Int64)
		rec.Height = &h
	}
	if err := json.Unmarshal([]byte(tags), &rec.Tags); err != nil {
		return nil, fmt.Errorf("corrupt tags for image %s: %w", rec.ID, err)
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	rec.Variants = []VariantRecord{}
	rec.CreatedAt = time.UnixMilli(createdAt)
	rec.UpdatedAt = time.UnixMilli(updatedAt)
	return &rec, nil
}

// orderedVariants sorts variants smallest first.
func orderedVariants(variants []VariantRecord) []VariantRecord {
	out := make([]VariantRecord, 0, len(variants))
	for _, name := range mediatypes.Variants {
		for _, v := range variants {
			if v.Name == name {
				out = append(out, v)
			}
		}
	}
	return out
}

func encodeTags(tags []string) (string, error) {
	b, err := json.Marshal(normalizeTags(tags))
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(b), nil
}

// normalizeTags trims tags and drops empties and duplicates.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		key := strings.ToLower(tag)
		if tag == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
	}
	return out
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
