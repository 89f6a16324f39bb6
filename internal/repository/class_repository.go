package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mhasan-dev/course-market-api/internal/models"
)

const classColumns = "id, name, image, description, price, seats, instructor_email, instructor_name, status, feedback, created_at, updated_at"

// ClassRepository manages persistence for catalog classes.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// Create persists a new class. Status always starts at pending.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	class.Status = models.ClassStatusPending
	now := time.Now().UTC()
	class.CreatedAt = now
	class.UpdatedAt = now

	const query = `INSERT INTO classes (id, name, image, description, price, seats, instructor_email, instructor_name, status, feedback, created_at, updated_at)
        VALUES (:id, :name, :image, :description, :price, :seats, :instructor_email, :instructor_name, :status, :feedback, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// FindByID returns a class record by ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	query := fmt.Sprintf("SELECT %s FROM classes WHERE id = $1", classColumns)
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindByName returns every class bearing the exact name, newest first.
// Names are not unique; callers decide the duplicate policy.
func (r *ClassRepository) FindByName(ctx context.Context, name string) ([]models.Class, error) {
	query := fmt.Sprintf("SELECT %s FROM classes WHERE name = $1 ORDER BY created_at DESC", classColumns)
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, name); err != nil {
		return nil, fmt.Errorf("find classes by name: %w", err)
	}
	return classes, nil
}

// FindByIDs returns classes matching the given IDs, chunked to keep the
// placeholder count bounded.
func (r *ClassRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Class, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const chunkSize = 100
	var classes []models.Class
	for start := 0; start < len(ids); start += chunkSize {
		end := start + chunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		placeholders := make([]string, len(chunk))
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args[i] = id
		}
		query := fmt.Sprintf("SELECT %s FROM classes WHERE id IN (%s)", classColumns, strings.Join(placeholders, ","))
		var batch []models.Class
		if err := r.db.SelectContext(ctx, &batch, query, args...); err != nil {
			return nil, fmt.Errorf("find classes by ids: %w", err)
		}
		classes = append(classes, batch...)
	}
	return classes, nil
}

// FindByNames returns classes whose name matches any of the given names,
// newest first so duplicate-name policies can pick the latest.
func (r *ClassRepository) FindByNames(ctx context.Context, names []string) ([]models.Class, error) {
	if len(names) == 0 {
		return nil, nil
	}
	const chunkSize = 100
	var classes []models.Class
	for start := 0; start < len(names); start += chunkSize {
		end := start + chunkSize
		if end > len(names) {
			end = len(names)
		}
		chunk := names[start:end]
		placeholders := make([]string, len(chunk))
		args := make([]interface{}, len(chunk))
		for i, name := range chunk {
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args[i] = name
		}
		query := fmt.Sprintf("SELECT %s FROM classes WHERE name IN (%s) ORDER BY created_at DESC", classColumns, strings.Join(placeholders, ","))
		var batch []models.Class
		if err := r.db.SelectContext(ctx, &batch, query, args...); err != nil {
			return nil, fmt.Errorf("find classes by names: %w", err)
		}
		classes = append(classes, batch...)
	}
	return classes, nil
}

// ListByInstructor returns every class authored by the instructor, any status.
func (r *ClassRepository) ListByInstructor(ctx context.Context, email string) ([]models.Class, error) {
	query := fmt.Sprintf("SELECT %s FROM classes WHERE instructor_email = $1 ORDER BY created_at DESC", classColumns)
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, email); err != nil {
		return nil, fmt.Errorf("list instructor classes: %w", err)
	}
	return classes, nil
}

// List returns classes matching filter criteria with pagination.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error) {
	base := "FROM classes WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d)", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"name":       true,
		"price":      true,
		"status":     true,
		"created_at": true,
		"updated_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", classColumns, base, sortBy, order, size, offset)
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// UpdateDescriptor applies a partial descriptor patch. Nil fields keep their
// stored value.
func (r *ClassRepository) UpdateDescriptor(ctx context.Context, id string, patch models.ClassDescriptorPatch) error {
	const query = `UPDATE classes SET
            name = COALESCE($2, name),
            image = COALESCE($3, image),
            description = COALESCE($4, description),
            price = COALESCE($5, price),
            seats = COALESCE($6, seats),
            updated_at = $7
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, patch.Name, patch.Image, patch.Description, patch.Price, patch.Seats, time.Now().UTC()); err != nil {
		return fmt.Errorf("update class descriptor: %w", err)
	}
	return nil
}

// UpdateStatus sets the moderation status of a class.
func (r *ClassRepository) UpdateStatus(ctx context.Context, id string, status models.ClassStatus) error {
	const query = `UPDATE classes SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update class status: %w", err)
	}
	return nil
}

// UpdateFeedback sets admin feedback, creating the value if absent.
func (r *ClassRepository) UpdateFeedback(ctx context.Context, id, feedback string) error {
	const query = `UPDATE classes SET feedback = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, feedback, time.Now().UTC()); err != nil {
		return fmt.Errorf("update class feedback: %w", err)
	}
	return nil
}
