package session

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/kbukum/medscribe/database"
)

const resource = "session"

// Gateway is the view of session persistence used by the real-time
// coordinator.
type Gateway interface {
	// LoadSession returns the record or a NOT_FOUND AppError. Store outages
	// are reported as retryable DATABASE_ERROR AppErrors.
	LoadSession(ctx context.Context, id string) (*Record, error)
	// AppendTranscript replaces the persisted transcript with the trimmed
	// full text and refreshes updatedAt.
	AppendTranscript(ctx context.Context, id, text string) error
}

// Store is the full CRUD surface over session records.
type Store interface {
	Gateway
	Create(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, doctorID string, opts ListOptions) ([]Record, error)
	Update(ctx context.Context, id string, p Patch) error
	Delete(ctx context.Context, id string) error
}

// Repository is the GORM-backed Store.
type Repository struct {
	db  *database.DB
	now func() time.Time
}

var _ Store = (*Repository)(nil)

// NewRepository creates a Repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) Create(ctx context.Context, rec *Record) error {
	if len(rec.Entities) == 0 {
		rec.Entities = EmptyList
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return database.FromDatabase(err, resource)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		appErr := database.FromDatabase(err, resource)
		if database.IsNotFound(err) {
			appErr.WithDetail("id", id)
		}
		return nil, appErr
	}
	return &rec, nil
}

func (r *Repository) LoadSession(ctx context.Context, id string) (*Record, error) {
	return r.Get(ctx, id)
}

// List returns the doctor's sessions, newest first.
func (r *Repository) List(ctx context.Context, doctorID string, opts ListOptions) ([]Record, error) {
	opts.normalize()
	q := r.db.WithContext(ctx).Where("doctor_id = ?", doctorID)
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}

	records := []Record{}
	err := q.Order("created_at DESC").Limit(opts.Limit).Offset(opts.Offset).Find(&records).Error
	if err != nil {
		return nil, database.FromDatabase(err, resource)
	}
	return records, nil
}

func (r *Repository) Update(ctx context.Context, id string, p Patch) error {
	updates := map[string]interface{}{"updated_at": r.now().UTC()}
	if p.Transcript != nil {
		updates["transcript"] = *p.Transcript
	}
	if p.Entities != nil {
		updates["entities"] = *p.Entities
	}
	if p.Summary != nil {
		updates["summary"] = *p.Summary
	}
	if p.ImageAnalysis != nil {
		updates["image_analysis"] = *p.ImageAnalysis
	}
	if p.Status != nil {
		updates["status"] = *p.Status
	}
	return r.update(ctx, id, updates)
}

func (r *Repository) AppendTranscript(ctx context.Context, id, text string) error {
	return r.update(ctx, id, map[string]interface{}{
		"transcript": strings.TrimSpace(text),
		"updated_at": r.now().UTC(),
	})
}

func (r *Repository) update(ctx context.Context, id string, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&Record{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return database.FromDatabase(res.Error, resource)
	}
	if res.RowsAffected == 0 {
		return database.FromDatabase(gorm.ErrRecordNotFound, resource).WithDetail("id", id)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&Record{})
	if res.Error != nil {
		return database.FromDatabase(res.Error, resource)
	}
	if res.RowsAffected == 0 {
		return database.FromDatabase(gorm.ErrRecordNotFound, resource).WithDetail("id", id)
	}
	return nil
}
