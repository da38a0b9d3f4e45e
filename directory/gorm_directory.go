package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/anjiri1684/medichat/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Bookings reads a doctor's appointment history and walk-in queue.
type Bookings struct {
	db *gorm.DB
}

func NewBookings(db *gorm.DB) *Bookings {
	return &Bookings{db: db}
}

// PatientRefs returns booking records followed by the bare patient ids of
// anyone still waiting in the doctor's queue.
func (b *Bookings) PatientRefs(ctx context.Context, doctorID uuid.UUID) ([]any, error) {
	var bookings []models.Booking
	if err := b.db.WithContext(ctx).
		Where("doctor_id = ?", doctorID).
		Order("created_at asc").
		Find(&bookings).Error; err != nil {
		return nil, fmt.Errorf("bookings for doctor %s: %w", doctorID, err)
	}

	var queued []uuid.UUID
	if err := b.db.WithContext(ctx).
		Model(&models.QueueEntry{}).
		Where("doctor_id = ? AND served_at IS NULL", doctorID).
		Order("token_number asc").
		Pluck("patient_id", &queued).Error; err != nil {
		return nil, fmt.Errorf("queue for doctor %s: %w", doctorID, err)
	}

	refs := make([]any, 0, len(bookings)+len(queued))
	for _, bk := range bookings {
		refs = append(refs, bk)
	}
	for _, id := range queued {
		refs = append(refs, id)
	}
	return refs, nil
}

// Identity resolves doctor and patient ids against their tables.
type Identity struct {
	db *gorm.DB
}

func NewIdentity(db *gorm.DB) *Identity {
	return &Identity{db: db}
}

func (i *Identity) DoctorExists(ctx context.Context, doctorID uuid.UUID) (bool, error) {
	var doctor models.Doctor
	err := i.db.WithContext(ctx).Select("id").First(&doctor, "id = ?", doctorID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (i *Identity) PatientExists(ctx context.Context, patientID uuid.UUID) (bool, error) {
	var patient models.Patient
	err := i.db.WithContext(ctx).Select("id").First(&patient, "id = ?", patientID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Profiles returns a display profile for every id it can resolve, in the
// order the ids were given. Unknown ids are skipped.
func (i *Identity) Profiles(ctx context.Context, ids []uuid.UUID) ([]models.Profile, error) {
	if len(ids) == 0 {
		return []models.Profile{}, nil
	}

	var patients []models.Patient
	if err := i.db.WithContext(ctx).Where("id IN ?", ids).Find(&patients).Error; err != nil {
		return nil, err
	}
	var doctors []models.Doctor
	if err := i.db.WithContext(ctx).Where("id IN ?", ids).Find(&doctors).Error; err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]models.Profile, len(patients)+len(doctors))
	for _, p := range patients {
		byID[p.ID] = models.Profile{ID: p.ID, Name: p.FullName, Avatar: p.ProfilePictureURL, Contact: contact(p.Email, p.Phone)}
	}
	for _, d := range doctors {
		byID[d.ID] = models.Profile{ID: d.ID, Name: d.FullName, Avatar: d.ProfilePictureURL, Contact: contact(d.Email, d.Phone)}
	}

	profiles := make([]models.Profile, 0, len(byID))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			profiles = append(profiles, p)
		}
	}
	return profiles, nil
}

func contact(email string, phone *string) string {
	if phone != nil && *phone != "" {
		return *phone
	}
	return email
}
