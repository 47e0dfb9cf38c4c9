package services

import (
	"context"
	"fmt"
	"strconv"

	"cloonapi/models"

	"gorm.io/gorm"
)

// ErrLookNotFound is returned for unknown or foreign look ids. Deleting a
// look that is already gone reports it too, callers treat that as success
// when they only care about the end state.
var ErrLookNotFound = fmt.Errorf("look not found")

type LookUsage struct {
	Model            string
	InputTokenCount  int32
	OutputTokenCount int32
	TotalTokenCount  int32
}

// LookStoreProvider is the durable side of the studio: postgres rows for
// looks and subjects. The in-memory result store inside a studio is an
// optimistic view over this.
type LookStoreProvider interface {
	CreateLook(ctx context.Context, userID uint, imageKey string, garments []models.GarmentRef, usage *LookUsage) (*models.LookRecord, error)
	DeleteLook(ctx context.Context, userID uint, lookID string) error
	ListLooks(ctx context.Context, userID uint) ([]models.LookRecord, error)
	SaveSubject(ctx context.Context, userID uint, imageKey string) (*models.SubjectRecord, error)
	ActiveSubject(ctx context.Context, userID uint) (*models.SubjectRecord, error)
	ClearStudio(ctx context.Context, userID uint) error
}

type DBLookStore struct {
	DB *gorm.DB
}

func lookToRecord(look *models.Look) *models.LookRecord {
	record := &models.LookRecord{
		ID:        strconv.FormatUint(uint64(look.ID), 10),
		ImageKey:  look.ImageKey,
		Garments:  []models.GarmentRef{},
		CreatedAt: look.CreatedAt,
	}
	for _, garment := range look.Garments {
		record.Garments = append(record.Garments, models.GarmentRef{
			ItemID:   garment.ItemID,
			Name:     garment.Name,
			ImageKey: garment.ImageKey,
		})
	}
	return record
}

func (s *DBLookStore) CreateLook(ctx context.Context, userID uint, imageKey string, garments []models.GarmentRef, usage *LookUsage) (*models.LookRecord, error) {
	look := models.Look{
		OwnerID:  userID,
		ImageKey: imageKey,
	}
	if usage != nil {
		look.LLMModel = StrPointer(usage.Model)
		look.LLMInputTokenCount = Int32Pointer(usage.InputTokenCount)
		look.LLMOutputTokenCount = Int32Pointer(usage.OutputTokenCount)
		look.LLMTotalTokenCount = Int32Pointer(usage.TotalTokenCount)
	}
	for _, garment := range garments {
		look.Garments = append(look.Garments, models.LookGarment{
			ItemID:   garment.ItemID,
			Name:     garment.Name,
			ImageKey: garment.ImageKey,
		})
	}
	if result := s.DB.WithContext(ctx).Create(&look); result.Error != nil {
		return nil, result.Error
	}
	return lookToRecord(&look), nil
}

func (s *DBLookStore) DeleteLook(ctx context.Context, userID uint, lookID string) error {
	id, err := strconv.ParseUint(lookID, 10, 64)
	if err != nil {
		return ErrLookNotFound
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var look models.Look
		result := tx.Where("id = ? and owner_id = ?", id, userID).First(&look)
		if result.Error == gorm.ErrRecordNotFound {
			return ErrLookNotFound
		}
		if result.Error != nil {
			return result.Error
		}
		if result := tx.Where("look_id = ?", look.ID).Delete(&models.LookGarment{}); result.Error != nil {
			return result.Error
		}
		return tx.Delete(&look).Error
	})
}

func (s *DBLookStore) ListLooks(ctx context.Context, userID uint) ([]models.LookRecord, error) {
	var looks []models.Look
	result := s.DB.WithContext(ctx).Preload("Garments").Where("owner_id = ?", userID).Order("created_at desc").Find(&looks)
	if result.Error != nil {
		return nil, result.Error
	}
	records := []models.LookRecord{}
	for i := range looks {
		records = append(records, *lookToRecord(&looks[i]))
	}
	return records, nil
}

func (s *DBLookStore) SaveSubject(ctx context.Context, userID uint, imageKey string) (*models.SubjectRecord, error) {
	subject := models.Subject{
		OwnerID:  userID,
		ImageKey: imageKey,
	}
	if result := s.DB.WithContext(ctx).Create(&subject); result.Error != nil {
		return nil, result.Error
	}
	return &models.SubjectRecord{
		ID:       strconv.FormatUint(uint64(subject.ID), 10),
		ImageKey: subject.ImageKey,
	}, nil
}

func (s *DBLookStore) ActiveSubject(ctx context.Context, userID uint) (*models.SubjectRecord, error) {
	var subject models.Subject
	result := s.DB.WithContext(ctx).Where("owner_id = ?", userID).Order("created_at desc").First(&subject)
	if result.Error == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &models.SubjectRecord{
		ID:       strconv.FormatUint(uint64(subject.ID), 10),
		ImageKey: subject.ImageKey,
	}, nil
}

// ClearStudio wipes everything generated for the user: all looks with their
// garments and every stored subject. Runs when the subject is replaced.
func (s *DBLookStore) ClearStudio(ctx context.Context, userID uint) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lookIDs []uint
		if result := tx.Model(&models.Look{}).Where("owner_id = ?", userID).Pluck("id", &lookIDs); result.Error != nil {
			return result.Error
		}
		if len(lookIDs) > 0 {
			if result := tx.Where("look_id in ?", lookIDs).Delete(&models.LookGarment{}); result.Error != nil {
				return result.Error
			}
			if result := tx.Where("owner_id = ?", userID).Delete(&models.Look{}); result.Error != nil {
				return result.Error
			}
		}
		return tx.Where("owner_id = ?", userID).Delete(&models.Subject{}).Error
	})
}
