package roadmap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/scout/backend/internal/users"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrUserNotFound indicates a roadmap write for a name that has never
	// been registered. Reads tolerate absence; writes do not.
	ErrUserNotFound = errors.New("roadmap: user not found")
	// ErrRoadmapNotFound indicates no plan is stored for the name.
	ErrRoadmapNotFound = errors.New("roadmap: not found")

	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError pairs a stable operation code with its underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the machine-readable operation code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "roadmap.service.new"
	opSave       = "roadmap.save"
	opGet        = "roadmap.get"
	opUpdateTask = "roadmap.update_task"
	opStatistics = "roadmap.statistics"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// ServiceConfig describes the dependencies required for roadmap persistence.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns the persisted roadmap documents and the task completion
// protocol operating on them.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the roadmap service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:     cfg.Database,
		clock:  clock,
		logger: logger,
	}, nil
}

// Save stores the plan for the named user, fully replacing any previous one.
// Task ids are derived and completion flags reset before the write; a
// re-save is a replacement, never a merge. The owning user must already
// exist. Returns the stable roadmap id for the user's single document.
func (s *Service) Save(ctx context.Context, name string, plan Roadmap) (string, error) {
	nameKey := users.NormalizeName(name)
	if nameKey == "" {
		return "", newServiceError(opSave, "missing_name", users.ErrEmptyName)
	}

	AssignTaskIDs(&plan)
	encoded, err := json.Marshal(plan)
	if err != nil {
		s.logError(opSave, "encode_failed", err, zap.String("name_key", nameKey))
		return "", newServiceError(opSave, "encode_failed", err)
	}

	var roadmapID string
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner users.User
		err := tx.Where("name_key = ?", nameKey).Take(&owner).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opSave, "user_not_found", ErrUserNotFound)
		}
		if err != nil {
			s.logError(opSave, "user_lookup_failed", err, zap.String("name_key", nameKey))
			return newServiceError(opSave, "user_lookup_failed", err)
		}

		now := s.clock().UTC()

		var existing Document
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("name_key = ?", nameKey).
			Take(&existing).
			Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			document := Document{
				NameKey:     nameKey,
				RoadmapID:   uuid.NewString(),
				UserID:      owner.UserID,
				UserName:    owner.Name,
				RoadmapJSON: string(encoded),
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.Create(&document).Error; err != nil {
				s.logError(opSave, "insert_failed", err, zap.String("name_key", nameKey))
				return newServiceError(opSave, "insert_failed", err)
			}
			roadmapID = document.RoadmapID
			return nil
		}
		if err != nil {
			s.logError(opSave, "select_failed", err, zap.String("name_key", nameKey))
			return newServiceError(opSave, "select_failed", err)
		}

		updates := map[string]interface{}{
			"user_id":      owner.UserID,
			"user_name":    owner.Name,
			"roadmap_json": string(encoded),
			"updated_at":   now,
		}
		if err := tx.Model(&Document{}).
			Where("name_key = ?", nameKey).
			Updates(updates).
			Error; err != nil {
			s.logError(opSave, "update_failed", err, zap.String("name_key", nameKey))
			return newServiceError(opSave, "update_failed", err)
		}
		roadmapID = existing.RoadmapID
		return nil
	})
	if txErr != nil {
		return "", txErr
	}

	s.logger.Info("roadmap saved", zap.String("name_key", nameKey), zap.String("roadmap_id", roadmapID))
	return roadmapID, nil
}

// Get returns the stored document for the named user.
func (s *Service) Get(ctx context.Context, name string) (Document, error) {
	nameKey := users.NormalizeName(name)
	if nameKey == "" {
		return Document{}, newServiceError(opGet, "missing_name", users.ErrEmptyName)
	}

	var document Document
	err := s.db.WithContext(ctx).
		Where("name_key = ?", nameKey).
		Take(&document).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, newServiceError(opGet, "not_found", ErrRoadmapNotFound)
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("name_key", nameKey))
		return Document{}, newServiceError(opGet, "query_failed", err)
	}
	return document, nil
}

// UpdateTaskCompletion flips the completion flag of the one task addressed
// by (date, taskID). The pair is scoped: the task must sit inside the day
// whose date matches. A miss reports false without touching the document.
// The read-modify-write runs under a row lock so racing updates for the
// same document serialize instead of losing writes.
func (s *Service) UpdateTaskCompletion(ctx context.Context, name, date, taskID string, completed bool) (bool, error) {
	nameKey := users.NormalizeName(name)
	if nameKey == "" {
		return false, newServiceError(opUpdateTask, "missing_name", users.ErrEmptyName)
	}

	matched := false
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var document Document
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("name_key = ?", nameKey).
			Take(&document).
			Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			s.logError(opUpdateTask, "select_failed", err, zap.String("name_key", nameKey))
			return newServiceError(opUpdateTask, "select_failed", err)
		}

		var plan Roadmap
		if err := json.Unmarshal([]byte(document.RoadmapJSON), &plan); err != nil {
			s.logError(opUpdateTask, "decode_failed", err, zap.String("name_key", nameKey))
			return newServiceError(opUpdateTask, "decode_failed", err)
		}

		for dayIndex := range plan.DailyTasks {
			day := &plan.DailyTasks[dayIndex]
			if day.Date != date {
				continue
			}
			for taskIndex := range day.Tasks {
				if day.Tasks[taskIndex].ID != taskID {
					continue
				}
				day.Tasks[taskIndex].Completed = completed
				matched = true
			}
		}
		if !matched {
			return nil
		}

		encoded, err := json.Marshal(plan)
		if err != nil {
			s.logError(opUpdateTask, "encode_failed", err, zap.String("name_key", nameKey))
			return newServiceError(opUpdateTask, "encode_failed", err)
		}
		updates := map[string]interface{}{
			"roadmap_json": string(encoded),
			"updated_at":   s.clock().UTC(),
		}
		if err := tx.Model(&Document{}).
			Where("name_key = ?", nameKey).
			Updates(updates).
			Error; err != nil {
			s.logError(opUpdateTask, "update_failed", err, zap.String("name_key", nameKey))
			return newServiceError(opUpdateTask, "update_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return false, txErr
	}
	return matched, nil
}

// Statistics recomputes progress aggregates from the stored document. A
// missing document yields zeroes, not an error.
func (s *Service) Statistics(ctx context.Context, name string) (Statistics, error) {
	nameKey := users.NormalizeName(name)
	if nameKey == "" {
		return Statistics{}, newServiceError(opStatistics, "missing_name", users.ErrEmptyName)
	}

	var document Document
	err := s.db.WithContext(ctx).
		Where("name_key = ?", nameKey).
		Take(&document).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Statistics{}, nil
	}
	if err != nil {
		s.logError(opStatistics, "query_failed", err, zap.String("name_key", nameKey))
		return Statistics{}, newServiceError(opStatistics, "query_failed", err)
	}

	var plan Roadmap
	if err := json.Unmarshal([]byte(document.RoadmapJSON), &plan); err != nil {
		s.logError(opStatistics, "decode_failed", err, zap.String("name_key", nameKey))
		return Statistics{}, newServiceError(opStatistics, "decode_failed", err)
	}
	return computeStatistics(plan), nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("roadmap service error", attrs...)
}
