package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	dbpkg "github.com/UJ2202/TOMAS/internal/db"
	"github.com/UJ2202/TOMAS/internal/ids"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(driver, dsn string) (*GormStore, error) {
	gormDB, err := dbpkg.OpenGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open gorm store: %w", err)
	}

	store := &GormStore{db: gormDB}
	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *GormStore) migrate() error {
	return s.db.AutoMigrate(&sessionRow{}, &messageRow{}, &fileRow{})
}

func (s *GormStore) CreateSession(ctx context.Context, ns NewSession) (SessionRecord, error) {
	if err := validateSessionID(ns.SessionID); err != nil {
		return SessionRecord{}, err
	}
	now := time.Now().UTC()
	rec := SessionRecord{
		SessionID:     ns.SessionID,
		ModeID:        ns.ModeID,
		Engine:        ns.Engine,
		Status:        StatusCreated,
		InputData:     ns.InputData,
		WorkspacePath: ns.WorkspacePath,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	row, err := sessionRowFromRecord(rec)
	if err != nil {
		return SessionRecord{}, err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return SessionRecord{}, fmt.Errorf("create session: %w", err)
	}
	return rec, nil
}

func (s *GormStore) GetSession(ctx context.Context, sessionID string) (SessionRecord, error) {
	if err := validateSessionID(sessionID); err != nil {
		return SessionRecord{}, err
	}
	var row sessionRow
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SessionRecord{}, ErrNotFound
		}
		return SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	return row.toRecord()
}

func (s *GormStore) ListSessions(ctx context.Context, filter ListFilter) ([]SessionRecord, error) {
	query := s.db.WithContext(ctx).Model(&sessionRow{}).Order("created_at DESC")
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.ModeID != "" {
		query = query.Where("mode_id = ?", filter.ModeID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []sessionRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]SessionRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *GormStore) UpdateStatus(ctx context.Context, sessionID string, status Status, errorMessage string) (SessionRecord, error) {
	if err := validateSessionID(sessionID); err != nil {
		return SessionRecord{}, err
	}
	var out SessionRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row sessionRow
		if err := tx.Where("session_id = ?", sessionID).Take(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("get session: %w", err)
		}
		rec, err := row.toRecord()
		if err != nil {
			return err
		}
		if err := applyTransition(&rec, status, errorMessage, time.Now().UTC()); err != nil {
			return err
		}
		updated, err := sessionRowFromRecord(rec)
		if err != nil {
			return err
		}
		if err := tx.Save(&updated).Error; err != nil {
			return fmt.Errorf("update session status: %w", err)
		}
		out = rec
		return nil
	})
	if err != nil {
		return SessionRecord{}, err
	}
	return out, nil
}

func (s *GormStore) SaveCheckpoint(ctx context.Context, sessionID string, checkpoint []byte) error {
	return s.updateSessionColumns(ctx, sessionID, map[string]any{
		"checkpoint": checkpoint,
		"updated_at": time.Now().UTC(),
	})
}

func (s *GormStore) LoadCheckpoint(ctx context.Context, sessionID string) ([]byte, error) {
	rec, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return rec.Checkpoint, nil
}

func (s *GormStore) SetOutputData(ctx context.Context, sessionID string, output map[string]any) error {
	encoded, err := encodeJSONMap(output)
	if err != nil {
		return fmt.Errorf("encode output data: %w", err)
	}
	return s.updateSessionColumns(ctx, sessionID, map[string]any{
		"output_json": encoded,
		"updated_at":  time.Now().UTC(),
	})
}

func (s *GormStore) AddCost(ctx context.Context, sessionID string, tokens int64, costUSD float64) error {
	if tokens < 0 || costUSD < 0 {
		return fmt.Errorf("cost contributions must be non-negative")
	}
	res := s.db.WithContext(ctx).Model(&sessionRow{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]any{
			"total_tokens":   gorm.Expr("total_tokens + ?", tokens),
			"total_cost_usd": gorm.Expr("total_cost_usd + ?", costUSD),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("add cost: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) AppendMessage(ctx context.Context, msg NewMessage) (MessageRecord, error) {
	if err := validateSessionID(msg.SessionID); err != nil {
		return MessageRecord{}, err
	}
	var out MessageRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&sessionRow{}).Where("session_id = ?", msg.SessionID).Count(&exists).Error; err != nil {
			return fmt.Errorf("check session: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}

		var maxSeq int64
		if err := tx.Model(&messageRow{}).
			Where("session_id = ?", msg.SessionID).
			Select("COALESCE(MAX(sequence), 0)").
			Scan(&maxSeq).Error; err != nil {
			return fmt.Errorf("sequence lookup: %w", err)
		}

		metadataJSON, err := encodeJSONMap(msg.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}

		row := messageRow{
			MessageID:    ids.New(),
			SessionID:    msg.SessionID,
			Role:         string(msg.Role),
			Content:      msg.Content,
			MetadataJSON: metadataJSON,
			Sequence:     maxSeq + 1,
			Tokens:       msg.Tokens,
			CostUSD:      msg.CostUSD,
			CreatedAt:    time.Now().UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		out, err = row.toRecord()
		return err
	})
	if err != nil {
		return MessageRecord{}, err
	}
	return out, nil
}

func (s *GormStore) GetMessages(ctx context.Context, sessionID string, limit, offset int) ([]MessageRecord, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	query := s.db.WithContext(ctx).Model(&messageRow{}).
		Where("session_id = ?", sessionID).
		Order("sequence ASC")
	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []messageRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	out := make([]MessageRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *GormStore) CreateFile(ctx context.Context, file FileRecord) (FileRecord, error) {
	if err := validateSessionID(file.SessionID); err != nil {
		return FileRecord{}, err
	}
	if file.FileID == "" {
		file.FileID = ids.New()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}
	row := fileRowFromRecord(file)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return FileRecord{}, fmt.Errorf("create file: %w", err)
	}
	return file, nil
}

func (s *GormStore) GetFile(ctx context.Context, fileID string) (FileRecord, error) {
	var row fileRow
	err := s.db.WithContext(ctx).Where("file_id = ?", fileID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return FileRecord{}, ErrNotFound
		}
		return FileRecord{}, fmt.Errorf("get file: %w", err)
	}
	return row.toRecord(), nil
}

func (s *GormStore) ListFiles(ctx context.Context, sessionID string, inputOnly *bool) ([]FileRecord, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	query := s.db.WithContext(ctx).Model(&fileRow{}).
		Where("session_id = ?", sessionID).
		Order("created_at ASC")
	if inputOnly != nil {
		query = query.Where("is_input = ?", *inputOnly)
	}

	var rows []fileRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	out := make([]FileRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRecord())
	}
	return out, nil
}

// DeleteSession removes the session row plus its messages and files in
// one transaction.
func (s *GormStore) DeleteSession(ctx context.Context, sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("session_id = ?", sessionID).Delete(&sessionRow{})
		if res.Error != nil {
			return fmt.Errorf("delete session: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("session_id = ?", sessionID).Delete(&messageRow{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if err := tx.Where("session_id = ?", sessionID).Delete(&fileRow{}).Error; err != nil {
			return fmt.Errorf("delete files: %w", err)
		}
		return nil
	})
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}

func (s *GormStore) updateSessionColumns(ctx context.Context, sessionID string, updates map[string]any) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&sessionRow{}).
		Where("session_id = ?", sessionID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
