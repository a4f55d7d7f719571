package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"bookbeacon/internal/util"
)

// GormStore implements Store using GORM + Postgres. Documents are stored as
// jsonb payloads so collections stay schema-flexible.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&DocumentModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// FindAll returns every document of a collection in insertion order.
func (s *GormStore) FindAll(collection string) ([]Document, error) {
	var models []DocumentModel
	err := s.db.
		Where("collection = ?", collection).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return documentsFromModels(models)
}

// FindByField returns documents whose payload field equals value.
func (s *GormStore) FindByField(collection, field, value string) ([]Document, error) {
	var models []DocumentModel
	err := s.db.
		Where("collection = ?", collection).
		Where(datatypes.JSONQuery("data").Equals(value, field)).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return documentsFromModels(models)
}

// FindByID retrieves one document by its generated identifier.
func (s *GormStore) FindByID(collection, id string) (Document, bool, error) {
	if !ValidDocumentID(id) {
		return nil, false, ErrInvalidDocumentID
	}
	var model DocumentModel
	err := s.db.First(&model, "id = ? AND collection = ?", id, collection).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	doc, err := documentFromModel(model)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// InsertOne stores a document under a fresh identifier.
func (s *GormStore) InsertOne(collection string, doc Document) (InsertResult, error) {
	payload, err := json.Marshal(stripID(doc))
	if err != nil {
		return InsertResult{}, fmt.Errorf("marshal document: %w", err)
	}
	model := DocumentModel{
		ID:         util.NewID(),
		Collection: collection,
		Data:       datatypes.JSON(payload),
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if err := s.db.Create(&model).Error; err != nil {
		return InsertResult{}, err
	}
	return InsertResult{Acknowledged: true, InsertedID: model.ID}, nil
}

// UpdateByID merges the supplied fields into the stored payload. Fields not
// present in set are left untouched.
func (s *GormStore) UpdateByID(collection, id string, set Document) (UpdateResult, error) {
	if !ValidDocumentID(id) {
		return UpdateResult{}, ErrInvalidDocumentID
	}
	patch, err := json.Marshal(stripID(set))
	if err != nil {
		return UpdateResult{}, fmt.Errorf("marshal patch: %w", err)
	}
	res := s.db.Model(&DocumentModel{}).
		Where("id = ? AND collection = ?", id, collection).
		Updates(map[string]any{
			"data":       gorm.Expr("data || ?::jsonb", string(patch)),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return UpdateResult{}, res.Error
	}
	return UpdateResult{
		Acknowledged:  true,
		MatchedCount:  res.RowsAffected,
		ModifiedCount: res.RowsAffected,
	}, nil
}

// DeleteByID removes one document by identifier.
func (s *GormStore) DeleteByID(collection, id string) (DeleteResult, error) {
	if !ValidDocumentID(id) {
		return DeleteResult{}, ErrInvalidDocumentID
	}
	res := s.db.Delete(&DocumentModel{}, "id = ? AND collection = ?", id, collection)
	if res.Error != nil {
		return DeleteResult{}, res.Error
	}
	return DeleteResult{Acknowledged: true, DeletedCount: res.RowsAffected}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func documentsFromModels(models []DocumentModel) ([]Document, error) {
	docs := make([]Document, 0, len(models))
	for _, m := range models {
		doc, err := documentFromModel(m)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func documentFromModel(m DocumentModel) (Document, error) {
	doc := Document{}
	if len(m.Data) > 0 {
		if err := json.Unmarshal(m.Data, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal document %s: %w", m.ID, err)
		}
	}
	doc["_id"] = m.ID
	return doc, nil
}

func stripID(doc Document) Document {
	if _, ok := doc["_id"]; !ok {
		return doc
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		if k == "_id" {
			continue
		}
		out[k] = v
	}
	return out
}
