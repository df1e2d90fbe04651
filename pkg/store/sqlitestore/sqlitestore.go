// Package sqlitestore is a gorm-backed WriteStore on top of a local
// SQLite file, for single-node deployments that don't want a separate
// database process. A stack and its weights are normalized into two
// tables, mirroring the one-to-many relationship a registered stack has
// with its per-cloud weights.
package sqlitestore

import (
	"context"
	"fmt"

	"github.com/acticloud/heatspreader/pkg/log"
	"github.com/acticloud/heatspreader/pkg/store"
	"github.com/acticloud/heatspreader/pkg/types"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// stackRow is the persisted row for a multicloud stack.
type stackRow struct {
	StackName      string `gorm:"primaryKey"`
	Count          int
	CountParameter string
	Weights        []weightRow `gorm:"foreignKey:StackName;references:StackName;constraint:OnDelete:CASCADE"`
}

// weightRow is one cloud's weight for a stack, ordered by Position so
// the stack's CloudOrder survives a round trip through the database.
type weightRow struct {
	StackName string `gorm:"primaryKey"`
	CloudName string `gorm:"primaryKey"`
	Weight    float64
	Position  int
}

// Store is a SQLite-backed WriteStore.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// migrates its schema.
func Open(path string) (*Store, error) {
	log.WithComponent("sqlitestore").Debug().Str("database", path).Msg("backend_sqlite_connect")

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %s: %w", path, err)
	}

	if err := db.AutoMigrate(&stackRow{}, &weightRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

func toDomain(row *stackRow) *types.MulticloudStack {
	st := &types.MulticloudStack{
		StackName:      row.StackName,
		Count:          row.Count,
		CountParameter: row.CountParameter,
		Weights:        make(map[string]float64, len(row.Weights)),
	}
	for _, w := range row.Weights {
		st.Weights[w.CloudName] = w.Weight
		st.CloudOrder = append(st.CloudOrder, w.CloudName)
	}
	return st
}

func toRow(st *types.MulticloudStack) *stackRow {
	row := &stackRow{
		StackName:      st.StackName,
		Count:          st.Count,
		CountParameter: st.CountParameter,
	}
	for i, cloud := range st.Clouds() {
		row.Weights = append(row.Weights, weightRow{
			StackName: st.StackName,
			CloudName: cloud,
			Weight:    st.Weights[cloud],
			Position:  i,
		})
	}
	return row
}

// List returns every registered stack, ordered by stack name.
func (s *Store) List(ctx context.Context) ([]*types.MulticloudStack, error) {
	var rows []stackRow
	if err := s.db.WithContext(ctx).Preload("Weights", func(db *gorm.DB) *gorm.DB {
		return db.Order("weight_rows.position")
	}).Order("stack_name").Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]*types.MulticloudStack, 0, len(rows))
	for i := range rows {
		out = append(out, toDomain(&rows[i]))
	}
	return out, nil
}

// Get returns a single stack by name.
func (s *Store) Get(ctx context.Context, stackName string) (*types.MulticloudStack, error) {
	var row stackRow
	err := s.db.WithContext(ctx).Preload("Weights", func(db *gorm.DB) *gorm.DB {
		return db.Order("weight_rows.position")
	}).First(&row, "stack_name = ?", stackName).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return toDomain(&row), nil
}

// Create registers a new stack.
func (s *Store) Create(ctx context.Context, st *types.MulticloudStack) error {
	if err := validateWeights(st); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(toRow(st)).Error
}

// Update replaces a stack's count, count parameter, and weights.
func (s *Store) Update(ctx context.Context, st *types.MulticloudStack) error {
	if err := validateWeights(st); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&stackRow{}).Where("stack_name = ?", st.StackName).
			Updates(map[string]any{"count": st.Count, "count_parameter": st.CountParameter})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}
		if err := tx.Where("stack_name = ?", st.StackName).Delete(&weightRow{}).Error; err != nil {
			return err
		}
		row := toRow(st)
		if len(row.Weights) > 0 {
			return tx.Create(&row.Weights).Error
		}
		return nil
	})
}

// Delete removes a stack and its weight rows in one transaction.
func (s *Store) Delete(ctx context.Context, stackName string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&stackRow{}, "stack_name = ?", stackName)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}
		return tx.Where("stack_name = ?", stackName).Delete(&weightRow{}).Error
	})
}

// SetWeight sets (or adds) a single cloud's weight for a stack.
func (s *Store) SetWeight(ctx context.Context, stackName, cloudName string, weight float64) error {
	st, err := s.Get(ctx, stackName)
	if err != nil {
		return err
	}
	if _, exists := st.Weights[cloudName]; !exists {
		st.CloudOrder = append(st.CloudOrder, cloudName)
	}
	st.Weights[cloudName] = weight
	return s.Update(ctx, st)
}

// RemoveWeight removes a cloud from a stack's weight map.
func (s *Store) RemoveWeight(ctx context.Context, stackName, cloudName string) error {
	st, err := s.Get(ctx, stackName)
	if err != nil {
		return err
	}
	delete(st.Weights, cloudName)
	for i, c := range st.CloudOrder {
		if c == cloudName {
			st.CloudOrder = append(st.CloudOrder[:i], st.CloudOrder[i+1:]...)
			break
		}
	}
	return s.Update(ctx, st)
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func validateWeights(st *types.MulticloudStack) error {
	if st.StackName == "" {
		return fmt.Errorf("stack_name is required")
	}
	if st.Count < 0 {
		return fmt.Errorf("count must be non-negative")
	}
	if st.CountParameter == "" {
		return fmt.Errorf("count_parameter is required")
	}
	if total := st.TotalWeight(); total > 1 {
		return fmt.Errorf("total cloud weight over 1 (total weight: %v)", total)
	}
	return nil
}
