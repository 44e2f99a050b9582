package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/common"
	"github.com/ternarybob/migro/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	job      interfaces.JobStorage
	staged   interfaces.StagedItemStorage
	ruleset  interfaces.RuleSetStorage
	template interfaces.TemplateStorage
	content  interfaces.ContentStorage
	asset    interfaces.AssetStorage
	jobLog   interfaces.JobLogStorage
	logger   arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:       db,
		job:      NewJobStorage(db, logger),
		staged:   NewStagedItemStorage(db, logger),
		ruleset:  NewRuleSetStorage(db, logger),
		template: NewTemplateStorage(db, logger),
		content:  NewContentStorage(db, logger),
		asset:    NewAssetStorage(db, logger),
		jobLog:   NewJobLogStorage(db, logger),
		logger:   logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// JobStorage returns the import job storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// StagedItemStorage returns the staging store interface
func (m *Manager) StagedItemStorage() interfaces.StagedItemStorage {
	return m.staged
}

// RuleSetStorage returns the ruleset storage interface
func (m *Manager) RuleSetStorage() interfaces.RuleSetStorage {
	return m.ruleset
}

// TemplateStorage returns the template storage interface
func (m *Manager) TemplateStorage() interfaces.TemplateStorage {
	return m.template
}

// ContentStorage returns the content storage interface
func (m *Manager) ContentStorage() interfaces.ContentStorage {
	return m.content
}

// AssetStorage returns the asset storage interface
func (m *Manager) AssetStorage() interfaces.AssetStorage {
	return m.asset
}

// JobLogStorage returns the job log storage interface
func (m *Manager) JobLogStorage() interfaces.JobLogStorage {
	return m.jobLog
}

// DB returns the underlying database connection
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
