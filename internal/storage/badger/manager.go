package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
)

// Manager implements interfaces.StorageManager over a single BadgerDB
type Manager struct {
	db           *BadgerDB
	queue        interfaces.QueueStorage
	companies    interfaces.CompanyStorage
	sources      interfaces.SourceStorage
	matches      interfaces.MatchStorage
	scrapeEvents interfaces.ScrapeEventStorage
	logger       arbor.ILogger
}

// NewManager opens the store and wires the typed collections
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:           db,
		queue:        NewQueueStorage(db, logger),
		companies:    NewCompanyStorage(db, logger),
		sources:      NewSourceStorage(db, logger),
		matches:      NewMatchStorage(db, logger),
		scrapeEvents: NewScrapeEventStorage(db, logger),
		logger:       logger,
	}, nil
}

func (m *Manager) Queue() interfaces.QueueStorage               { return m.queue }
func (m *Manager) Companies() interfaces.CompanyStorage         { return m.companies }
func (m *Manager) Sources() interfaces.SourceStorage            { return m.sources }
func (m *Manager) Matches() interfaces.MatchStorage             { return m.matches }
func (m *Manager) ScrapeEvents() interfaces.ScrapeEventStorage  { return m.scrapeEvents }

// Close closes the underlying store
func (m *Manager) Close() error {
	return m.db.Close()
}
