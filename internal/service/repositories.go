package service

// LedgerStore is the transactional ledger store.
type LedgerStore interface {
	ledgerRepository
}

// StudentStore serves student CRUD and the duplicate screen.
type StudentStore interface {
	studentRepository
	candidateRepository
}

// ActivityStore serves the activity catalog and award lookups.
type ActivityStore interface {
	activityRepository
	activityReader
}

// PrizeStore serves prize inventory.
type PrizeStore interface {
	prizeRepository
}

// Repositories groups the stores behind the services. The postgres repositories and the
// in-memory store both satisfy it.
type Repositories struct {
	Ledger       LedgerStore
	Students     StudentStore
	Activities   ActivityStore
	Prizes       PrizeStore
	DuplicateLog duplicateLogRepository
	Audit        auditRepository
	Settings     settingsRepository
}
