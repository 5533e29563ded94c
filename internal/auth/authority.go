// Package auth is the injected role registry. The engine never hardcodes
// privileged accounts; it asks the authority.
package auth

import (
	"sync"

	"github.com/google/uuid"
)

// Authority answers role checks for lifecycle operations.
type Authority interface {
	// IsAdmin reports whether the account holds the administrator role.
	IsAdmin(account uuid.UUID) bool

	// IsTraderAdmin reports whether the account holds the trading
	// administrator role (auction, dispute and override operations).
	IsTraderAdmin(account uuid.UUID) bool
}

// StaticRegistry is a fixed in-memory role table.
type StaticRegistry struct {
	mu           sync.RWMutex
	admins       map[uuid.UUID]bool
	traderAdmins map[uuid.UUID]bool
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		admins:       make(map[uuid.UUID]bool),
		traderAdmins: make(map[uuid.UUID]bool),
	}
}

func (r *StaticRegistry) GrantAdmin(account uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admins[account] = true
}

func (r *StaticRegistry) GrantTraderAdmin(account uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.traderAdmins[account] = true
}

func (r *StaticRegistry) IsAdmin(account uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.admins[account]
}

func (r *StaticRegistry) IsTraderAdmin(account uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	// Administrators hold the trading role implicitly.
	return r.traderAdmins[account] || r.admins[account]
}
