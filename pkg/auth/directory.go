package auth

import "sync"

// MemoryDirectory maps user IDs to the role their last verified token
// carried. It backs Checker.Resolve in deployments without a separate
// user service.
type MemoryDirectory struct {
	mu    sync.RWMutex
	roles map[string]Role
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{roles: make(map[string]Role)}
}

func (d *MemoryDirectory) Record(userID string, role Role) {
	if userID == "" || !role.IsValid() {
		return
	}
	d.mu.Lock()
	d.roles[userID] = role
	d.mu.Unlock()
}

// Resolve returns the last recorded role for the user, or PUBLIC when
// the user has never presented a token.
func (d *MemoryDirectory) Resolve(userID string) Role {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if role, ok := d.roles[userID]; ok {
		return role
	}
	return RolePublic
}
