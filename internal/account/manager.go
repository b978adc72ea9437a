package account

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jkaflik/brunt2mqtt/internal/discovery"
	"github.com/sirupsen/logrus"
)

type registration struct {
	account   *Account
	discovery *discovery.Service
}

// Manager owns the accounts and the discovery service registered for each.
type Manager struct {
	mu   sync.Mutex
	regs map[string]registration
}

func NewManager() *Manager {
	return &Manager{regs: map[string]registration{}}
}

// Register creates the account's discovery service and starts it.
// A previous registration under the same UID is stopped and replaced.
func (m *Manager) Register(ctx context.Context, acc *Account, interval time.Duration, listener discovery.Listener) *discovery.Service {
	svc := discovery.NewService(acc.Name(), acc.Session(), interval, listener)

	m.mu.Lock()
	prev, found := m.regs[acc.UID()]
	m.regs[acc.UID()] = registration{account: acc, discovery: svc}
	m.mu.Unlock()

	if found {
		logrus.Warnf("%s: replacing discovery registration", acc.Name())
		prev.discovery.Stop()
	}

	go svc.Run(ctx)
	logrus.Infof("%s: discovery every %s", acc.Name(), svc.Interval())

	return svc
}

func (m *Manager) Unregister(uid string) bool {
	m.mu.Lock()
	reg, found := m.regs[uid]
	delete(m.regs, uid)
	m.mu.Unlock()

	if found {
		reg.discovery.Stop()
	}
	return found
}

func (m *Manager) Account(uid string) (*Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, found := m.regs[uid]
	return reg.account, found
}

func (m *Manager) Discovery(uid string) (*discovery.Service, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, found := m.regs[uid]
	return reg.discovery, found
}

func (m *Manager) Accounts() []*Account {
	m.mu.Lock()
	defer m.mu.Unlock()

	accounts := make([]*Account, 0, len(m.regs))
	for _, reg := range m.regs {
		accounts = append(accounts, reg.account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].UID() < accounts[j].UID() })
	return accounts
}
