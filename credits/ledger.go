// Package credits is the credit ledger: a balance debited per generated
// image, an unlimited (pro) flag, and the purchasable packs. Every mutation
// is persisted; persistence failures never roll back the in-memory state.
package credits

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"alterego/logging"
	"alterego/store"

	"go.uber.org/zap"
)

// DefaultStartingCredits is the balance of a fresh install.
const DefaultStartingCredits = 18

// persistTimeout bounds a single store write.
const persistTimeout = 5 * time.Second

// Pack identifies a purchasable product.
type Pack string

const (
	PackCredits30  Pack = "credits_30"
	PackCredits100 Pack = "credits_100"
	PackCredits500 Pack = "credits_500"
	PackProMonthly Pack = "pro_monthly"
)

var packAmounts = map[Pack]int{
	PackCredits30:  30,
	PackCredits100: 100,
	PackCredits500: 500,
}

// Packs lists every known pack in display order.
func Packs() []Pack {
	return []Pack{PackCredits30, PackCredits100, PackCredits500, PackProMonthly}
}

// ErrUnknownPack is returned by AddPack for unrecognised product ids.
var ErrUnknownPack = errors.New("credits: unknown pack")

// State is a point-in-time view of the ledger.
type State struct {
	Balance   int  `json:"balance"`
	Unlimited bool `json:"unlimited"`
}

// Config configures a Ledger.
type Config struct {
	// StartingCredits is used when no balance is stored (default 18)
	StartingCredits int
	// OnPersistError is called, outside the lock, for each failed write (optional)
	OnPersistError func(key string, err error)
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu        sync.Mutex
	store     store.Store
	logger    *logging.Logger
	onErr     func(key string, err error)
	balance   int
	unlimited bool
	firstRun  bool
}

// NewLedger hydrates a ledger from s. A missing or unparsable balance
// starts at Config.StartingCredits; a missing or unparsable flag is false.
func NewLedger(ctx context.Context, s store.Store, logger *logging.Logger, cfg Config) *Ledger {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.StartingCredits <= 0 {
		cfg.StartingCredits = DefaultStartingCredits
	}
	l := &Ledger{
		store:   s,
		logger:  logger.Named("credits"),
		onErr:   cfg.OnPersistError,
		balance: cfg.StartingCredits,
	}

	var balance int
	ok, err := store.GetJSON(ctx, s, store.KeyCredits, &balance)
	switch {
	case err != nil:
		l.logger.Warn("Stored credit balance unreadable, using default",
			zap.Int("default", cfg.StartingCredits), zap.Error(err))
	case !ok:
		l.firstRun = true
	case balance < 0:
		l.logger.Warn("Stored credit balance negative, using default", zap.Int("stored", balance))
	default:
		l.balance = balance
	}

	var pro bool
	if ok, err := store.GetJSON(ctx, s, store.KeyPro, &pro); err != nil {
		l.logger.Warn("Stored pro flag unreadable, assuming false", zap.Error(err))
	} else if ok {
		l.unlimited = pro
	}

	l.logger.Debug("Credit ledger hydrated",
		zap.Int("balance", l.balance),
		zap.Bool("unlimited", l.unlimited),
		zap.Bool("first_run", l.firstRun))
	return l
}

// CanAfford reports unlimited || balance >= cost.
func (l *Ledger) CanAfford(cost int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unlimited || l.balance >= cost
}

// Debit subtracts cost without re-checking affordability. Callers check
// CanAfford first, or use TryDebit.
func (l *Ledger) Debit(cost int) {
	l.mutate(func() bool {
		if l.unlimited {
			return false
		}
		l.balance -= cost
		return true
	})
}

// Credit adds amount. Refunds go through here.
func (l *Ledger) Credit(amount int) {
	l.mutate(func() bool {
		if l.unlimited {
			return false
		}
		l.balance += amount
		return true
	})
}

// TryDebit debits cost only if it is affordable, as one atomic step.
func (l *Ledger) TryDebit(cost int) bool {
	_, ok := l.Charge(cost)
	return ok
}

// Charge is TryDebit that also reports how much was taken: cost for a
// limited ledger, zero when unlimited. Refunds credit back charged, never
// the nominal cost.
func (l *Ledger) Charge(cost int) (charged int, ok bool) {
	l.mutate(func() bool {
		if l.unlimited {
			ok = true
			return false
		}
		if l.balance < cost {
			return false
		}
		l.balance -= cost
		charged, ok = cost, true
		return true
	})
	return charged, ok
}

// Balance returns the current balance. It is meaningless while unlimited.
func (l *Ledger) Balance() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// IsUnlimited reports the pro flag.
func (l *Ledger) IsUnlimited() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unlimited
}

// State returns balance and flag together.
func (l *Ledger) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return State{Balance: l.balance, Unlimited: l.unlimited}
}

// SetUnlimited sets the pro flag.
func (l *Ledger) SetUnlimited(on bool) {
	l.mutate(func() bool {
		l.unlimited = on
		return true
	})
}

// AddPack applies a purchased pack: credit packs add to the balance,
// pro_monthly turns on unlimited.
func (l *Ledger) AddPack(p Pack) error {
	if p == PackProMonthly {
		l.SetUnlimited(true)
		l.logger.Info("Pro subscription enabled")
		return nil
	}
	amount, ok := packAmounts[p]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPack, p)
	}
	l.mutate(func() bool {
		l.balance += amount
		return true
	})
	l.logger.Info("Credit pack added", zap.String("pack", string(p)), zap.Int("amount", amount))
	return nil
}

// FirstRun reports whether no balance was stored at hydrate time.
func (l *Ledger) FirstRun() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.firstRun
}

// ConsumeWelcome returns true exactly once per store, the first time it is
// called after a fresh install, so the surface can greet the user.
func (l *Ledger) ConsumeWelcome(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	var welcomed bool
	if ok, err := store.GetJSON(ctx, l.store, store.KeyWelcomed, &welcomed); err == nil && ok && welcomed {
		return false
	}
	if err := store.PutJSON(ctx, l.store, store.KeyWelcomed, true); err != nil {
		l.logger.Warn("Failed to persist welcome flag", zap.Error(err))
	}
	return true
}

// mutate applies fn under the lock and, if it changed anything, persists
// the new state before releasing it so writes land in mutation order.
func (l *Ledger) mutate(fn func() bool) {
	var failures []persistFailure

	l.mu.Lock()
	if fn() {
		failures = l.persistLocked()
	}
	l.mu.Unlock()

	for _, f := range failures {
		l.logger.Error("Failed to persist credits", zap.String("key", f.key), zap.Error(f.err))
		if l.onErr != nil {
			l.onErr(f.key, f.err)
		}
	}
}

type persistFailure struct {
	key string
	err error
}

func (l *Ledger) persistLocked() []persistFailure {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	var failures []persistFailure
	if err := store.PutJSON(ctx, l.store, store.KeyCredits, l.balance); err != nil {
		failures = append(failures, persistFailure{store.KeyCredits, err})
	}
	if err := store.PutJSON(ctx, l.store, store.KeyPro, l.unlimited); err != nil {
		failures = append(failures, persistFailure{store.KeyPro, err})
	}
	return failures
}
