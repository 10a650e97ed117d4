package credits

import (
	"context"
	"errors"
	"sync"
	"testing"

	"alterego/logging"
	"alterego/store"

	"go.uber.org/zap/zapcore"
)

func newLedger(t *testing.T, s store.Store) *Ledger {
	t.Helper()
	return NewLedger(context.Background(), s, logging.NewNop(), Config{})
}

func TestNewLedger_Hydrate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		credits  string
		pro      string
		want     State
		firstRun bool
	}{
		{"fresh install", "", "", State{Balance: 18}, true},
		{"stored values", "7", "true", State{Balance: 7, Unlimited: true}, false},
		{"zero balance", "0", "false", State{Balance: 0}, false},
		{"corrupt balance", "seven", "", State{Balance: 18}, false},
		{"negative balance", "-4", "", State{Balance: 18}, false},
		{"corrupt flag", "5", "maybe", State{Balance: 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemoryStore()
			if tt.credits != "" {
				s.Put(ctx, store.KeyCredits, []byte(tt.credits))
			}
			if tt.pro != "" {
				s.Put(ctx, store.KeyPro, []byte(tt.pro))
			}
			l := newLedger(t, s)
			if got := l.State(); got != tt.want {
				t.Errorf("State() = %+v, want %+v", got, tt.want)
			}
			if l.FirstRun() != tt.firstRun {
				t.Errorf("FirstRun() = %v, want %v", l.FirstRun(), tt.firstRun)
			}
		})
	}
}

func TestLedger_StartingCredits(t *testing.T) {
	l := NewLedger(context.Background(), store.NewMemoryStore(), nil, Config{StartingCredits: 3})
	if l.Balance() != 3 {
		t.Errorf("Balance() = %d, want 3", l.Balance())
	}
}

func TestLedger_DebitCreditPersist(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	l := newLedger(t, s)

	if !l.CanAfford(18) || l.CanAfford(19) {
		t.Fatal("CanAfford boundary wrong")
	}
	l.Debit(5)
	l.Credit(2)
	if l.Balance() != 15 {
		t.Errorf("Balance() = %d, want 15", l.Balance())
	}

	// A second ledger over the same store sees the persisted value.
	if got := newLedger(t, s).Balance(); got != 15 {
		t.Errorf("rehydrated Balance() = %d, want 15", got)
	}
	var pro bool
	if ok, err := store.GetJSON(ctx, s, store.KeyPro, &pro); !ok || err != nil || pro {
		t.Errorf("isPro persisted = %v, %v, %v", pro, ok, err)
	}
}

func TestLedger_Unlimited(t *testing.T) {
	l := newLedger(t, store.NewMemoryStore())
	l.SetUnlimited(true)

	l.Debit(100)
	l.Credit(3)
	if l.Balance() != 18 {
		t.Errorf("Balance() changed while unlimited: %d", l.Balance())
	}
	if !l.CanAfford(1000) || !l.TryDebit(1000) {
		t.Error("unlimited ledger refused a cost")
	}

	l.SetUnlimited(false)
	if l.CanAfford(19) {
		t.Error("CanAfford(19) after unlimited off = true")
	}
}

func TestLedger_TryDebit(t *testing.T) {
	l := newLedger(t, store.NewMemoryStore())
	if l.TryDebit(19) {
		t.Fatal("TryDebit(19) on 18 = true")
	}
	if l.Balance() != 18 {
		t.Fatalf("refused TryDebit changed balance to %d", l.Balance())
	}
	if !l.TryDebit(18) || l.Balance() != 0 {
		t.Fatalf("TryDebit(18) left balance %d", l.Balance())
	}
	if l.TryDebit(1) {
		t.Error("TryDebit(1) on 0 = true")
	}
}

func TestLedger_Charge(t *testing.T) {
	l := newLedger(t, store.NewMemoryStore())
	if charged, ok := l.Charge(3); !ok || charged != 3 {
		t.Errorf("Charge(3) = %d, %v; want 3, true", charged, ok)
	}

	l.SetUnlimited(true)
	if charged, ok := l.Charge(100); !ok || charged != 0 {
		t.Errorf("Charge(100) while unlimited = %d, %v; want 0, true", charged, ok)
	}
	l.SetUnlimited(false)
	if l.Balance() != 15 {
		t.Errorf("balance = %d, want 15", l.Balance())
	}
	if charged, ok := l.Charge(16); ok || charged != 0 {
		t.Errorf("Charge(16) on 15 = %d, %v; want 0, false", charged, ok)
	}
}

func TestLedger_TryDebitConcurrent(t *testing.T) {
	l := newLedger(t, store.NewMemoryStore())

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryDebit(1) {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 18 || l.Balance() != 0 {
		t.Errorf("granted = %d, balance = %d; want 18, 0", granted, l.Balance())
	}
}

func TestLedger_AddPack(t *testing.T) {
	l := newLedger(t, store.NewMemoryStore())

	for _, p := range []Pack{PackCredits30, PackCredits100, PackCredits500} {
		if err := l.AddPack(p); err != nil {
			t.Fatalf("AddPack(%s) error = %v", p, err)
		}
	}
	if l.Balance() != 18+30+100+500 {
		t.Errorf("Balance() = %d", l.Balance())
	}
	if err := l.AddPack("credits_7"); !errors.Is(err, ErrUnknownPack) {
		t.Errorf("AddPack(unknown) error = %v", err)
	}
	if err := l.AddPack(PackProMonthly); err != nil || !l.IsUnlimited() {
		t.Errorf("AddPack(pro) = %v, unlimited = %v", err, l.IsUnlimited())
	}
	if len(Packs()) != 4 {
		t.Errorf("Packs() = %v", Packs())
	}
}

func TestLedger_PersistFailureKeepsState(t *testing.T) {
	s := store.NewMemoryStore()
	logger, logs := logging.NewTestLogger(zapcore.ErrorLevel)

	var mu sync.Mutex
	var failedKeys []string
	l := NewLedger(context.Background(), s, logger, Config{
		OnPersistError: func(key string, err error) {
			mu.Lock()
			failedKeys = append(failedKeys, key)
			mu.Unlock()
		},
	})

	s.SetFailPut(errors.New("disk full"))
	l.Debit(4)

	if l.Balance() != 14 {
		t.Errorf("Balance() = %d, want 14 after failed persist", l.Balance())
	}
	if len(failedKeys) != 2 {
		t.Errorf("OnPersistError called for %v, want credits and isPro", failedKeys)
	}
	if logs.FilterMessage("Failed to persist credits").Len() != 2 {
		t.Errorf("expected 2 persist error logs, got %d", logs.Len())
	}
}

func TestLedger_ConsumeWelcome(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	if !newLedger(t, s).ConsumeWelcome(ctx) {
		t.Fatal("first ConsumeWelcome() = false")
	}
	l := newLedger(t, s)
	if l.ConsumeWelcome(ctx) {
		t.Error("ConsumeWelcome() after persist = true")
	}
}
