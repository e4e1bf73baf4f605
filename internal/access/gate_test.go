package access

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"leasecheck/pkg/models"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestGate(t *testing.T, mode AdmissionMode) (*Gate, *MemoryStore, *clock) {
	t.Helper()
	store := NewMemoryStore()
	clk := newClock()
	gate := NewGate(store, store, Config{LeaseLimit: 5, Mode: mode, BypassUsers: []string{"tester"}, Now: clk.Now})
	return gate, store, clk
}

func grant(t *testing.T, g *Gate, user string, plan models.Plan) models.AccessGrant {
	t.Helper()
	got, err := g.GrantAccess(context.Background(), GrantRequest{UserID: user, Plan: plan})
	if err != nil {
		t.Fatalf("GrantAccess() error = %v", err)
	}
	return got
}

func TestFreeTierIsOneShot(t *testing.T) {
	gate, _, _ := newTestGate(t, ModeReserve)
	ctx := context.Background()

	d, err := gate.Admit(ctx, "alice", "a1")
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if !d.Allowed || d.Tier != models.TierFree {
		t.Fatalf("first admit = %+v, want free admission", d)
	}

	if err := gate.Release(ctx, d, "alice", "a1"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	d, err = gate.Admit(ctx, "alice", "a2")
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if d.Allowed || d.Reason != ReasonNoAccess {
		t.Errorf("second admit = %+v, want no_access", d)
	}
}

func TestLeaseLimitReached(t *testing.T) {
	for _, mode := range []AdmissionMode{ModeReserve, ModeCheckThenAct} {
		t.Run(string(mode), func(t *testing.T) {
			gate, store, _ := newTestGate(t, mode)
			ctx := context.Background()
			grant(t, gate, "bob", models.PlanMonthly)
			for i := range 5 {
				store.Append(ctx, "bob", fmt.Sprintf("old%d", i))
			}

			d, err := gate.Admit(ctx, "bob", "new")
			if err != nil {
				t.Fatalf("Admit() error = %v", err)
			}
			if d.Allowed || d.Reason != ReasonLeaseLimitReached {
				t.Errorf("Admit() = %+v, want lease_limit_reached", d)
			}

			used, _ := store.Used(ctx, "bob")
			if used {
				t.Error("free tier was consulted for an exhausted grant")
			}
		})
	}
}

func TestPaidAdmissionModes(t *testing.T) {
	ctx := context.Background()

	t.Run("reserve", func(t *testing.T) {
		gate, store, _ := newTestGate(t, ModeReserve)
		grant(t, gate, "carol", models.PlanYearly)

		d, err := gate.Admit(ctx, "carol", "r1")
		if err != nil {
			t.Fatal(err)
		}
		if !d.Allowed || !d.Reserved || d.Tier != models.TierPaid || d.Remaining != 4 {
			t.Fatalf("Admit() = %+v", d)
		}
		g, _ := store.Get(ctx, "carol")
		if !g.HasAnalysis("r1") {
			t.Error("reservation not recorded at admission")
		}

		if err := gate.Release(ctx, d, "carol", "r1"); err != nil {
			t.Fatal(err)
		}
		g, _ = store.Get(ctx, "carol")
		if g.HasAnalysis("r1") {
			t.Error("Release() did not remove the reservation")
		}
	})

	t.Run("check-then-act", func(t *testing.T) {
		gate, store, _ := newTestGate(t, ModeCheckThenAct)
		grant(t, gate, "dave", models.PlanYearly)

		d, err := gate.Admit(ctx, "dave", "c1")
		if err != nil {
			t.Fatal(err)
		}
		if !d.Allowed || d.Reserved {
			t.Fatalf("Admit() = %+v", d)
		}
		g, _ := store.Get(ctx, "dave")
		if len(g.AnalysisIDs) != 0 {
			t.Errorf("analysis ids = %v before commit", g.AnalysisIDs)
		}

		if err := gate.Commit(ctx, d, "dave", "c1"); err != nil {
			t.Fatal(err)
		}
		g, _ = store.Get(ctx, "dave")
		if !g.HasAnalysis("c1") {
			t.Error("Commit() did not append the id")
		}
	})
}

func TestReserveHoldsCeilingUnderConcurrency(t *testing.T) {
	gate, store, _ := newTestGate(t, ModeReserve)
	ctx := context.Background()
	grant(t, gate, "erin", models.PlanMonthly)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := gate.Admit(ctx, "erin", fmt.Sprintf("id%d", i))
			if err != nil {
				t.Error(err)
				return
			}
			if d.Allowed && d.Tier == models.TierPaid {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 5 {
		t.Errorf("paid admissions = %d, want 5", admitted)
	}
	g, _ := store.Get(ctx, "erin")
	if len(g.AnalysisIDs) != 5 {
		t.Errorf("analysis ids = %d, want 5", len(g.AnalysisIDs))
	}
}

func TestExpiredGrantFallsBackToFreeTier(t *testing.T) {
	gate, _, clk := newTestGate(t, ModeReserve)
	ctx := context.Background()
	grant(t, gate, "frank", models.PlanMonthly)
	clk.Advance(31 * 24 * time.Hour)

	d, err := gate.Admit(ctx, "frank", "x")
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed || d.Tier != models.TierFree {
		t.Errorf("Admit() = %+v, want free admission", d)
	}
}

func TestRenewalPreservesAnalyses(t *testing.T) {
	gate, _, clk := newTestGate(t, ModeReserve)
	ctx := context.Background()
	first := grant(t, gate, "gina", models.PlanMonthly)
	if first.ExpiresAt.Sub(first.PaidAt) != 30*24*time.Hour {
		t.Errorf("monthly duration = %v", first.ExpiresAt.Sub(first.PaidAt))
	}
	for _, id := range []string{"a", "b"} {
		if _, err := gate.Admit(ctx, "gina", id); err != nil {
			t.Fatal(err)
		}
	}

	clk.Advance(10 * 24 * time.Hour)
	renewed := grant(t, gate, "gina", models.PlanYearly)
	if len(renewed.AnalysisIDs) != 2 {
		t.Errorf("analysis ids after renewal = %v", renewed.AnalysisIDs)
	}
	if !renewed.ExpiresAt.Equal(clk.Now().Add(365 * 24 * time.Hour)) {
		t.Errorf("expires_at = %v", renewed.ExpiresAt)
	}
}

func TestBypassUser(t *testing.T) {
	gate, store, _ := newTestGate(t, ModeReserve)
	ctx := context.Background()
	for i := range 3 {
		d, err := gate.Admit(ctx, "tester", fmt.Sprint(i))
		if err != nil {
			t.Fatal(err)
		}
		if !d.Allowed || d.Tier != models.TierBypass {
			t.Errorf("Admit() = %+v, want bypass", d)
		}
	}
	if used, _ := store.Used(ctx, "tester"); used {
		t.Error("bypass user consumed the free analysis")
	}
}

func TestGrantValidation(t *testing.T) {
	gate, _, _ := newTestGate(t, ModeReserve)
	ctx := context.Background()

	if _, err := gate.GrantAccess(ctx, GrantRequest{Plan: models.PlanMonthly}); !errors.Is(err, ErrInvalidUser) {
		t.Errorf("empty user error = %v", err)
	}
	if _, err := gate.GrantAccess(ctx, GrantRequest{UserID: "u", Plan: "weekly"}); !errors.Is(err, ErrInvalidPlan) {
		t.Errorf("bad plan error = %v", err)
	}
	if _, err := gate.Admit(ctx, "", "x"); !errors.Is(err, ErrInvalidUser) {
		t.Errorf("Admit empty user error = %v", err)
	}
}

func TestStatus(t *testing.T) {
	gate, _, _ := newTestGate(t, ModeReserve)
	ctx := context.Background()

	st, err := gate.Status(ctx, "user_hank@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if st.HasAccess || !st.HasFreeAnalysisAvailable || !st.IsLoggedIn {
		t.Errorf("initial status = %+v", st)
	}

	grant(t, gate, "user_hank@example.com", models.PlanMonthly)
	gate.Admit(ctx, "user_hank@example.com", "a")

	st, err = gate.Status(ctx, "user_hank@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if !st.HasAccess || !st.HasActivePlan || st.AnalysesCount != 1 || st.RemainingAnalyses != 4 {
		t.Errorf("paid status = %+v", st)
	}
	if st.DaysRemaining != 30 || st.Plan != models.PlanMonthly || st.ExpiresAt == nil {
		t.Errorf("paid status = %+v", st)
	}

	ok, err := gate.HasActiveAccess(ctx, "anon")
	if err != nil || ok {
		t.Errorf("HasActiveAccess(anon) = %v, %v", ok, err)
	}
}

func TestParseAdmissionMode(t *testing.T) {
	tests := []struct {
		in      string
		want    AdmissionMode
		wantErr bool
	}{
		{"", ModeReserve, false},
		{"reserve", ModeReserve, false},
		{"Check-Then-Act", ModeCheckThenAct, false},
		{"optimistic", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAdmissionMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseAdmissionMode(%q) = %q, %v", tt.in, got, err)
		}
	}
}
