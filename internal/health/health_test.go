package health

import (
	"sync"
	"testing"
)

func TestEmptyBoardIsUnknown(t *testing.T) {
	if got := NewBoard().Overall(); got != Unknown {
		t.Fatalf("Overall() on empty board = %q, want %q", got, Unknown)
	}
}

func TestOverallReturnsWorstStatus(t *testing.T) {
	b := NewBoard()
	b.Update("channel", Healthy, "")
	b.Update("driver", Degraded, "restart required")

	if got := b.Overall(); got != Degraded {
		t.Fatalf("Overall() = %q, want %q", got, Degraded)
	}

	b.Update("monitors", Unhealthy, "enumeration failed")
	if got := b.Overall(); got != Unhealthy {
		t.Fatalf("Overall() = %q, want %q", got, Unhealthy)
	}
}

func TestOverallUnknownIsWorstStatus(t *testing.T) {
	b := NewBoard()
	b.Update("a", Unhealthy, "")
	b.Update("b", Unknown, "")

	if got := b.Overall(); got != Unknown {
		t.Fatalf("Overall() = %q, want %q", got, Unknown)
	}
}

func TestUpdateReplacesCheck(t *testing.T) {
	b := NewBoard()
	b.Update("channel", Degraded, "timeout")
	b.Update("channel", Healthy, "")

	c, ok := b.Get("channel")
	if !ok || c.Status != Healthy || c.Message != "" {
		t.Fatalf("Get(channel) = %+v, %v", c, ok)
	}
	if len(b.All()) != 1 {
		t.Fatalf("All() = %v, want one check", b.All())
	}
}

func TestAllSortedByName(t *testing.T) {
	b := NewBoard()
	b.Update("monitors", Healthy, "")
	b.Update("channel", Healthy, "")
	b.Update("driver", Healthy, "")

	all := b.All()
	if all[0].Name != "channel" || all[1].Name != "driver" || all[2].Name != "monitors" {
		t.Fatalf("All() not sorted: %v", all)
	}
}

func TestStatusIsValid(t *testing.T) {
	for _, s := range []Status{Healthy, Degraded, Unhealthy, Unknown} {
		if !s.IsValid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if Status("broken").IsValid() {
		t.Error("unexpected status should be invalid")
	}
}

func TestUpdateStoresUndefinedStatusAsUnknown(t *testing.T) {
	b := NewBoard()
	b.Update("driver", Status("flaky"), "bad input")
	c, ok := b.Get("driver")
	if !ok {
		t.Fatal("driver check missing")
	}
	if c.Status != Unknown {
		t.Fatalf("status = %q, want unknown", c.Status)
	}
	if b.Overall() != Unknown {
		t.Fatalf("Overall() = %q, want unknown", b.Overall())
	}
}

func TestConcurrentUpdates(t *testing.T) {
	b := NewBoard()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Update("channel", Healthy, "")
			_ = b.Overall()
		}()
	}
	wg.Wait()
}
