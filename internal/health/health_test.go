package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRegistryEmpty(t *testing.T) {
	r := NewRegistry(0)
	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Fatal("empty registry should be healthy")
	}
	if len(statuses) != 0 {
		t.Fatalf("expected 0 statuses, got %d", len(statuses))
	}
}

func TestRegistryOneUnhealthy(t *testing.T) {
	r := NewRegistry(time.Second)
	r.Register("runner", Runner(func() bool { return false }))
	r.Register("circuits", Circuits(func() []string { return []string{"payments.getStarsTransactions"} }))

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Fatal("registry with unhealthy checker should report unhealthy")
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if !statuses[0].Healthy || statuses[0].Name != "query_runner" {
		t.Fatalf("unexpected first status %+v", statuses[0])
	}
	if statuses[1].Detail != "open: payments.getStarsTransactions" {
		t.Fatalf("unexpected detail %q", statuses[1].Detail)
	}
}

func TestRegistryFillsMissingName(t *testing.T) {
	r := NewRegistry(time.Second)
	r.Register("custom", func(context.Context) Status { return Status{Healthy: true} })

	_, statuses := r.CheckAll(context.Background())
	if statuses[0].Name != "custom" {
		t.Fatalf("expected registered name, got %q", statuses[0].Name)
	}
}

func TestRegistryTimeout(t *testing.T) {
	r := NewRegistry(10 * time.Millisecond)
	r.Register("slow", func(ctx context.Context) Status {
		<-ctx.Done()
		return Status{Name: "slow", Detail: ctx.Err().Error()}
	})

	start := time.Now()
	healthy, _ := r.CheckAll(context.Background())
	if healthy {
		t.Fatal("timed out check should be unhealthy")
	}
	if time.Since(start) > time.Second {
		t.Fatal("check was not bounded by the registry timeout")
	}
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

func TestDatabase(t *testing.T) {
	if s := Database(fakePinger{})(context.Background()); !s.Healthy {
		t.Fatalf("expected healthy, got %+v", s)
	}
	s := Database(fakePinger{err: errors.New("connection refused")})(context.Background())
	if s.Healthy || s.Detail != "connection refused" {
		t.Fatalf("expected unhealthy with detail, got %+v", s)
	}
}

func TestRunnerClosed(t *testing.T) {
	s := Runner(func() bool { return true })(context.Background())
	if s.Healthy || s.Detail != "closed" {
		t.Fatalf("expected closed runner to be unhealthy, got %+v", s)
	}
}

func TestRegistryConcurrentRegisterAndCheck(t *testing.T) {
	r := NewRegistry(time.Second)
	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Register("checker", func(_ context.Context) Status {
				return Status{Name: "checker", Healthy: true}
			})
		}()
	}
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.CheckAll(context.Background())
		}()
	}

	wg.Wait()
}
