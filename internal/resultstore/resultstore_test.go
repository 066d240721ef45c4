package resultstore

import (
	"path/filepath"
	"testing"

	"github.com/anodyne74/linspect/internal/busmodel"
)

func testModel() *busmodel.BusModel {
	return &busmodel.BusModel{
		LIN: &busmodel.BusModelLIN{
			MasterName: "M",
			Frames:     map[string]*busmodel.LinFrame{"F1": {Name: "F1", ID: 1, Publisher: "M", DLC: 2}},
			FramesByID: map[int]*busmodel.LinFrame{1: {Name: "F1", ID: 1, Publisher: "M", DLC: 2}},
			Schedules:  map[string]*busmodel.ScheduleTable{},
		},
		CAN: map[busmodel.Channel]*busmodel.BusModelCAN{},
	}
}

func TestPutThenGetRoundTrips(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	model := testModel()
	hash := HashSources([]byte("ldf contents"))
	if err := store.Put(hash, model); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := store.Get(hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if got.LIN.MasterName != "M" || got.LIN.FramesByID[1].Name != "F1" {
		t.Errorf("round-tripped model mismatch: %+v", got.LIN)
	}
}

func TestGetMissReturnsFalse(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	_, ok, err := store.Get(HashSources([]byte("never stored")))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Errorf("expected cache miss")
	}
}

func TestHashSourcesIsOrderSensitive(t *testing.T) {
	a := HashSources([]byte("x"), []byte("y"))
	b := HashSources([]byte("y"), []byte("x"))
	if a == b {
		t.Errorf("expected different hashes for reordered sources")
	}
}

func TestPutOverwritesExistingEntry(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	hash := HashSources([]byte("v1"))
	m1 := testModel()
	m1.LIN.MasterName = "First"
	if err := store.Put(hash, m1); err != nil {
		t.Fatalf("Put 1: %v", err)
	}

	m2 := testModel()
	m2.LIN.MasterName = "Second"
	if err := store.Put(hash, m2); err != nil {
		t.Fatalf("Put 2: %v", err)
	}

	got, ok, err := store.Get(hash)
	if err != nil || !ok {
		t.Fatalf("Get after overwrite: ok=%v err=%v", ok, err)
	}
	if got.LIN.MasterName != "Second" {
		t.Errorf("expected overwritten model, got master=%s", got.LIN.MasterName)
	}
}
