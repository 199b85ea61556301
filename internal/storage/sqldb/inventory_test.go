package sqldb

import (
	"context"
	"errors"
	"testing"

	"github.com/chathuwa-whiz/schoolbus/internal/models"
	"github.com/chathuwa-whiz/schoolbus/pkg/response"
)

func TestOwnershipLookups(t *testing.T) {
	s := newTestStorage(t)
	seedRoute(t, s)
	ctx := context.Background()

	child, err := s.ChildOfParent(ctx, "child-1", "parent-1")
	if err != nil {
		t.Fatalf("ChildOfParent: %v", err)
	}
	if child.Name() != "Amal Perera" || child.PickupLocation != "12 Lake Rd" {
		t.Errorf("unexpected child %+v", child)
	}

	if _, err := s.ChildOfParent(ctx, "child-1", "parent-2"); !errors.Is(err, response.ErrNotFound) {
		t.Errorf("foreign parent: err = %v", err)
	}

	if _, err := s.ChildOfDriver(ctx, "child-2", "driver-1"); err != nil {
		t.Errorf("ChildOfDriver: %v", err)
	}
	if _, err := s.ChildOfDriver(ctx, "child-2", "driver-2"); !errors.Is(err, response.ErrNotFound) {
		t.Errorf("foreign driver: err = %v", err)
	}

	ok, err := s.BusOfDriver(ctx, "bus-1", "driver-1")
	if err != nil || !ok {
		t.Errorf("BusOfDriver = %v, %v", ok, err)
	}
	ok, err = s.BusOfDriver(ctx, "bus-1", "driver-2")
	if err != nil || ok {
		t.Errorf("BusOfDriver foreign = %v, %v", ok, err)
	}

	bus, err := s.BusOfChild(ctx, "child-1")
	if err != nil || bus != "bus-1" {
		t.Errorf("BusOfChild = %q, %v", bus, err)
	}
}

func TestBusOfChildWithoutRoute(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if err := s.InsertChild(ctx, models.Child{ID: "child-9", ParentID: "parent-9", FirstName: "Chen"}); err != nil {
		t.Fatal(err)
	}

	if _, err := s.BusOfChild(ctx, "child-9"); !errors.Is(err, response.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestInsertDuplicateIsConflict(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if err := s.InsertBus(ctx, models.Bus{ID: "bus-1", BusNumber: "NB-1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertBus(ctx, models.Bus{ID: "bus-1", BusNumber: "NB-2"}); !errors.Is(err, response.ErrConflict) {
		t.Fatalf("err = %v", err)
	}
}
