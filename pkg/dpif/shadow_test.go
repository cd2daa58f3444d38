package dpif

import (
	"path/filepath"
	"testing"

	"github.com/ovsdp/ovsdp/pkg/flowkey"
	"github.com/ovsdp/ovsdp/pkg/vport"
)

func TestFlowShadowAddFindDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow_table")
	s, err := CreateFlowShadow(path, 4)
	if err != nil {
		t.Fatalf("CreateFlowShadow() error = %v", err)
	}
	defer s.Close()

	key := flowkey.Key{InPort: 1, EtherType: 0x0800}
	if !s.Add(key, 0xdeadbeef) {
		t.Fatal("Add() failed")
	}
	if !s.Add(flowkey.Key{InPort: 2}, 0x1) {
		t.Fatal("second Add() failed")
	}

	handle, ok := s.Find(key)
	if !ok || handle != 0xdeadbeef {
		t.Fatalf("Find() = %d,%v want 0xdeadbeef,true", handle, ok)
	}

	if !s.Delete(key) {
		t.Fatal("Delete() failed")
	}
	if _, ok := s.Find(key); ok {
		t.Error("Find() found a deleted key")
	}
}

func TestFlowShadowAddDuplicateFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow_table")
	s, _ := CreateFlowShadow(path, 4)
	defer s.Close()

	key := flowkey.Key{InPort: 1}
	s.Add(key, 1)
	if s.Add(key, 2) {
		t.Error("Add() duplicate key succeeded")
	}
}

func TestFlowShadowFullReturnsFalse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow_table")
	s, _ := CreateFlowShadow(path, 1)
	defer s.Close()

	s.Add(flowkey.Key{InPort: 1}, 1)
	if s.Add(flowkey.Key{InPort: 2}, 2) {
		t.Error("Add() on full shadow succeeded")
	}
}

func TestFlowShadowReopenSurvivesProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow_table")
	s, _ := CreateFlowShadow(path, 4)
	key := flowkey.Key{InPort: 7, NWSrc: 0x0a000001}
	s.Add(key, 42)
	s.Close()

	reopened, err := OpenFlowShadow(path, 4)
	if err != nil {
		t.Fatalf("OpenFlowShadow() error = %v", err)
	}
	defer reopened.Close()

	handle, ok := reopened.Find(key)
	if !ok || handle != 42 {
		t.Fatalf("Find() after reopen = %d,%v want 42,true", handle, ok)
	}
}

func TestOpenRejectsWrongMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vport_table")
	s, _ := CreateVportShadow(path, 4)
	s.Close()

	if _, err := OpenFlowShadow(path, 4); err == nil {
		t.Error("OpenFlowShadow() on a vport-shadow file succeeded, want magic mismatch error")
	}
}

func TestVportShadowRecordAndForget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vport_table")
	s, err := CreateVportShadow(path, 8)
	if err != nil {
		t.Fatalf("CreateVportShadow() error = %v", err)
	}
	defer s.Close()

	s.Record(3, 1, vport.Client, "cl0")

	lcore, typ, name, inUse := s.Lookup(3)
	if !inUse || lcore != 1 || typ != vport.Client || name != "cl0" {
		t.Fatalf("Lookup() = %d,%v,%q,%v", lcore, typ, name, inUse)
	}

	s.Forget(3)
	_, _, name2, inUse2 := s.Lookup(3)
	if inUse2 {
		t.Error("Forget() left in_use set")
	}
	if name2 != "cl0" {
		t.Errorf("name after Forget() = %q, want preserved %q", name2, "cl0")
	}
}
