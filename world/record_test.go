package world

import (
	"testing"
)

func TestRecordTrust(t *testing.T) {
	r := NewRecord("Home", "owner-1", DefaultIcon, Settings{})

	if !r.CanAccess("owner-1") {
		t.Fatalf("owner should have access")
	}
	if r.CanAccess("guest-1") {
		t.Fatalf("guest should not have access yet")
	}

	if r.Trust("owner-1") {
		t.Errorf("trusting the owner should be a no-op")
	}
	if !r.Trust("guest-1") {
		t.Errorf("trusting a guest should change the list")
	}
	if r.Trust("guest-1") {
		t.Errorf("trusting twice should be a no-op")
	}
	if !r.CanAccess("guest-1") {
		t.Errorf("trusted guest should have access")
	}

	if !r.Untrust("guest-1") {
		t.Errorf("untrusting a trusted guest should change the list")
	}
	if r.Untrust("guest-1") {
		t.Errorf("untrusting twice should be a no-op")
	}
	if r.CanAccess("guest-1") {
		t.Errorf("untrusted guest should not have access")
	}
}

func TestRecordSpawnPoint(t *testing.T) {
	r := NewRecord("Home", "owner-1", DefaultIcon, Settings{})

	if r.SetSpawnPoint(SpawnPoint{World: "wm_other", X: 1}) {
		t.Fatalf("spawn point of another world should be rejected")
	}
	if r.SpawnPoint != nil {
		t.Fatalf("rejected spawn point should not stick")
	}

	if !r.SetSpawnPoint(SpawnPoint{World: r.InternalName, X: 1, Y: 64, Z: -3}) {
		t.Fatalf("spawn point of this world should be accepted")
	}
	if r.SpawnPoint == nil || r.SpawnPoint.Y != 64 {
		t.Fatalf("spawn point not recorded")
	}
}

func TestIsValidIcon(t *testing.T) {
	for _, icon := range []string{"GRASS_BLOCK", "DIAMOND", "OAK_LOG2"} {
		if !IsValidIcon(icon) {
			t.Errorf("%q should be a valid icon", icon)
		}
	}
	for _, icon := range []string{"", "grass_block", "GRASS BLOCK", "GRASS-BLOCK"} {
		if IsValidIcon(icon) {
			t.Errorf("%q should not be a valid icon", icon)
		}
	}
}
