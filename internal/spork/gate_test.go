package spork

import "testing"

func TestGate_DefaultsToActive(t *testing.T) {
	g := NewGate()
	if !g.Active("chainlocks") {
		t.Fatal("a feature with no override must default to active")
	}
}

func TestGate_ExplicitOverrideWins(t *testing.T) {
	g := NewGate()
	g.SetActive("chainlocks", false)
	if g.Active("chainlocks") {
		t.Fatal("an explicit SetActive(false) must be honored")
	}
	g.SetActive("chainlocks", true)
	if !g.Active("chainlocks") {
		t.Fatal("an explicit SetActive(true) must be honored")
	}
}

func TestGate_EnvironmentOverride(t *testing.T) {
	t.Setenv("BLOCKLOCK_SPORK_INSTANTSEND", "0")
	g := NewGate()
	if g.Active("instantsend") {
		t.Fatal("an environment override of 0 must disable the feature")
	}
}
