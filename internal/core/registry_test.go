package core

import (
	"errors"
	"testing"
)

// registerTestProfile resets the registry to hold only testProfile.
func registerTestProfile(t *testing.T) Profile {
	t.Helper()
	Clear()
	t.Cleanup(Clear)

	p := testProfile()
	Register(p)
	return p
}

func TestRegistry(t *testing.T) {
	p := registerTestProfile(t)

	got, ok := Get(p.Key)
	if !ok || got.Collection != p.Collection {
		t.Fatalf("Get(%q) = (%+v, %v)", p.Key, got, ok)
	}
	if _, err := Lookup("missing"); !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("Lookup(missing) error = %v, want ErrUnknownProfile", err)
	}

	other := testProfile()
	other.Key = "another"
	Register(other)

	all := All()
	if len(all) != 2 || all[0].Key != "another" || all[1].Key != "test" {
		t.Errorf("All() keys = %v, want sorted [another test]", []string{all[0].Key, all[1].Key})
	}
}

func TestRegister_PanicsOnDuplicate(t *testing.T) {
	registerTestProfile(t)

	defer func() {
		if recover() == nil {
			t.Error("Register() of a duplicate key did not panic")
		}
	}()
	Register(testProfile())
}

func TestRegister_PanicsOnInvalidProfile(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	defer func() {
		if recover() == nil {
			t.Error("Register() of an invalid profile did not panic")
		}
	}()
	Register(Profile{Key: "broken"})
}
