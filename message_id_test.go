package saga

import "testing"

// renamedMsg marshals exactly like testMsg but reports another type.
type renamedMsg struct{ testMsg }

func (renamedMsg) MessageType() string { return "Renamed" }

func TestMessageID(t *testing.T) {
	a, err := MessageID(msg("Reserve", "o-1"))
	if err != nil {
		t.Fatalf("MessageID: %v", err)
	}
	again, _ := MessageID(msg("Reserve", "o-1"))
	if a != again {
		t.Errorf("ids differ for equal messages: %s / %s", a, again)
	}

	other, _ := MessageID(msg("Reserve", "o-2"))
	if a == other {
		t.Error("different payloads share an id")
	}

	// The type takes part in the id even when the payload matches.
	renamed, _ := MessageID(renamedMsg{msg("Reserve", "o-1")})
	if a == renamed {
		t.Error("different types share an id")
	}
}
