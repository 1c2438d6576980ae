package main

import (
	"testing"
)

func TestParseRoleMappings(t *testing.T) {
	mappings, err := ParseRoleMappings("🔵 -> <@&700>, 🟢 -> <@&701>")
	if err != nil {
		t.Fatalf("ParseRoleMappings: %v", err)
	}
	if len(mappings) != 2 {
		t.Fatalf("expected 2 mappings, got %d", len(mappings))
	}
	if mappings[0].Emoji != "🔵" || mappings[0].RoleID != 700 {
		t.Errorf("first mapping %+v", mappings[0])
	}
	if mappings[1].Emoji != "🟢" || mappings[1].RoleID != 701 {
		t.Errorf("second mapping %+v", mappings[1])
	}
}

func TestParseRoleMappingsDuplicateEmoji(t *testing.T) {
	mappings, err := ParseRoleMappings("🔵 -> <@&700>, 🔵 -> <@&701>")
	if err != nil {
		t.Fatalf("ParseRoleMappings: %v", err)
	}
	if len(mappings) != 1 {
		t.Fatalf("expected dedupe to keep one mapping, got %d", len(mappings))
	}
	if mappings[0].RoleID != 700 {
		t.Errorf("expected first occurrence to win, got role %s", mappings[0].RoleID)
	}
}

func TestParseRoleMappingsSkipsMalformed(t *testing.T) {
	mappings, err := ParseRoleMappings("garbage, 🔵 -> <@&700>, also -> no role")
	if err != nil {
		t.Fatalf("ParseRoleMappings: %v", err)
	}
	if len(mappings) != 1 || mappings[0].RoleID != 700 {
		t.Errorf("expected single valid mapping, got %+v", mappings)
	}
}

func TestParseRoleMappingsEmpty(t *testing.T) {
	for _, input := range []string{"", "   ", "nothing valid here", ","} {
		if _, err := ParseRoleMappings(input); err != ErrRoleMappingNotFound {
			t.Errorf("input %q: expected ErrRoleMappingNotFound, got %v", input, err)
		}
	}
}

func TestParseRoleMappingsTextEmoji(t *testing.T) {
	mappings, err := ParseRoleMappings("<:custom:12345> -> <@&702>")
	if err != nil {
		t.Fatalf("ParseRoleMappings: %v", err)
	}
	if len(mappings) != 1 || mappings[0].Emoji != "<:custom:12345>" {
		t.Errorf("custom emoji mapping %+v", mappings)
	}
}
