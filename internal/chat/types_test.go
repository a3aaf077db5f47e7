package chat

import "testing"

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{in: "user", want: RoleUser},
		{in: " Assistant ", want: RoleAssistant},
		{in: "SYSTEM", want: RoleSystem},
		{in: "tool", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseRole(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseRole(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseRole(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseRole(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	src := []Message{UserMessage("a"), AssistantMessage("b")}
	dst := Clone(src)
	dst[0].Content = "changed"
	if src[0].Content != "a" {
		t.Fatalf("Clone aliased the source slice")
	}
	if Clone(nil) != nil {
		t.Fatalf("Clone(nil) should be nil")
	}
}
