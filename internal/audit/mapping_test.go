package audit

import "testing"

func TestParseRoute(t *testing.T) {
	tests := []struct {
		method, path string
		want         ActionResource
	}{
		{"POST", "/auth/login", ActionResource{Action: "login", Resource: "session"}},
		{"POST", "/auth/logout", ActionResource{Action: "logout", Resource: "session"}},
		{"GET", "/internal/sessions/0b51a3e2-9a71-4a8e-b315-7d6e9f1c2a01", ActionResource{Action: "get", Resource: "session"}},
		{"GET", "/internal/users/u-1/settings", ActionResource{Action: "get", Resource: "setting"}},
		{"PUT", "/internal/users/u-1/plan", ActionResource{Action: "update", Resource: "plan"}},
		{"DELETE", "/internal/sessions/abc123", ActionResource{Action: "delete", Resource: "session"}},
		{"GET", "/", ActionResource{Action: "get", Resource: "unknown"}},
	}
	for _, tt := range tests {
		got := ParseRoute(tt.method, tt.path)
		if got != tt.want {
			t.Errorf("ParseRoute(%s %s) = %+v, want %+v", tt.method, tt.path, got, tt.want)
		}
	}
}
