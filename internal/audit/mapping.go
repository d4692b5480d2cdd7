package audit

import "strings"

// ActionResource holds action and resource derived from an HTTP route.
type ActionResource struct {
	Action   string
	Resource string
}

// Auth route overrides: audited as login/logout on resource "session".
const (
	routeLogin  = "POST /auth/login"
	routeLogout = "POST /auth/logout"
)

// ParseRoute returns action and resource for an HTTP method and path
// (e.g. GET /internal/sessions/abc). Action is a verb derived from the
// method; resource is the first meaningful path segment, singularized by
// trimming a trailing s. Login and logout are mapped explicitly.
func ParseRoute(method, path string) ActionResource {
	switch method + " " + normalizePath(path) {
	case routeLogin:
		return ActionResource{Action: "login", Resource: "session"}
	case routeLogout:
		return ActionResource{Action: "logout", Resource: "session"}
	}

	segs := strings.Split(strings.Trim(path, "/"), "/")
	resource := "unknown"
	for _, s := range segs {
		if s == "" || s == "internal" {
			continue
		}
		resource = strings.TrimSuffix(s, "s")
		break
	}
	// A trailing sub-resource names the thing acted on: /users/{id}/plan -> plan.
	if len(segs) >= 3 {
		if last := segs[len(segs)-1]; last != "" && !looksLikeID(last) {
			resource = strings.TrimSuffix(last, "s")
		}
	}
	return ActionResource{Action: methodToAction(method), Resource: resource}
}

func normalizePath(path string) string {
	return "/" + strings.Trim(path, "/")
}

func looksLikeID(seg string) bool {
	// UUIDs and numeric ids; route words are short and alphabetic.
	if len(seg) >= 16 {
		return true
	}
	for _, r := range seg {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

func methodToAction(method string) string {
	switch method {
	case "GET":
		return "get"
	case "POST":
		return "create"
	case "PUT", "PATCH":
		return "update"
	case "DELETE":
		return "delete"
	}
	return strings.ToLower(method)
}
