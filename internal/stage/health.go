package stage

import "strings"

// Health reports whether a stage handler can process items right now, e.g.
// whether its collaborator command resolves.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

func Healthy(name string) Health { return Health{Name: name, Ready: true} }

func Unhealthy(name, detail string) Health {
	return Health{Name: name, Detail: detail}
}

// Merge folds the health of several collaborators into one record for name.
// The result is ready only when every part is; details of unready parts are
// joined as "part: detail".
func Merge(name string, parts ...Health) Health {
	var problems []string
	for _, part := range parts {
		if part.Ready {
			continue
		}
		detail := part.Detail
		if detail == "" {
			detail = "not ready"
		}
		problems = append(problems, part.Name+": "+detail)
	}
	if len(problems) == 0 {
		return Healthy(name)
	}
	return Unhealthy(name, strings.Join(problems, "; "))
}
