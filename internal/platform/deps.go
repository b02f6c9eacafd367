package platform

import (
	"os/exec"
	"strings"
)

// Dependency is one external executable the service shells out to.
type Dependency struct {
	Name      string `json:"name"`
	Path      string `json:"path,omitempty"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// CheckDependencies resolves each binary on PATH. Binaries given as paths are
// checked directly.
func CheckDependencies(binaries ...string) []Dependency {
	out := make([]Dependency, 0, len(binaries))
	for _, bin := range binaries {
		name := strings.TrimSpace(bin)
		if name == "" {
			continue
		}
		dep := Dependency{Name: name}
		path, err := exec.LookPath(name)
		if err != nil {
			dep.Error = err.Error()
		} else {
			dep.Path = path
			dep.Available = true
		}
		out = append(out, dep)
	}
	return out
}

// AllAvailable reports whether every dependency resolved
func AllAvailable(deps []Dependency) bool {
	for _, d := range deps {
		if !d.Available {
			return false
		}
	}
	return true
}
