package bus

import "fmt"

// ResolveOrder returns module names in an order that respects DependsOn
// declarations, via iterative topological sort — grounded on the teacher's
// system/core/dependency.go DependencyManager.ResolveOrder.
func ResolveOrder(reg *Registry) ([]string, error) {
	modules := reg.All()
	deps := make(map[string][]string, len(modules))
	for _, m := range modules {
		if d, ok := m.(DependsOn); ok {
			deps[m.Name()] = d.DependsOn()
		} else {
			deps[m.Name()] = nil
		}
	}

	for name, list := range deps {
		for _, dep := range list {
			if _, ok := deps[dep]; !ok {
				return nil, fmt.Errorf("module %q depends on unregistered module %q", name, dep)
			}
		}
	}

	resolved := make(map[string]bool, len(deps))
	var order []string

	for len(order) < len(deps) {
		progressed := false
		for _, name := range reg.Names() {
			if resolved[name] {
				continue
			}
			ready := true
			for _, dep := range deps[name] {
				if !resolved[dep] {
					ready = false
					break
				}
			}
			if ready {
				resolved[name] = true
				order = append(order, name)
				progressed = true
			}
		}
		if !progressed {
			return nil, fmt.Errorf("dependency cycle detected among unresolved modules")
		}
	}

	return order, nil
}
