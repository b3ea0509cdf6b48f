package policy

import (
	"fmt"
)

var (
	// ErrUnknownPermission indicates a permission lookup failed because the code is not defined.
	ErrUnknownPermission = fmt.Errorf("policy: unknown permission")
	// ErrCircularDependency signals that a dependency graph contains a cycle.
	ErrCircularDependency = fmt.Errorf("policy: circular dependency detected")
	// ErrSelfDependency signals a permission declaring itself as a dependency.
	ErrSelfDependency = fmt.Errorf("policy: permission cannot depend on itself")
)

// ValidateCatalog checks the declared catalog at definition time: every
// dependency must reference a defined permission, no permission may depend on
// itself, and the dependency graph must be acyclic. Grant-time validation is
// the Validator's job; this guards the catalog itself.
func ValidateCatalog(defs []PermissionDef) error {
	byCode := make(map[string]PermissionDef, len(defs))
	for _, def := range defs {
		if _, exists := byCode[def.Code]; exists {
			return fmt.Errorf("policy: duplicate permission %q in catalog", def.Code)
		}
		byCode[def.Code] = def
	}

	for _, def := range defs {
		for _, dep := range def.DependsOn {
			if dep == def.Code {
				return fmt.Errorf("%w: %s", ErrSelfDependency, def.Code)
			}
			if _, ok := byCode[dep]; !ok {
				return fmt.Errorf("%w %q (required by %s)", ErrUnknownPermission, dep, def.Code)
			}
		}
	}

	visited := make(map[string]bool, len(defs))
	inStack := make(map[string]bool, len(defs))

	var walk func(code string) error
	walk = func(code string) error {
		if inStack[code] {
			return fmt.Errorf("%w at %s", ErrCircularDependency, code)
		}
		if visited[code] {
			return nil
		}

		inStack[code] = true
		for _, dep := range byCode[code].DependsOn {
			if err := walk(dep); err != nil {
				return err
			}
		}
		inStack[code] = false
		visited[code] = true
		return nil
	}

	for _, def := range defs {
		if err := walk(def.Code); err != nil {
			return err
		}
	}

	return nil
}
