package policy

// CatalogVersion tracks the declarative policy catalog below. Bump it whenever
// definitions are added so operators can tell which seed a deployment carries.
// Seeding is additive-only: rows that already exist are never rewritten.
const CatalogVersion = 3

// PermissionDef declares a system permission.
type PermissionDef struct {
	Code        string
	Name        string
	Description string
	Module      string
	Level       int
	DependsOn   []string
}

// RoleDef declares a system role. Permissions lists permission codes; the
// single-element sentinel ["*"] marks a wildcard role that grants everything.
type RoleDef struct {
	Code        string
	Name        string
	Description string
	Level       int
	IsDefault   bool
	Permissions []string
}

// SystemPermissions returns the seeded permission catalog.
func SystemPermissions() []PermissionDef {
	return []PermissionDef{
		{Code: "intent:read", Name: "View intents", Module: "intent", Level: 10, Description: "Browse the intent catalog"},
		{Code: "intent:create", Name: "Create intents", Module: "intent", Level: 20, DependsOn: []string{"intent:read"}},
		{Code: "intent:update", Name: "Edit intents", Module: "intent", Level: 20, DependsOn: []string{"intent:read"}},
		{Code: "intent:delete", Name: "Delete intents", Module: "intent", Level: 30, DependsOn: []string{"intent:read", "intent:update"}},
		{Code: "intent:import", Name: "Import intents", Module: "intent", Level: 30, DependsOn: []string{"intent:read", "intent:create"}, Description: "Bulk import intents from CSV"},

		{Code: "category:read", Name: "View categories", Module: "category", Level: 10},
		{Code: "category:create", Name: "Create categories", Module: "category", Level: 20, DependsOn: []string{"category:read"}},
		{Code: "category:update", Name: "Edit categories", Module: "category", Level: 20, DependsOn: []string{"category:read"}},
		{Code: "category:delete", Name: "Delete categories", Module: "category", Level: 30, DependsOn: []string{"category:read", "category:update"}},

		{Code: "reply:read", Name: "View reply templates", Module: "reply", Level: 10},
		{Code: "reply:create", Name: "Create reply templates", Module: "reply", Level: 20, DependsOn: []string{"reply:read"}},
		{Code: "reply:update", Name: "Edit reply templates", Module: "reply", Level: 20, DependsOn: []string{"reply:read"}},
		{Code: "reply:delete", Name: "Delete reply templates", Module: "reply", Level: 30, DependsOn: []string{"reply:read", "reply:update"}},

		{Code: "user:read", Name: "View users", Module: "user", Level: 10},
		{Code: "user:create", Name: "Create users", Module: "user", Level: 20, DependsOn: []string{"user:read"}},
		{Code: "user:update", Name: "Edit users", Module: "user", Level: 20, DependsOn: []string{"user:read"}},
		{Code: "user:delete", Name: "Delete users", Module: "user", Level: 30, DependsOn: []string{"user:read", "user:update"}},

		{Code: "role:read", Name: "View roles", Module: "role", Level: 10},
		{Code: "role:create", Name: "Create roles", Module: "role", Level: 20, DependsOn: []string{"role:read"}},
		{Code: "role:update", Name: "Edit roles", Module: "role", Level: 20, DependsOn: []string{"role:read"}},
		{Code: "role:delete", Name: "Delete roles", Module: "role", Level: 30, DependsOn: []string{"role:read", "role:update"}},
		{Code: "role:assign", Name: "Assign roles", Module: "role", Level: 30, DependsOn: []string{"role:read", "user:read"}, Description: "Attach and detach user roles"},

		{Code: "audit:read", Name: "View audit log", Module: "audit", Level: 10},
		{Code: "audit:write", Name: "Record audit events", Module: "audit", Level: 20, Description: "Append operation records on behalf of other services"},
		{Code: "audit:export", Name: "Export audit log", Module: "audit", Level: 20, DependsOn: []string{"audit:read"}},
		{Code: "audit:detect", Name: "Run anomaly scans", Module: "audit", Level: 20, DependsOn: []string{"audit:read"}},
		{Code: "audit:cleanup", Name: "Prune audit log", Module: "audit", Level: 30, DependsOn: []string{"audit:read"}},
	}
}

// SystemRoles returns the seeded role catalog.
func SystemRoles() []RoleDef {
	return []RoleDef{
		{
			Code:        "super_admin",
			Name:        "Super Administrator",
			Description: "Unrestricted access to every permission, present and future",
			Level:       100,
			Permissions: []string{"*"},
		},
		{
			Code:        "intent_admin",
			Name:        "Intent Administrator",
			Description: "Full control over the intent catalog",
			Level:       50,
			Permissions: []string{
				"intent:read", "intent:create", "intent:update", "intent:delete", "intent:import",
				"category:read", "category:create", "category:update", "category:delete",
				"reply:read", "reply:create", "reply:update", "reply:delete",
				"role:read", "audit:read",
			},
		},
		{
			Code:        "auditor",
			Name:        "Auditor",
			Description: "Read and analyse the operation log",
			Level:       30,
			Permissions: []string{"audit:read", "audit:export", "audit:detect"},
		},
		{
			Code:        "viewer",
			Name:        "Viewer",
			Description: "Read-only access, assigned to new users by default",
			Level:       10,
			IsDefault:   true,
			Permissions: []string{"intent:read", "category:read", "reply:read"},
		},
	}
}
