package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/arialabs/aria-admin/internal/models"
	apperrors "github.com/arialabs/aria-admin/pkg/errors"
)

// MissingDependency names a permission whose declared dependencies are absent
// from the validated set.
type MissingDependency struct {
	Permission string   `json:"permission"`
	Missing    []string `json:"missing"`
}

// Report is the outcome of validating a permission set.
type Report struct {
	Valid   bool                `json:"valid"`
	Missing []MissingDependency `json:"missing_dependencies,omitempty"`
}

// Validator checks permission sets against their declared dependency lists.
// It is a pure reader over the policy store.
type Validator struct {
	db *gorm.DB
}

// NewValidator constructs a Validator backed by the provided database.
func NewValidator(db *gorm.DB) (*Validator, error) {
	if db == nil {
		return nil, errors.New("policy validator: db is required")
	}
	return &Validator{db: db}, nil
}

// ValidateSet reports, for every code in the set, any declared dependency that
// is not itself present in the set. The wildcard sentinel is rejected here:
// wildcard grants bypass dependency enforcement entirely.
func (v *Validator) ValidateSet(ctx context.Context, codes []string) (*Report, error) {
	ctx = ensureContext(ctx)

	cleaned, err := normaliseCodes(codes)
	if err != nil {
		return nil, err
	}
	if len(cleaned) == 0 {
		return &Report{Valid: true}, nil
	}

	perms, err := loadPermissionsByCode(ctx, v.db, cleaned)
	if err != nil {
		return nil, err
	}

	present := make(map[string]struct{}, len(cleaned))
	for _, code := range cleaned {
		present[code] = struct{}{}
	}

	report := &Report{Valid: true}
	for _, code := range cleaned {
		perm, ok := perms[code]
		if !ok {
			return nil, apperrors.NewValidation(fmt.Sprintf("unknown permission code %q", code))
		}

		deps, err := DecodeDependencies(perm)
		if err != nil {
			return nil, err
		}

		var missing []string
		for _, dep := range deps {
			if _, held := present[dep]; !held {
				missing = append(missing, dep)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			report.Valid = false
			report.Missing = append(report.Missing, MissingDependency{Permission: code, Missing: missing})
		}
	}

	return report, nil
}

// DecodeDependencies unmarshals a permission's declared dependency list.
func DecodeDependencies(perm *models.Permission) ([]string, error) {
	if len(perm.Dependencies) == 0 {
		return nil, nil
	}

	var deps []string
	if err := json.Unmarshal(perm.Dependencies, &deps); err != nil {
		return nil, fmt.Errorf("policy: decode dependencies for %s: %w", perm.Code, err)
	}
	return deps, nil
}

func loadPermissionsByCode(ctx context.Context, db *gorm.DB, codes []string) (map[string]*models.Permission, error) {
	var rows []models.Permission
	if err := db.WithContext(ctx).Where("code IN ?", codes).Find(&rows).Error; err != nil {
		return nil, storeError("load permissions", err)
	}

	out := make(map[string]*models.Permission, len(rows))
	for i := range rows {
		out[rows[i].Code] = &rows[i]
	}
	return out, nil
}

func normaliseCodes(codes []string) ([]string, error) {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))

	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if code == models.WildcardCode {
			return nil, apperrors.NewValidation("wildcard sentinel is not a valid member of a permission set")
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}

	return out, nil
}

// storeError maps infrastructure failures to the Unavailable kind so callers
// never mistake an unreachable store for an empty result.
func storeError(op string, err error) error {
	return apperrors.ErrUnavailable.WithInternal(fmt.Errorf("policy: %s: %w", op, err))
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
