package policy

import (
	"context"
	"errors"
	"sort"

	"gorm.io/gorm"

	"github.com/arialabs/aria-admin/internal/models"
	apperrors "github.com/arialabs/aria-admin/pkg/errors"
)

// RoleSummary is the caller-facing shape of a granted role.
type RoleSummary struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// Resolution is the effective permission set of a user.
//
// When a wildcard role is active the literal "*" appears in Permissions and
// GrantsAll is set; consumers of HasAny/HasAll never need to special-case it,
// but callers reading the raw set must.
type Resolution struct {
	Permissions []string      `json:"permissions"`
	Roles       []RoleSummary `json:"roles"`
	GrantsAll   bool          `json:"grants_all"`
}

// Resolver computes effective permissions from active role assignments.
type Resolver struct {
	db *gorm.DB
}

// NewResolver constructs a Resolver backed by the provided database.
func NewResolver(db *gorm.DB) (*Resolver, error) {
	if db == nil {
		return nil, errors.New("policy resolver: db is required")
	}
	return &Resolver{db: db}, nil
}

// Resolve returns the union of permission codes granted through the user's
// active role assignments. Unknown users yield NotFound; inactive users yield
// Forbidden. Concurrent mutations may be observed before or after commit;
// read-committed visibility is sufficient for authorization checks.
func (r *Resolver) Resolve(ctx context.Context, userID uint64) (*Resolution, error) {
	ctx = ensureContext(ctx)

	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("user not found")
		}
		return nil, storeError("load user", err)
	}
	if !user.IsActive {
		return nil, apperrors.ErrForbidden.WithMessage("user is inactive")
	}

	var edges []models.UserRole
	if err := r.db.WithContext(ctx).
		Preload("Role.Permissions").
		Where("user_id = ? AND status = ?", userID, models.AssignmentStatusActive).
		Find(&edges).Error; err != nil {
		return nil, storeError("load role assignments", err)
	}

	res := &Resolution{}
	union := make(map[string]struct{})

	for _, edge := range edges {
		role := edge.Role
		if role == nil || role.Status != models.RoleStatusActive {
			continue
		}

		res.Roles = append(res.Roles, RoleSummary{Code: role.Code, Name: role.Name, Level: role.Level})

		if role.GrantsAll {
			res.GrantsAll = true
			union[models.WildcardCode] = struct{}{}
		}
		for _, perm := range role.Permissions {
			if perm.Status == models.PermissionStatusRetired {
				continue
			}
			union[perm.Code] = struct{}{}
		}
	}

	res.Permissions = make([]string, 0, len(union))
	for code := range union {
		res.Permissions = append(res.Permissions, code)
	}
	sort.Strings(res.Permissions)
	sort.Slice(res.Roles, func(i, j int) bool {
		if res.Roles[i].Level != res.Roles[j].Level {
			return res.Roles[i].Level > res.Roles[j].Level
		}
		return res.Roles[i].Code < res.Roles[j].Code
	})

	return res, nil
}

// HasAny reports whether the user holds at least one of the required codes.
// A wildcard grant absorbs any requirement.
func (r *Resolver) HasAny(ctx context.Context, userID uint64, required []string) (bool, error) {
	res, err := r.Resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	if res.GrantsAll {
		return true, nil
	}

	held := toSet(res.Permissions)
	for _, code := range required {
		if _, ok := held[code]; ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAll reports whether the user holds every required code.
// A wildcard grant absorbs any requirement.
func (r *Resolver) HasAll(ctx context.Context, userID uint64, required []string) (bool, error) {
	res, err := r.Resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	if res.GrantsAll {
		return true, nil
	}

	held := toSet(res.Permissions)
	for _, code := range required {
		if _, ok := held[code]; !ok {
			return false, nil
		}
	}
	return true, nil
}

func toSet(codes []string) map[string]struct{} {
	out := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		out[code] = struct{}{}
	}
	return out
}
