package domain

import (
	"context"
	"fmt"
	"strings"
)

// VerificationPolicy decides who may set VerifiedBy on an activity.
type VerificationPolicy string

const (
	// VerifyByOwner lets only the project owner verify.
	VerifyByOwner VerificationPolicy = "owner"
	// VerifyByMember also admits users who logged hours on the project.
	VerifyByMember VerificationPolicy = "member"
	// VerifyByAny admits every authenticated user.
	VerifyByAny VerificationPolicy = "any"
)

// ParseVerificationPolicy maps a configuration value to a policy.
func ParseVerificationPolicy(raw string) (VerificationPolicy, error) {
	switch p := VerificationPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case VerifyByOwner, VerifyByMember, VerifyByAny:
		return p, nil
	case "":
		return VerifyByOwner, nil
	default:
		return "", fmt.Errorf("unknown verification policy %q", raw)
	}
}

func requireProjectOwner(callerID, ownerID string) error {
	if callerID == "" || callerID != ownerID {
		return ErrForbidden
	}
	return nil
}

// authorizeVerification applies the policy for a caller who wants to verify
// activity. The project owner may always verify; nobody else may verify an
// entry they performed themselves.
func authorizeVerification(ctx context.Context, q Queries, policy VerificationPolicy, callerID, ownerID string, activity Activity) error {
	if callerID != "" && callerID == ownerID {
		return nil
	}
	if callerID == activity.PerformedByID {
		return ErrForbidden
	}

	switch policy {
	case VerifyByAny:
		return nil
	case VerifyByMember:
		member, err := q.HasActivityBy(ctx, activity.ProjectID, callerID)
		if err != nil {
			return storeErr("check membership", err)
		}
		if !member {
			return ErrForbidden
		}
		return nil
	default:
		return ErrForbidden
	}
}

// verificationChange reports whether applying patch to current changes the
// verifier. Verification is terminal: clearing it or naming a different
// verifier is a conflict, repeating the same name is a no-op.
func verificationChange(current *string, patch Patch[string]) (bool, error) {
	if !patch.Set {
		return false, nil
	}
	if current == nil {
		return patch.Value != nil, nil
	}
	if patch.Value == nil || *patch.Value != *current {
		return false, fmt.Errorf("%w: activity already verified by %q", ErrConflict, *current)
	}
	return false, nil
}
