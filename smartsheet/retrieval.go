package smartsheet

import (
	"context"
	"fmt"
)

// MembersPageSize is how many members we ask for per request.
const MembersPageSize = 100

// ListAllMembers walks every page of the organization's member list.
func ListAllMembers(ctx context.Context, svc Service) ([]User, error) {
	members := []User{}

	query := UsersQuery{
		Page:     1,
		PageSize: MembersPageSize,
	}

	for {
		page, err := svc.GetUsers(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("smartsheet: couldn't list members: %w", err)
		}

		members = append(members, page.Data...)

		// an empty page also ends the walk, in case totalPages is ever missing.
		if len(page.Data) == 0 || page.PageNumber >= page.TotalPages {
			break
		}
		query.Page = page.PageNumber + 1
	}

	return members, nil
}
