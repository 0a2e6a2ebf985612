package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// AdminList grants the scheduling bypass to a fixed set of user ids.
type AdminList struct {
	ids map[int64]struct{}
}

func NewAdminList(ids []int64) *AdminList {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if id > 0 {
			set[id] = struct{}{}
		}
	}
	return &AdminList{ids: set}
}

func (a *AdminList) HasSchedulingBypass(_ context.Context, id Identity) bool {
	if a == nil || !id.Authenticated() {
		return false
	}
	_, ok := a.ids[id.UserID]
	return ok
}

// ParseUserIDs parses a comma separated list such as "1, 7,42".
func ParseUserIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid user id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
