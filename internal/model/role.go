package model

import (
	"fmt"
	"strings"
)

// Role is the coarse capability tier of a user.
type Role uint8

const (
	RoleAdmin Role = iota
	RoleManager
	RoleAgent
	RoleViewer

	roleCount
)

// RoleCount is the number of defined roles; tables indexed by Role use it as their length.
const RoleCount = int(roleCount)

var roleNames = [roleCount]string{
	RoleAdmin:   "admin",
	RoleManager: "manager",
	RoleAgent:   "agent",
	RoleViewer:  "viewer",
}

func ParseRole(raw string) (Role, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for i, name := range roleNames {
		if name == normalized {
			return Role(i), nil
		}
	}

	return 0, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
}

func (r Role) Valid() bool {
	return r < roleCount
}

func (r Role) String() string {
	if !r.Valid() {
		return fmt.Sprintf("role(%d)", uint8(r))
	}

	return roleNames[r]
}

func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: role %d", ErrInvalidInput, uint8(r))
	}

	return []byte(roleNames[r]), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}

	*r = parsed
	return nil
}

// Page is a named area of the admin UI.
type Page uint8

const (
	PageDashboard Page = iota
	PageInterviews
	PageCandidates
	PageCalls
	PageSettings
	PageUserManagement

	pageCount
)

// PageCount is the number of defined pages.
const PageCount = int(pageCount)

var pageNames = [pageCount]string{
	PageDashboard:      "dashboard",
	PageInterviews:     "interviews",
	PageCandidates:     "candidates",
	PageCalls:          "calls",
	PageSettings:       "settings",
	PageUserManagement: "user_management",
}

func ParsePage(raw string) (Page, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for i, name := range pageNames {
		if name == normalized {
			return Page(i), nil
		}
	}

	return 0, fmt.Errorf("%w: unknown page %q", ErrInvalidInput, raw)
}

// AllPages returns every page in declaration order.
func AllPages() []Page {
	pages := make([]Page, 0, pageCount)
	for p := Page(0); p < pageCount; p++ {
		pages = append(pages, p)
	}

	return pages
}

func (p Page) Valid() bool {
	return p < pageCount
}

func (p Page) String() string {
	if !p.Valid() {
		return fmt.Sprintf("page(%d)", uint8(p))
	}

	return pageNames[p]
}

func (p Page) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: page %d", ErrInvalidInput, uint8(p))
	}

	return []byte(pageNames[p]), nil
}

func (p *Page) UnmarshalText(text []byte) error {
	parsed, err := ParsePage(string(text))
	if err != nil {
		return err
	}

	*p = parsed
	return nil
}
