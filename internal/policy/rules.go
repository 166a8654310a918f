package policy

import (
	"strings"

	"github.com/loomwm/loom/internal/core"
)

// Rule matches mapping windows by app id (exact) and title (substring).
// Empty fields match everything.
type Rule struct {
	AppID     string
	Title     string
	Directive core.PlacementDirective
}

func (r Rule) matches(appID, title string) bool {
	if r.AppID != "" && r.AppID != appID {
		return false
	}
	if r.Title != "" && !strings.Contains(title, r.Title) {
		return false
	}
	return true
}

// Rules is an ordered placement rule table; first match wins. It implements
// core.PlacementRules.
type Rules struct {
	rules []Rule
}

func NewRules() *Rules {
	return &Rules{}
}

func (rs *Rules) add(r Rule) { rs.rules = append(rs.rules, r) }

func (rs *Rules) Len() int { return len(rs.rules) }

func (rs *Rules) Match(appID, title string, role core.Role) (core.PlacementDirective, bool) {
	if role != core.RoleToplevel {
		return core.PlacementDirective{}, false
	}
	for _, r := range rs.rules {
		if r.matches(appID, title) {
			return r.Directive, true
		}
	}
	return core.PlacementDirective{}, false
}
