package walker

import (
	"fmt"
	"regexp"

	"github.com/opendatahub/dataset-crawler/internal/sites"
)

// compiledRule is a site rule with its patterns compiled. Rule order is
// preserved from the site config; the first rule whose allow pattern matches
// (and deny pattern does not) decides the URL's role.
type compiledRule struct {
	allow *regexp.Regexp
	deny  *regexp.Regexp
	role  sites.RuleRole
}

type ruleSet []compiledRule

func compileRules(rules []sites.Rule) (ruleSet, error) {
	out := make(ruleSet, 0, len(rules))
	for i, rule := range rules {
		allow, err := regexp.Compile(rule.Allow)
		if err != nil {
			return nil, fmt.Errorf("rule %d: compile allow %q: %w", i, rule.Allow, err)
		}
		compiled := compiledRule{allow: allow, role: rule.Role}
		if rule.Deny != "" {
			deny, err := regexp.Compile(rule.Deny)
			if err != nil {
				return nil, fmt.Errorf("rule %d: compile deny %q: %w", i, rule.Deny, err)
			}
			compiled.deny = deny
		}
		out = append(out, compiled)
	}
	return out, nil
}

// Match returns the role of the first matching rule, or ok=false when no rule
// claims the URL.
func (rs ruleSet) Match(url string) (sites.RuleRole, bool) {
	for _, rule := range rs {
		if !rule.allow.MatchString(url) {
			continue
		}
		if rule.deny != nil && rule.deny.MatchString(url) {
			continue
		}
		return rule.role, true
	}
	return "", false
}
