package governance

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request is a tour asking to move the user to another route.
type Request struct {
	Tour string
	Path string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine decides whether a tour may navigate to a route.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// RoutePolicy only allows in-app paths, optionally restricted to a set of
// prefixes, and denies paths matching any registered pattern.
type RoutePolicy struct {
	AllowedPrefixes []string
	DeniedRegex     []*regexp.Regexp
}

func NewRoutePolicy() *RoutePolicy {
	return &RoutePolicy{
		DeniedRegex: make([]*regexp.Regexp, 0),
	}
}

// AllowPrefix restricts navigation to paths under prefix. With no prefixes
// every in-app path is allowed.
func (p *RoutePolicy) AllowPrefix(prefix string) {
	p.AllowedPrefixes = append(p.AllowedPrefixes, prefix)
}

func (p *RoutePolicy) DenyPath(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	p.DeniedRegex = append(p.DeniedRegex, re)
	return nil
}

func (p *RoutePolicy) Evaluate(ctx context.Context, req Request) (Result, error) {
	if !strings.HasPrefix(req.Path, "/") || strings.HasPrefix(req.Path, "//") {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Path '%s' is not an in-app route", req.Path),
		}, nil
	}

	for _, re := range p.DeniedRegex {
		if re.MatchString(req.Path) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("Path matches restricted pattern: %s", re.String()),
			}, nil
		}
	}

	if len(p.AllowedPrefixes) > 0 {
		allowed := false
		for _, prefix := range p.AllowedPrefixes {
			if strings.HasPrefix(req.Path, prefix) {
				allowed = true
				break
			}
		}
		if !allowed {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("Path '%s' is outside the allowed routes", req.Path),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by route policy",
	}, nil
}
