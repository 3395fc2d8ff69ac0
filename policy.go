package donsched

import (
	"fmt"
	"math"
)

// Policy is the selection policy of a [Scheduler] and of every queue it
// creates.
type Policy struct {
	policy
}

// ParsePolicy creates a new [Policy] from the given value.
func ParsePolicy(p any) Policy {
	switch v := p.(type) {
	case Policy:
		return v
	case string:
		return Policy{stringToPolicy(v)}
	case fmt.Stringer:
		return Policy{stringToPolicy(v.String())}
	case int:
		return Policy{policy(v)}
	default:
		return Policy{policyUnknown}
	}
}

// MarshalText encodes the policy by name, so it appears as a JSON string.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a policy name. Names other than those listed by
// [Policies] are rejected.
func (p *Policy) UnmarshalText(text []byte) error {
	v, ok := typePolicyMap[string(text)]
	if !ok {
		return fmt.Errorf("donsched: unknown policy %q", text)
	}
	*p = Policy{v}
	return nil
}

// Bounds returns the priority bounds of the policy. The zero [Bounds] is
// returned for an unknown policy.
func (p Policy) Bounds() Bounds {
	return policyBounds[p.policy]
}

// Policies is a more typical enum like structure from other languages, ported
// to Go. It may be used to reference a [Policy] value by name.
var Policies = policyContainer{
	Unknown:  Policy{policyUnknown},
	Priority: Policy{policyPriority},
	Lottery:  Policy{policyLottery},
}

// All returns all possible policies.
func (c policyContainer) All() []Policy {
	return []Policy{c.Unknown, c.Priority, c.Lottery}
}

// Bounds are the inclusive priority bounds of a policy and the priority given
// to an entity on its first scheduling interaction.
type Bounds struct {
	Min     int
	Max     int
	Default int
}

// Contains reports whether p lies within the bounds.
func (b Bounds) Contains(p int) bool {
	return p >= b.Min && p <= b.Max
}

type policy int

const (
	policyUnknown  policy = 0
	policyPriority policy = 1
	policyLottery  policy = 2
)

var (
	strPolicyMap = map[policy]string{
		policyUnknown:  "unknown",
		policyPriority: "priority",
		policyLottery:  "lottery",
	}

	typePolicyMap = map[string]policy{
		"unknown":  policyUnknown,
		"priority": policyPriority,
		"lottery":  policyLottery,
	}

	// Lottery has no zero-ticket entities: a zero weight is not selectable.
	policyBounds = map[policy]Bounds{
		policyPriority: {Min: 0, Max: 7, Default: 1},
		policyLottery:  {Min: 1, Max: math.MaxInt32, Default: 1},
	}
)

func (p policy) String() string {
	return strPolicyMap[p]
}

func (p policy) IsValid() bool {
	return p != policyUnknown && strPolicyMap[p] != ""
}

func stringToPolicy(s string) policy {
	if v, ok := typePolicyMap[s]; ok {
		return v
	}
	return policyUnknown
}

type policyContainer struct {
	Unknown  Policy
	Priority Policy
	Lottery  Policy
}
