package session

import (
	"fmt"
	"strings"
)

// RequestClass names a kind of one-shot request. At most one completion per
// class is outstanding at any time.
type RequestClass int

const (
	ClassConnect RequestClass = iota
	ClassDisconnect
	ClassGetPower
	ClassSetPower
	ClassGetBattery

	numClasses
)

var classNames = [numClasses]string{"connect", "disconnect", "getPower", "setPower", "getBattery"}

func (c RequestClass) String() string {
	if c < 0 || c >= numClasses {
		return fmt.Sprintf("class(%d)", int(c))
	}
	return classNames[c]
}

// PendingPolicy decides what happens when a request is issued while another
// of the same class is still outstanding.
type PendingPolicy string

const (
	// PolicyReplace overwrites the slot. The displaced caller is never
	// resolved and only returns through its context or the request timeout.
	PolicyReplace PendingPolicy = "replace"
	// PolicyReject fails the new request with ErrBusy.
	PolicyReject PendingPolicy = "reject"
)

// ParsePendingPolicy parses a policy name, case-insensitively.
func ParsePendingPolicy(s string) (PendingPolicy, error) {
	switch p := PendingPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyReplace, PolicyReject:
		return p, nil
	default:
		return "", fmt.Errorf("unknown pending policy %q (want %q or %q)", s, PolicyReplace, PolicyReject)
	}
}

// outcome is what a completion resolves with.
type outcome struct {
	flag  bool
	value int
	err   error
}

type completion struct {
	id    uint64
	class RequestClass
	ch    chan outcome
}

// registry holds the pending completion slots. It is owned by the loop.
type registry struct {
	slots  [numClasses]*completion
	nextID uint64
	policy PendingPolicy
}

func newRegistry(policy PendingPolicy) *registry {
	if policy == "" {
		policy = PolicyReplace
	}
	return &registry{policy: policy}
}

// register installs a new completion for class. The returned displaced
// completion, if any, is the one overwritten under PolicyReplace.
func (r *registry) register(class RequestClass) (c *completion, displaced *completion, err error) {
	if prev := r.slots[class]; prev != nil {
		if r.policy == PolicyReject {
			return nil, nil, newError(KindBusy, class.String(), nil)
		}
		displaced = prev
	}

	r.nextID++
	c = &completion{id: r.nextID, class: class, ch: make(chan outcome, 1)}
	r.slots[class] = c

	return c, displaced, nil
}

// resolve delivers out to the pending completion of class and frees the slot.
// It reports false when nothing was pending.
func (r *registry) resolve(class RequestClass, out outcome) bool {
	c := r.slots[class]
	if c == nil {
		return false
	}
	r.slots[class] = nil
	c.ch <- out
	return true
}

// release frees the slot only if it still holds the completion with id.
func (r *registry) release(class RequestClass, id uint64) bool {
	if c := r.slots[class]; c != nil && c.id == id {
		r.slots[class] = nil
		return true
	}
	return false
}

// busy reports whether register would refuse class.
func (r *registry) busy(class RequestClass) bool {
	return r.policy == PolicyReject && r.slots[class] != nil
}

func (r *registry) isPending(class RequestClass) bool {
	return r.slots[class] != nil
}

func (r *registry) pending() []RequestClass {
	var classes []RequestClass
	for class, c := range r.slots {
		if c != nil {
			classes = append(classes, RequestClass(class))
		}
	}
	return classes
}

// failAll resolves every pending completion with err.
func (r *registry) failAll(err error) {
	for class := range r.slots {
		r.resolve(RequestClass(class), outcome{err: err})
	}
}
