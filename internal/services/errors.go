package services

import "fmt"

// TransientNetworkError is returned by the client after its retry budget is
// spent on timeouts, transport failures or non-2xx responses. Callers may
// retry the whole link on a later attempt.
type TransientNetworkError struct {
	URL string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("transient network failure for %s: %v", e.URL, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// DiscoveryError means the listing page rendered but produced zero item
// links. That signals page-structure drift, not a flaky network, so it is
// fatal and never retried.
type DiscoveryError struct {
	URL string
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("no item links found on %s", e.URL)
}

// MalformedLinkError marks a discovered link that carries no /listings/
// segment. The link is skipped without burning retry attempts.
type MalformedLinkError struct {
	Link string
}

func (e *MalformedLinkError) Error() string {
	return fmt.Sprintf("link %q has no /listings/ segment", e.Link)
}

// UnresolvedIdentityError means the item page never issued its order-book
// request, so item_nameid is unknown. Only the histogram source is skipped.
type UnresolvedIdentityError struct {
	Link string
}

func (e *UnresolvedIdentityError) Error() string {
	return fmt.Sprintf("item_nameid not observed while loading %s", e.Link)
}

// ParseError marks one source whose payload or selectors did not match
// expectations. The source is dropped; the partial snapshot survives.
type ParseError struct {
	Source string
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failure in %s: %s", e.Source, e.Detail)
}

// SchemaError is fatal at write time: a required column cannot be produced
// even after normalization, meaning the upstream format drifted.
type SchemaError struct {
	Table  string
	Column string
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("table %s column %q: %s", e.Table, e.Column, e.Detail)
}
