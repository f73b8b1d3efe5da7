// Package billing is the subscription and entitlement engine.
//
// It prices an owner's usage against a fixed tier table, keeps one
// subscription row per owner, derives active/grace/blocked from the stored
// period boundaries and gates mutating operations on that state. Three
// payment rails (PayPal orders, PayPal subscriptions and manual bank
// transfers) all end in the same step: renew the period and append one
// ledger row, in one transaction, guarded by the (provider,
// provider_payment_id) idempotency key.
package billing
