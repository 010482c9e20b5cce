// Package billing holds the invoice aggregate, payment records, the
// normalizer that canonicalizes raw store records, and the pure analytics
// aggregator. The invoice owns its line items as a single unit of
// consistency; payment records reference invoices without owning them.
//
// Stored status and effective status are kept apart: overdue is derived at
// read time from a sent invoice past its due date, and reads never write
// the derivation back.
package billing
