// Package models contains GORM persistence models that map to database tables.
// They are kept apart from domain entities so the domain layer stays free of
// ORM tags; each model converts with FromDomain / ToDomain.
//
// Structure:
//   - base.go: shared fields (BaseModel, AggregateModel, CompanyAggregateModel)
//   - document.go: payable documents and their lines
//   - funding.go: payments and credit notes
//   - allocation.go: allocations and tax components
//   - record.go: audit entries and idempotency records
package models
