package domain

import "time"

// UnknownPhone replaces a missing phone number during cleaning.
const UnknownPhone = "Unknown"

// Customer is a raw customer as landed in staging.customers.
type Customer struct {
	CustomerID       int64      `db:"customer_id"`
	FirstName        string     `db:"first_name"`
	LastName         string     `db:"last_name"`
	Email            *string    `db:"email"`
	Phone            *string    `db:"phone"`
	DateOfBirth      *time.Time `db:"date_of_birth"`
	City             string     `db:"city"`
	Country          string     `db:"country"`
	RegistrationDate *time.Time `db:"registration_date"`
	Segment          string     `db:"customer_segment"`
}

// CleanCustomer is a deduplicated customer with derived attributes.
// Age is nil when the birth date is missing or lies in the future;
// AgeGroup is empty when Age falls outside the known bands.
type CleanCustomer struct {
	Customer
	FullName string
	Age      *int
	AgeGroup string
}
