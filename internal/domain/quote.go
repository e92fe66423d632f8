package domain

import "time"

type NightPrice struct {
	Date  time.Time
	Price int64
}

type Quote struct {
	ApartmentType string
	Range         DateRange
	Available     bool
	Nights        []NightPrice
	Total         int64
}
