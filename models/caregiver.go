package models

// Caregiver is the directory entry the lifecycle manager prices bookings from.
type Caregiver struct {
	ID           string        `bson:"id" json:"id" gorm:"primaryKey;size:64"`
	Name         string        `bson:"name" json:"name"`
	HourlyRate   int64         `bson:"hourly_rate" json:"hourlyRate"` // minor units
	Currency     string        `bson:"currency" json:"currency" gorm:"size:8"`
	ServiceKinds []ServiceKind `bson:"service_kinds" json:"serviceKinds" gorm:"serializer:json"`
	Active       bool          `bson:"active" json:"active"`
}

// Offers reports whether the caregiver provides the given kind of service.
func (c *Caregiver) Offers(kind ServiceKind) bool {
	for _, k := range c.ServiceKinds {
		if k == kind {
			return true
		}
	}
	return false
}
