package booking

// BookingType is the kind of voyage product that was booked.
type BookingType string

const (
	TypeFlight   BookingType = "flight"
	TypeHotel    BookingType = "hotel"
	TypePackage  BookingType = "package"
	TypeActivity BookingType = "activity"
)

// IsValid returns true if the booking type is recognized.
func (t BookingType) IsValid() bool {
	switch t {
	case TypeFlight, TypeHotel, TypePackage, TypeActivity:
		return true
	}
	return false
}
