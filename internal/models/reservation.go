package models

// Claim kinds used as reservation key prefixes.
const (
	ClaimUsername = "username"
	ClaimEmail    = "email"
)

// Reservation marks a claimed unique value. Its ID is the whole claim
// ("username/alice") so a second insert of the same claim collides on the
// primary key at commit time. The key is not scoped by application name.
type Reservation struct {
	ID string `bson:"_id" json:"id"`
}

// ReservationKey builds the composite key for a claim kind and value.
func ReservationKey(kind, value string) string {
	return kind + "/" + value
}

// UsernameReservation returns the reservation for a username claim.
func UsernameReservation(username string) *Reservation {
	return &Reservation{ID: ReservationKey(ClaimUsername, username)}
}

// EmailReservation returns the reservation for an email claim.
func EmailReservation(email string) *Reservation {
	return &Reservation{ID: ReservationKey(ClaimEmail, email)}
}
