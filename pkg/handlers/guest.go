package handlers

import "fmt"

// Location of the hotel.
type Location struct {
	Name        string  `yaml:"name" json:"name"`
	FullAddress string  `yaml:"full_address" json:"full_address"`
	Address     string  `yaml:"address" json:"address"`
	City        string  `yaml:"city" json:"city"`
	State       string  `yaml:"state" json:"state"`
	Country     string  `yaml:"country" json:"country"`
	PostalCode  string  `yaml:"postal_code" json:"postal_code"`
	Latitude    float64 `yaml:"latitude" json:"latitude"`
	Longitude   float64 `yaml:"longitude" json:"longitude"`
}

func DefaultHotel() Location {
	return Location{
		Name:        "The Funkhaus Hotel",
		FullAddress: "Kortumstr 68, 44787 Bochum, Germany",
		Address:     "Kortumstr 68",
		City:        "Bochum",
		State:       "NRW",
		Country:     "de",
		PostalCode:  "44787",
		Latitude:    51.4803947247399,
		Longitude:   7.217586297768458,
	}
}

// Guest is the context every handler receives: who is asking and where.
type Guest struct {
	RoomNumber string   `yaml:"room_number" json:"room_number"`
	Name       string   `yaml:"name" json:"name"`
	Hotel      Location `yaml:"hotel" json:"hotel"`
}

// DefaultGuest is the mock guest used until a real identity source exists.
func DefaultGuest() Guest {
	return Guest{RoomNumber: "101", Name: "John Doe", Hotel: DefaultHotel()}
}

func (g Guest) room() string {
	if g.RoomNumber == "" {
		return "your room"
	}
	return fmt.Sprintf("room %s", g.RoomNumber)
}
