package model

import (
	"strings"
	"time"
)

// Status is the closed set of appointment states recognised on the calendar.
// The values are the labels stored in the appointments collection.
type Status string

const (
	StatusNewBooking Status = "Nueva reserva creada"
	StatusPaid       Status = "Cita pagada"
	StatusCancelled  Status = "Cita cancelada"
)

// Appointment is one calendar entry as observed on the rendered grid. Field
// names on the wire keep the document layout of the existing collection.
type Appointment struct {
	Client       string     `bson:"Cliente" json:"Cliente"`
	Phone        *int64     `bson:"Celular" json:"Celular"`
	Service      string     `bson:"Servicio" json:"Servicio"`
	Specialist   string     `bson:"Especialista" json:"Especialista"`
	TimeLabel    *string    `bson:"Hora" json:"Hora"`
	DateLabel    *string    `bson:"Fecha" json:"Fecha"`
	Status       Status     `bson:"Estado" json:"Estado"`
	ScheduledAt  *time.Time `bson:"appointmentAt" json:"appointmentAt"`
	Site         string     `bson:"Sede" json:"Sede"`
	Owner        string     `bson:"Usuario" json:"Usuario"`
	ColorTag     string     `bson:"bgColor" json:"bgColor"`
	LastSyncedAt time.Time  `bson:"lastSyncedAt" json:"lastSyncedAt"`
}

// BusinessKey identifies an appointment in the absence of an upstream id.
// Two distinct appointments that render identical text share a key and are
// stored as one record.
type BusinessKey struct {
	Client    string
	Service   string
	TimeLabel *string
	DateLabel *string
}

func (a Appointment) Key() BusinessKey {
	return BusinessKey{
		Client:    a.Client,
		Service:   a.Service,
		TimeLabel: a.TimeLabel,
		DateLabel: a.DateLabel,
	}
}

func (k BusinessKey) String() string {
	return strings.Join([]string{k.Client, k.Service, deref(k.TimeLabel), deref(k.DateLabel)}, "|")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
