package contact

import "time"

// Message is a contact form submission. ID and Fecha are assigned by the
// store at creation time and never change afterwards.
type Message struct {
	ID       string    `json:"id"`
	Nombre   string    `json:"nombre"`
	Email    string    `json:"email"`
	Telefono string    `json:"telefono,omitempty"`
	Mensaje  string    `json:"mensaje"`
	Fecha    time.Time `json:"fecha"`
	Leido    bool      `json:"leido"`
}

// Patch carries a partial update; nil fields are left untouched.
// In practice only Leido gets patched (mark as read from the dashboard).
type Patch struct {
	Nombre   *string `json:"nombre"`
	Email    *string `json:"email"`
	Telefono *string `json:"telefono"`
	Mensaje  *string `json:"mensaje"`
	Leido    *bool   `json:"leido"`
}

func (p Patch) apply(m *Message) {
	if p.Nombre != nil {
		m.Nombre = *p.Nombre
	}
	if p.Email != nil {
		m.Email = *p.Email
	}
	if p.Telefono != nil {
		m.Telefono = *p.Telefono
	}
	if p.Mensaje != nil {
		m.Mensaje = *p.Mensaje
	}
	if p.Leido != nil {
		m.Leido = *p.Leido
	}
}
