package registration

import "time"

// Tipo distinguishes the two registration tracks of the event.
const (
	TipoTatuador = "tatuadores"
	TipoJurado   = "jurados"
)

const (
	EstadoPendiente = "pendiente"
	EstadoAceptado  = "aceptado"
	EstadoRechazado = "rechazado"
)

func ValidTipo(tipo string) bool {
	return tipo == TipoTatuador || tipo == TipoJurado
}

// Registrant is a tattoo artist (tatuador) or judge (jurado) registered for
// the event. ID, FechaRegistro and the initial Estado are server-assigned.
type Registrant struct {
	ID              string    `json:"id"`
	Tipo            string    `json:"tipo"`
	Nombre          string    `json:"nombre"`
	NombreArtistico string    `json:"nombreArtistico,omitempty"`
	Email           string    `json:"email"`
	Pais            string    `json:"pais"`
	Ciudad          string    `json:"ciudad"`
	Categoria       string    `json:"categoria"`
	FechaRegistro   time.Time `json:"fechaRegistro"`
	Estado          string    `json:"estado"`
}
