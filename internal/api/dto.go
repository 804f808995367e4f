package api

import "github.com/cthiel42/ipamd/internal/node"

// rootDTO is the wire shape of a root (spec.md §6.1).
type rootDTO struct {
	CIDR     string `json:"cidr"`
	PoolName string `json:"pool_name"`
}

func newRootDTO(n node.Node) rootDTO {
	return rootDTO{CIDR: n.CIDR, PoolName: n.PoolName}
}

// reservationDTO is the wire shape of a reservation (spec.md §6.1).
type reservationDTO struct {
	CIDR     string `json:"cidr"`
	PoolName string `json:"pool_name"`
	Created  int64  `json:"created"`
	Comment  string `json:"comment"`
}

func newReservationDTO(n node.Node) reservationDTO {
	return reservationDTO{
		CIDR:     n.CIDR,
		PoolName: n.PoolName,
		Created:  n.Created,
		Comment:  n.Comment.Value,
	}
}

// createRootRequest is the POST /roots/{pool} body.
type createRootRequest struct {
	CIDR string `json:"cidr"`
}

// createReservationRequest is the POST /reservations/{pool} body. Per
// spec.md §6.1, CIDR takes precedence over PrefixLength when both are
// present; at least one must be present.
type createReservationRequest struct {
	CIDR         string `json:"cidr,omitempty"`
	PrefixLength *int   `json:"prefix_length,omitempty"`
	Comment      string `json:"comment,omitempty"`
}

// msgResponse is the `{"msg": ...}` envelope used for both errors and
// simple success acknowledgements.
type msgResponse struct {
	Msg string `json:"msg"`
}
