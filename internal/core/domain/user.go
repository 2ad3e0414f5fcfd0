package domain

type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleStaff Role = "STAFF"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleStaff
}

type Room string

const (
	RoomWarehouse  Room = "GUDANG"
	RoomProcessing Room = "PROSES"
)

type UserAccount struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	Role     Role   `json:"role"`
	Room     Room   `json:"room"`
}
