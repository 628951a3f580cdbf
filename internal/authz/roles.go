package authz

const (
	RoleCustomer = "customer"
	RoleDetailer = "detailer"
	RoleOwner    = "owner"
	RoleAdmin    = "admin"
)

// IsKYCRole — роли, которые проходят KYC.
func IsKYCRole(role string) bool {
	return role == RoleCustomer || role == RoleDetailer || role == RoleOwner
}

func IsAdmin(role string) bool {
	return role == RoleAdmin
}
